package invitationsrv

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/identra-io/identra/pkg/config"
	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/audit"
	"github.com/identra-io/identra/pkg/iam/invitation"
	"github.com/identra-io/identra/pkg/iam/role"
	"github.com/identra-io/identra/pkg/iam/tenant"
	"github.com/identra-io/identra/pkg/iam/user"
	"github.com/identra-io/identra/pkg/kernel"
	"github.com/identra-io/identra/pkg/logx"
	"github.com/identra-io/identra/pkg/metricx"
)

// Service orchestrates the invitation lifecycle: pending account creation
// with globally deconflicted identifiers, acceptance, resend, and cancel.
//
// The global-uniqueness check and the insert are not atomic; two racing
// invitations for the same email can both pass the check. The user store's
// unique constraints make the loser surface a conflict error instead of a
// duplicate row.
type Service struct {
	users        user.UserRepository
	tenants      tenant.TenantRepository
	roles        role.RoleRepository
	hasher       user.PasswordHasher
	deconflictor invitation.Deconflictor
	notifier     invitation.Notifier
	recorder     *audit.Recorder
	cfg          config.InvitationConfig
}

// NewService constructs the invitation service.
func NewService(
	users user.UserRepository,
	tenants tenant.TenantRepository,
	roles role.RoleRepository,
	hasher user.PasswordHasher,
	deconflictor invitation.Deconflictor,
	notifier invitation.Notifier,
	recorder *audit.Recorder,
	cfg config.InvitationConfig,
) *Service {
	return &Service{
		users:        users,
		tenants:      tenants,
		roles:        roles,
		hasher:       hasher,
		deconflictor: deconflictor,
		notifier:     notifier,
		recorder:     recorder,
		cfg:          cfg,
	}
}

// ============================================================================
// Invite
// ============================================================================

// Invite creates a pending account in the given tenant. The requested email
// and username are rewritten to globally unique variants when taken; the
// requested email is still the one the invitation message goes to.
func (s *Service) Invite(ctx context.Context, tenantID kernel.TenantID, invitedBy kernel.UserID, req invitation.InviteRequest) (*user.User, error) {
	if req.Email == "" || req.Username == "" {
		return nil, invitation.ErrMissingFields()
	}

	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.Active {
		return nil, tenant.ErrTenantInactive().WithDetail("tenant_id", tenantID.String())
	}

	email, err := s.deconflicted(ctx, req.Email, t.Domain, s.users.ExistsByEmailGlobal, s.deconflictor.DeconflictEmail)
	if err != nil {
		return nil, err
	}
	username, err := s.deconflicted(ctx, req.Username, t.Domain, s.users.ExistsByUsernameGlobal, s.deconflictor.DeconflictUsername)
	if err != nil {
		return nil, err
	}

	validity := req.Validity
	if validity <= 0 {
		validity = s.cfg.DefaultValidity
	}

	token, err := newInvitationToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(validity)
	inviter := invitedBy

	u := user.User{
		ID:                  kernel.NewUserID(uuid.NewString()),
		TenantID:            tenantID,
		Username:            username,
		Email:               email,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		Active:              true,
		TenantAdmin:         req.TenantAdmin,
		EmailVerified:       false,
		InvitationToken:     &token,
		InvitationExpiresAt: &expiresAt,
		InvitedBy:           &inviter,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	s.assignRoles(ctx, &u, invitedBy, req)

	s.recorder.Record(ctx, audit.Entry{
		TenantID:    &u.TenantID,
		UserID:      &u.ID,
		EventType:   audit.EventUserCreated,
		Description: "User invited: " + username,
		Metadata: map[string]interface{}{
			"via_invitation":  true,
			"invited_by":      invitedBy.String(),
			"requested_email": req.Email,
			"stored_email":    email,
		},
	})
	metricx.InvitationEvent("invited")

	s.deliver(ctx, &u, t, invitedBy, req.Email, req.CustomMessage)

	return &u, nil
}

// assignRoles grants the invitee's roles: explicit role ids when given
// (unknown ids are skipped, not fatal), the default USER role otherwise, and
// ADMIN on top for tenant admins.
func (s *Service) assignRoles(ctx context.Context, u *user.User, invitedBy kernel.UserID, req invitation.InviteRequest) {
	if len(req.RoleIDs) > 0 {
		for _, roleID := range req.RoleIDs {
			ro, err := s.roles.FindByID(ctx, roleID)
			if err != nil {
				// Unknown role ids do not fail the invitation.
				logx.WithField("role_id", roleID.String()).Warn("invitation role not found, skipping")
				continue
			}
			s.assign(ctx, u, ro, &invitedBy)
		}
	} else {
		if ro, err := s.roles.FindByName(ctx, role.NameUser); err != nil {
			logx.WithError(err).Warn("default USER role missing, invitee has no role")
		} else {
			s.assign(ctx, u, ro, nil)
		}
	}

	if req.TenantAdmin {
		if ro, err := s.roles.FindByName(ctx, role.NameAdmin); err != nil {
			logx.WithError(err).Warn("ADMIN role missing, tenant admin invitee has no admin role")
		} else {
			s.assign(ctx, u, ro, nil)
		}
	}
}

func (s *Service) assign(ctx context.Context, u *user.User, ro *role.Role, assignedBy *kernel.UserID) {
	if !ro.CanBeAssigned() {
		logx.WithField("role", ro.Name).Warn("role cannot be assigned, skipping")
		return
	}

	a := role.UserRoleAssignment{
		ID:         uuid.NewString(),
		UserID:     u.ID,
		RoleID:     ro.ID,
		AssignedAt: time.Now().UTC(),
		AssignedBy: assignedBy,
		Active:     true,
	}
	if err := s.roles.CreateAssignment(ctx, a); err != nil {
		logx.WithError(err).WithFields(logx.Fields{
			"user_id": u.ID.String(),
			"role":    ro.Name,
		}).Error("failed to assign invitation role")
		return
	}

	s.recorder.Record(ctx, audit.Entry{
		TenantID:    &u.TenantID,
		UserID:      &u.ID,
		EventType:   audit.EventRoleAssigned,
		Description: "Role assigned: " + ro.Name,
		Metadata:    map[string]interface{}{"role": ro.Name},
	})
}

// ============================================================================
// Accept
// ============================================================================

// Accept completes an invitation: verifies the password confirmation, looks
// the pending user up by unexpired token, sets the credential, clears the
// invitation state, and marks the email verified. A second accept with the
// same token fails because the token is already cleared.
func (s *Service) Accept(ctx context.Context, req invitation.AcceptRequest) (*user.User, error) {
	if req.Password == "" || req.Password != req.ConfirmPassword {
		return nil, invitation.ErrPasswordMismatch()
	}

	u, err := s.users.FindByInvitationToken(ctx, req.Token)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, invitation.ErrInvalidOrExpiredToken()
		}
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	u.AcceptInvitation(hash)
	if req.FirstName != nil {
		u.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		u.LastName = *req.LastName
	}

	if err := s.users.Update(ctx, *u); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		TenantID:    &u.TenantID,
		UserID:      &u.ID,
		EventType:   audit.EventInvitationAccepted,
		Description: "Invitation accepted by " + u.Username,
	})
	metricx.InvitationEvent("accepted")

	return u, nil
}

// ============================================================================
// Resend / Cancel
// ============================================================================

// Resend extends a pending invitation's expiry and re-triggers delivery.
// Returns false without error when the user is not pending; resending an
// accepted, cancelled, or expired invitation is a benign no-op.
func (s *Service) Resend(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, validity time.Duration) (bool, error) {
	u, err := s.users.FindByID(ctx, userID, tenantID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return false, nil
		}
		return false, err
	}
	if !u.IsPending() {
		return false, nil
	}

	if validity <= 0 {
		validity = s.cfg.DefaultValidity
	}
	expiresAt := time.Now().UTC().Add(validity)
	u.InvitationExpiresAt = &expiresAt
	u.UpdatedAt = time.Now().UTC()

	if err := s.users.Update(ctx, *u); err != nil {
		return false, err
	}

	t, err := s.tenants.FindByID(ctx, tenantID)
	if err == nil {
		var inviter kernel.UserID
		if u.InvitedBy != nil {
			inviter = *u.InvitedBy
		}
		s.deliver(ctx, u, t, inviter, u.Email, "")
	}

	s.recorder.Record(ctx, audit.Entry{
		TenantID:    &u.TenantID,
		UserID:      &u.ID,
		EventType:   audit.EventInvitationResent,
		Description: "Invitation resent to " + u.Username,
	})
	metricx.InvitationEvent("resent")

	return true, nil
}

// Cancel soft-deletes a pending invitee. Returns false without error when
// the user is not pending.
func (s *Service) Cancel(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) (bool, error) {
	u, err := s.users.FindByID(ctx, userID, tenantID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return false, nil
		}
		return false, err
	}
	if !u.IsPending() {
		return false, nil
	}

	if err := s.users.Deactivate(ctx, userID, tenantID); err != nil {
		return false, err
	}

	s.recorder.Record(ctx, audit.Entry{
		TenantID:    &u.TenantID,
		UserID:      &u.ID,
		EventType:   audit.EventInvitationCancelled,
		Description: "Invitation cancelled for " + u.Username,
	})
	metricx.InvitationEvent("cancelled")

	return true, nil
}

// ============================================================================
// Helpers
// ============================================================================

func (s *Service) deconflicted(
	ctx context.Context,
	requested, domain string,
	exists func(context.Context, string) (bool, error),
	transform func(context.Context, string, string) (string, error),
) (string, error) {
	taken, err := exists(ctx, requested)
	if err != nil {
		return "", err
	}
	if !taken {
		return requested, nil
	}
	return transform(ctx, requested, domain)
}

// deliver hands the invitation off to the notification collaborator.
// Fire-and-forget: enqueue failure is logged and never fails the invitation.
func (s *Service) deliver(ctx context.Context, u *user.User, t *tenant.Tenant, inviterID kernel.UserID, recipientEmail, customMessage string) {
	if s.notifier == nil {
		return
	}
	go func() {
		if err := s.notifier.NotifyInvited(context.WithoutCancel(ctx), u, t, inviterID, recipientEmail, customMessage); err != nil {
			logx.WithError(err).WithFields(logx.Fields{
				"user_id": u.ID.String(),
				"email":   recipientEmail,
			}).Error("invitation delivery failed")
		}
	}()
}

func newInvitationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errx.Wrap(err, "failed to generate invitation token", errx.TypeInternal)
	}
	return hex.EncodeToString(b), nil
}
