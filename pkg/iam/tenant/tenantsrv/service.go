package tenantsrv

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/audit"
	"github.com/identra-io/identra/pkg/iam/role"
	"github.com/identra-io/identra/pkg/iam/tenant"
	"github.com/identra-io/identra/pkg/iam/user"
	"github.com/identra-io/identra/pkg/kernel"
	"github.com/identra-io/identra/pkg/logx"
)

// DescriptorInvalidator drops any derived OAuth2 client configuration for a
// tenant whose settings changed.
type DescriptorInvalidator interface {
	Invalidate(clientID string)
}

// Service provisions and manages tenants. Provisioning bootstraps the first
// tenant admin so a fresh tenant is never left without an administrator.
type Service struct {
	tenants     tenant.TenantRepository
	users       user.UserRepository
	roles       role.RoleRepository
	hasher      user.PasswordHasher
	recorder    *audit.Recorder
	invalidator DescriptorInvalidator
}

// NewService constructs the tenant service. invalidator may be nil when no
// derived-configuration cache is wired.
func NewService(
	tenants tenant.TenantRepository,
	users user.UserRepository,
	roles role.RoleRepository,
	hasher user.PasswordHasher,
	recorder *audit.Recorder,
	invalidator DescriptorInvalidator,
) *Service {
	return &Service{
		tenants:     tenants,
		users:       users,
		roles:       roles,
		hasher:      hasher,
		recorder:    recorder,
		invalidator: invalidator,
	}
}

// ProvisionResult carries the created tenant, its bootstrap admin, and the
// client secret in plaintext. The secret is shown exactly once; only its
// hash is stored.
type ProvisionResult struct {
	Tenant       *tenant.Tenant
	Admin        *user.User
	ClientSecret string
}

// Provision creates a tenant together with its first admin user. The OAuth2
// client identifier is derived from the tenant id, never assigned.
func (s *Service) Provision(ctx context.Context, req tenant.CreateRequest) (*ProvisionResult, error) {
	domain := strings.ToLower(strings.TrimSpace(req.Domain))
	if domain == "" || strings.ContainsAny(domain, " /@") {
		return nil, tenant.ErrInvalidDomain().WithDetail("domain", req.Domain)
	}
	if req.Name == "" || req.AdminEmail == "" || req.AdminUsername == "" || req.AdminPassword == "" {
		return nil, errx.New("name, admin email, username and password are required", errx.TypeValidation)
	}

	exists, err := s.tenants.ExistsByDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, tenant.ErrTenantAlreadyExists().WithDetail("domain", domain)
	}

	secret, err := newClientSecret()
	if err != nil {
		return nil, err
	}
	secretHash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	id := kernel.NewTenantID(uuid.NewString())

	t := tenant.Tenant{
		ID:               id,
		Name:             req.Name,
		Domain:           domain,
		ClientID:         tenant.DeriveClientID(id),
		ClientSecretHash: secretHash,
		RedirectURIs:     req.RedirectURIs,
		Scopes:           req.Scopes,
		Active:           true,
		PlanID:           req.PlanID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.tenants.Create(ctx, t); err != nil {
		return nil, err
	}

	admin, err := s.bootstrapAdmin(ctx, &t, req)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		TenantID:    &t.ID,
		UserID:      &admin.ID,
		EventType:   audit.EventTenantCreated,
		Description: "Tenant provisioned: " + t.Name,
		Metadata: map[string]interface{}{
			"domain":    t.Domain,
			"client_id": t.ClientID,
			"plan_id":   t.PlanID,
		},
	})

	return &ProvisionResult{Tenant: &t, Admin: admin, ClientSecret: secret}, nil
}

// bootstrapAdmin creates the first admin user of a fresh tenant: active,
// email pre-verified, with the ADMIN role when it exists.
func (s *Service) bootstrapAdmin(ctx context.Context, t *tenant.Tenant, req tenant.CreateRequest) (*user.User, error) {
	hash, err := s.hasher.Hash(req.AdminPassword)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	u := user.User{
		ID:            kernel.NewUserID(uuid.NewString()),
		TenantID:      t.ID,
		Username:      req.AdminUsername,
		Email:         req.AdminEmail,
		PasswordHash:  &hash,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Active:        true,
		TenantAdmin:   true,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	if ro, err := s.roles.FindByName(ctx, role.NameAdmin); err != nil {
		logx.WithError(err).WithField("tenant_id", t.ID.String()).
			Warn("ADMIN role missing, bootstrap admin relies on tenant-admin flag only")
	} else if ro.CanBeAssigned() {
		a := role.UserRoleAssignment{
			ID:         uuid.NewString(),
			UserID:     u.ID,
			RoleID:     ro.ID,
			AssignedAt: now,
			Active:     true,
		}
		if err := s.roles.CreateAssignment(ctx, a); err != nil {
			logx.WithError(err).WithField("user_id", u.ID.String()).
				Error("failed to assign ADMIN role to bootstrap admin")
		} else {
			s.recorder.Record(ctx, audit.Entry{
				TenantID:    &t.ID,
				UserID:      &u.ID,
				EventType:   audit.EventRoleAssigned,
				Description: "Role assigned: " + ro.Name,
				Metadata:    map[string]interface{}{"role": ro.Name},
			})
		}
	}

	s.recorder.Record(ctx, audit.Entry{
		TenantID:    &t.ID,
		UserID:      &u.ID,
		EventType:   audit.EventUserCreated,
		Description: "Bootstrap admin created: " + u.Username,
	})

	return &u, nil
}

// Update applies the mutable tenant settings and invalidates any derived
// client configuration so the next materialization sees fresh state.
func (s *Service) Update(ctx context.Context, tenantID kernel.TenantID, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.RedirectURIs != nil {
		t.RedirectURIs = req.RedirectURIs
	}
	if req.Scopes != nil {
		t.Scopes = req.Scopes
	}
	if req.PlanID != nil {
		t.PlanID = *req.PlanID
	}
	t.UpdatedAt = time.Now().UTC()

	if err := s.tenants.Update(ctx, *t); err != nil {
		return nil, err
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(t.ClientID)
	}

	return t, nil
}

// Deactivate flips a tenant inactive. Resolution and client materialization
// for the tenant fail closed from this point on.
func (s *Service) Deactivate(ctx context.Context, tenantID kernel.TenantID) error {
	t, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return err
	}

	if err := s.tenants.Deactivate(ctx, tenantID); err != nil {
		return err
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(t.ClientID)
	}

	s.recorder.Record(ctx, audit.Entry{
		TenantID:    &t.ID,
		EventType:   audit.EventTenantDeactivated,
		Description: "Tenant deactivated: " + t.Name,
	})

	return nil
}

func newClientSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", errx.Wrap(err, "failed to generate client secret", errx.TypeInternal)
	}
	return hex.EncodeToString(b), nil
}
