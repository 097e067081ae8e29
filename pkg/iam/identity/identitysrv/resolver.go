package identitysrv

import (
	"context"
	"strings"
	"time"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/audit"
	"github.com/identra-io/identra/pkg/iam/authority"
	"github.com/identra-io/identra/pkg/iam/identity"
	"github.com/identra-io/identra/pkg/iam/role"
	"github.com/identra-io/identra/pkg/iam/tenant"
	"github.com/identra-io/identra/pkg/iam/user"
	"github.com/identra-io/identra/pkg/kernel"
	"github.com/identra-io/identra/pkg/logx"
	"github.com/identra-io/identra/pkg/metricx"
)

// Resolver answers "is this principal authenticatable, and what is their
// resolved identity" under both multi-tenancy models. Every failure on the
// strict and loose paths produces exactly one LOGIN_FAILED audit entry;
// infrastructure errors are logged in full and downgraded to a generic
// account-unavailable failure so internals never leak to the caller.
type Resolver struct {
	tenants  tenant.TenantRepository
	users    user.UserRepository
	roles    role.RoleRepository
	recorder *audit.Recorder

	// lockoutThreshold locks an account once its failed-login counter
	// reaches the threshold. Zero disables locking.
	lockoutThreshold int
}

// NewResolver constructs an identity resolver.
func NewResolver(
	tenants tenant.TenantRepository,
	users user.UserRepository,
	roles role.RoleRepository,
	recorder *audit.Recorder,
	lockoutThreshold int,
) *Resolver {
	return &Resolver{
		tenants:          tenants,
		users:            users,
		roles:            roles,
		recorder:         recorder,
		lockoutThreshold: lockoutThreshold,
	}
}

// ============================================================================
// Strict mode
// ============================================================================

// ResolveByTenantAndUsername resolves a principal inside an explicit tenant
// context: the tenant must exist and be active, the user is looked up by
// (username, tenant), and authenticatability is evaluated before the
// authority set is aggregated.
func (r *Resolver) ResolveByTenantAndUsername(ctx context.Context, tenantID kernel.TenantID, username string, meta kernel.RequestMeta) (*identity.ResolvedIdentity, error) {
	t, err := r.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			r.auditFailure(ctx, "strict", username, &tenantID, nil, meta, "tenant-not-found")
			return nil, err
		}
		return nil, r.infraFailure(ctx, "strict", username, &tenantID, nil, meta, err)
	}
	if !t.Active {
		r.auditFailure(ctx, "strict", username, &tenantID, nil, meta, "tenant-inactive")
		return nil, tenant.ErrTenantInactive().WithDetail("tenant_id", tenantID.String())
	}

	u, err := r.users.FindByUsername(ctx, username, tenantID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			r.auditFailure(ctx, "strict", username, &tenantID, nil, meta, "user-not-found")
			return nil, err
		}
		return nil, r.infraFailure(ctx, "strict", username, &tenantID, nil, meta, err)
	}

	return r.finishResolution(ctx, "strict", username, t, u, meta)
}

// ============================================================================
// Loose mode
// ============================================================================

// ResolveGlobally resolves a principal without tenant context. An identifier
// containing "@" is treated as an email, anything else as a username; the
// lookup spans all tenants and the owning tenant is derived from the match.
//
// Global email uniqueness is maintained procedurally by the invitation flow,
// not by a constraint. Should migrated data still hold duplicates, the
// repository resolves to the most recently created user.
func (r *Resolver) ResolveGlobally(ctx context.Context, identifier string, meta kernel.RequestMeta) (*identity.ResolvedIdentity, error) {
	var (
		u   *user.User
		err error
	)
	if strings.Contains(identifier, "@") {
		u, err = r.users.FindByEmailGlobal(ctx, identifier)
	} else {
		u, err = r.users.FindByUsernameGlobal(ctx, identifier)
	}
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			r.auditFailure(ctx, "loose", identifier, nil, nil, meta, "user-not-found")
			return nil, err
		}
		return nil, r.infraFailure(ctx, "loose", identifier, nil, nil, meta, err)
	}

	t, err := r.tenants.FindByID(ctx, u.TenantID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			r.auditFailure(ctx, "loose", identifier, &u.TenantID, &u.ID, meta, "tenant-not-found")
			return nil, err
		}
		return nil, r.infraFailure(ctx, "loose", identifier, &u.TenantID, &u.ID, meta, err)
	}
	if !t.Active {
		r.auditFailure(ctx, "loose", identifier, &u.TenantID, &u.ID, meta, "tenant-inactive")
		return nil, tenant.ErrTenantInactive().WithDetail("tenant_id", u.TenantID.String())
	}

	return r.finishResolution(ctx, "loose", identifier, t, u, meta)
}

// ============================================================================
// Revalidation
// ============================================================================

// ResolveByID revalidates a previously issued principal, typically during
// token introspection. Callers only need a boolean answer, so every failure
// collapses to (nil, false) and nothing is audited.
func (r *Resolver) ResolveByID(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID) (*identity.ResolvedIdentity, bool) {
	t, err := r.tenants.FindByID(ctx, tenantID)
	if err != nil || !t.Active {
		r.logLookupError(err, "resolve_by_id tenant lookup")
		return nil, false
	}

	u, err := r.users.FindByID(ctx, userID, tenantID)
	if err != nil {
		r.logLookupError(err, "resolve_by_id user lookup")
		return nil, false
	}

	if reason := identity.EvaluateAuthenticatability(u, time.Now()); reason != "" {
		return nil, false
	}

	assignments, err := r.roles.ListAssignmentsWithRoles(ctx, u.ID)
	if err != nil {
		r.logLookupError(err, "resolve_by_id assignment lookup")
		return nil, false
	}

	return &identity.ResolvedIdentity{
		User:        u,
		Tenant:      t,
		Authorities: authority.Aggregate(assignments, u.TenantAdmin, time.Now()),
	}, true
}

// ============================================================================
// Machine-to-machine
// ============================================================================

// ResolveForServiceCredentials resolves a tenant by its derived OAuth2 client
// identifier and returns the first tenant admin as the acting principal for
// client-credential flows.
func (r *Resolver) ResolveForServiceCredentials(ctx context.Context, clientID string) (*identity.ResolvedIdentity, error) {
	t, err := r.tenants.FindByClientID(ctx, clientID)
	if err != nil {
		metricx.LoginAttempt("service", "tenant-not-found")
		return nil, err
	}
	if !t.Active {
		metricx.LoginAttempt("service", "tenant-inactive")
		return nil, tenant.ErrTenantInactive().WithDetail("client_id", clientID)
	}

	admin, err := r.users.FindFirstTenantAdmin(ctx, t.ID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			metricx.LoginAttempt("service", "no-tenant-admin")
			return nil, identity.ErrNoTenantAdmin().WithDetail("tenant_id", t.ID.String())
		}
		metricx.LoginAttempt("service", "error")
		return nil, errx.Wrap(err, "service credential resolution failed", errx.TypeInternal)
	}

	assignments, err := r.roles.ListAssignmentsWithRoles(ctx, admin.ID)
	if err != nil {
		metricx.LoginAttempt("service", "error")
		return nil, errx.Wrap(err, "service credential resolution failed", errx.TypeInternal)
	}

	metricx.LoginAttempt("service", "success")
	return &identity.ResolvedIdentity{
		User:        admin,
		Tenant:      t,
		Authorities: authority.Aggregate(assignments, admin.TenantAdmin, time.Now()),
	}, nil
}

// ============================================================================
// Shared path
// ============================================================================

// finishResolution runs the authenticatability chain, aggregates authorities,
// and emits the success or failure audit event.
func (r *Resolver) finishResolution(ctx context.Context, mode, identifier string, t *tenant.Tenant, u *user.User, meta kernel.RequestMeta) (*identity.ResolvedIdentity, error) {
	now := time.Now()

	if reason := identity.EvaluateAuthenticatability(u, now); reason != "" {
		r.bookkeepFailure(ctx, u)
		r.auditFailure(ctx, mode, identifier, &u.TenantID, &u.ID, meta, reason)
		return nil, identity.ErrAccountUnavailable(reason)
	}

	assignments, err := r.roles.ListAssignmentsWithRoles(ctx, u.ID)
	if err != nil {
		return nil, r.infraFailure(ctx, mode, identifier, &u.TenantID, &u.ID, meta, err)
	}

	if err := r.users.RecordLogin(ctx, u.ID); err != nil {
		logx.WithError(err).WithField("user_id", u.ID.String()).Warn("failed to record login timestamp")
	}

	r.recorder.Record(ctx, audit.Entry{
		TenantID:    &u.TenantID,
		UserID:      &u.ID,
		EventType:   audit.EventLoginSuccess,
		Description: "Identity resolved for " + identifier,
		IPAddress:   meta.IP,
		UserAgent:   meta.UserAgent,
		Metadata:    map[string]interface{}{"mode": mode},
	})
	metricx.LoginAttempt(mode, "success")

	return &identity.ResolvedIdentity{
		User:        u,
		Tenant:      t,
		Authorities: authority.Aggregate(assignments, u.TenantAdmin, now),
	}, nil
}

// bookkeepFailure increments the user's failed-login counter and locks the
// account once the threshold is reached. Bookkeeping errors are logged only.
func (r *Resolver) bookkeepFailure(ctx context.Context, u *user.User) {
	if err := r.users.RecordFailedLogin(ctx, u.ID); err != nil {
		logx.WithError(err).WithField("user_id", u.ID.String()).Warn("failed to record failed login")
		return
	}

	if r.lockoutThreshold > 0 && !u.Locked && u.FailedLogins+1 >= r.lockoutThreshold {
		u.Locked = true
		u.UpdatedAt = time.Now().UTC()
		if err := r.users.Update(ctx, *u); err != nil {
			logx.WithError(err).WithField("user_id", u.ID.String()).Warn("failed to lock account")
		}
	}
}

// auditFailure writes the single mandatory LOGIN_FAILED entry for a failed
// resolution attempt.
func (r *Resolver) auditFailure(ctx context.Context, mode, identifier string, tenantID *kernel.TenantID, userID *kernel.UserID, meta kernel.RequestMeta, reason string) {
	r.recorder.Record(ctx, audit.Entry{
		TenantID:    tenantID,
		UserID:      userID,
		EventType:   audit.EventLoginFailed,
		Description: "Identity resolution failed for " + identifier,
		IPAddress:   meta.IP,
		UserAgent:   meta.UserAgent,
		Metadata: map[string]interface{}{
			"identifier": identifier,
			"mode":       mode,
			"reason":     reason,
		},
	})
	metricx.LoginAttempt(mode, reason)
}

// infraFailure logs a store failure with full detail, audits the attempt, and
// returns the generic account-unavailable error the caller may expose.
func (r *Resolver) infraFailure(ctx context.Context, mode, identifier string, tenantID *kernel.TenantID, userID *kernel.UserID, meta kernel.RequestMeta, cause error) error {
	logx.WithError(cause).WithFields(logx.Fields{
		"mode":       mode,
		"identifier": identifier,
	}).Error("identity resolution infrastructure failure")

	r.auditFailure(ctx, mode, identifier, tenantID, userID, meta, "unavailable")
	return identity.ErrAccountUnavailable("unavailable").WithCause(cause)
}

func (r *Resolver) logLookupError(err error, op string) {
	if err != nil && !errx.IsType(err, errx.TypeNotFound) {
		logx.WithError(err).Error(op + " failed")
	}
}
