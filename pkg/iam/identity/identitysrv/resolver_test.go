package identitysrv_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/audit"
	"github.com/identra-io/identra/pkg/iam/authority"
	"github.com/identra-io/identra/pkg/iam/identity"
	"github.com/identra-io/identra/pkg/iam/identity/identitysrv"
	"github.com/identra-io/identra/pkg/iam/role"
	"github.com/identra-io/identra/pkg/iam/tenant"
	"github.com/identra-io/identra/pkg/iam/user"
	"github.com/identra-io/identra/pkg/kernel"
	"github.com/identra-io/identra/pkg/ptrx"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeTenants struct {
	tenant.TenantRepository
	byID       map[kernel.TenantID]*tenant.Tenant
	byClientID map[string]*tenant.Tenant
	findErr    error
}

func (f *fakeTenants) FindByID(_ context.Context, id kernel.TenantID) (*tenant.Tenant, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if t, ok := f.byID[id]; ok {
		return t, nil
	}
	return nil, tenant.ErrTenantNotFound()
}

func (f *fakeTenants) FindByClientID(_ context.Context, clientID string) (*tenant.Tenant, error) {
	if t, ok := f.byClientID[clientID]; ok {
		return t, nil
	}
	return nil, tenant.ErrTenantNotFound()
}

type fakeUsers struct {
	user.UserRepository
	byUsername  map[string]*user.User
	byEmail     map[string]*user.User
	byID        map[kernel.UserID]*user.User
	tenantAdmin *user.User
	findErr     error

	logins       []kernel.UserID
	failedLogins []kernel.UserID
	updated      []user.User
}

func (f *fakeUsers) FindByUsername(_ context.Context, username string, tenantID kernel.TenantID) (*user.User, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if u, ok := f.byUsername[username]; ok && u.TenantID == tenantID {
		return u, nil
	}
	return nil, user.ErrUserNotFound()
}

func (f *fakeUsers) FindByEmailGlobal(_ context.Context, email string) (*user.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, user.ErrUserNotFound()
}

func (f *fakeUsers) FindByUsernameGlobal(_ context.Context, username string) (*user.User, error) {
	if u, ok := f.byUsername[username]; ok {
		return u, nil
	}
	return nil, user.ErrUserNotFound()
}

func (f *fakeUsers) FindByID(_ context.Context, id kernel.UserID, tenantID kernel.TenantID) (*user.User, error) {
	if u, ok := f.byID[id]; ok && u.TenantID == tenantID {
		return u, nil
	}
	return nil, user.ErrUserNotFound()
}

func (f *fakeUsers) FindFirstTenantAdmin(_ context.Context, tenantID kernel.TenantID) (*user.User, error) {
	if f.tenantAdmin != nil && f.tenantAdmin.TenantID == tenantID {
		return f.tenantAdmin, nil
	}
	return nil, user.ErrUserNotFound()
}

func (f *fakeUsers) RecordLogin(_ context.Context, id kernel.UserID) error {
	f.logins = append(f.logins, id)
	return nil
}

func (f *fakeUsers) RecordFailedLogin(_ context.Context, id kernel.UserID) error {
	f.failedLogins = append(f.failedLogins, id)
	return nil
}

func (f *fakeUsers) Update(_ context.Context, u user.User) error {
	f.updated = append(f.updated, u)
	return nil
}

type fakeRoles struct {
	role.RoleRepository
	assignments map[kernel.UserID][]role.AssignmentWithRole
	listErr     error
}

func (f *fakeRoles) ListAssignmentsWithRoles(_ context.Context, userID kernel.UserID) ([]role.AssignmentWithRole, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.assignments[userID], nil
}

// ============================================================================
// Fixtures
// ============================================================================

const (
	tenantID = kernel.TenantID("t-1")
	userID   = kernel.UserID("u-1")
)

func activeTenant() *tenant.Tenant {
	return &tenant.Tenant{
		ID:       tenantID,
		Name:     "Acme",
		Domain:   "acme.test",
		ClientID: "tn-t-1",
		Active:   true,
	}
}

func eligibleUser() *user.User {
	return &user.User{
		ID:            userID,
		TenantID:      tenantID,
		Username:      "alice",
		Email:         "alice@acme.test",
		PasswordHash:  ptrx.String("$2a$10$hash"),
		Active:        true,
		EmailVerified: true,
	}
}

func viewerAssignment() []role.AssignmentWithRole {
	return []role.AssignmentWithRole{{
		Assignment: role.UserRoleAssignment{ID: "a1", UserID: userID, Active: true},
		Role:       role.Role{Name: "VIEWER", Permissions: []string{"documents:read"}, Active: true},
	}}
}

type fixture struct {
	tenants *fakeTenants
	users   *fakeUsers
	roles   *fakeRoles
	sink    *audit.MemorySink
}

func newResolver(t *testing.T, lockoutThreshold int) (*identitysrv.Resolver, *fixture) {
	t.Helper()

	f := &fixture{
		tenants: &fakeTenants{
			byID:       map[kernel.TenantID]*tenant.Tenant{},
			byClientID: map[string]*tenant.Tenant{},
		},
		users: &fakeUsers{
			byUsername: map[string]*user.User{},
			byEmail:    map[string]*user.User{},
			byID:       map[kernel.UserID]*user.User{},
		},
		roles: &fakeRoles{assignments: map[kernel.UserID][]role.AssignmentWithRole{}},
		sink:  audit.NewMemorySink(),
	}

	r := identitysrv.NewResolver(f.tenants, f.users, f.roles, audit.NewRecorder(f.sink), lockoutThreshold)
	return r, f
}

func (f *fixture) seed(t *tenant.Tenant, u *user.User, assignments []role.AssignmentWithRole) {
	if t != nil {
		f.tenants.byID[t.ID] = t
		f.tenants.byClientID[t.ClientID] = t
	}
	if u != nil {
		f.users.byUsername[u.Username] = u
		f.users.byEmail[u.Email] = u
		f.users.byID[u.ID] = u
		f.roles.assignments[u.ID] = assignments
	}
}

var meta = kernel.RequestMeta{IP: "203.0.113.7", UserAgent: "test-agent"}

// ============================================================================
// Strict mode
// ============================================================================

func TestResolveByTenantAndUsername_Success(t *testing.T) {
	r, f := newResolver(t, 0)
	f.seed(activeTenant(), eligibleUser(), viewerAssignment())

	ident, err := r.ResolveByTenantAndUsername(context.Background(), tenantID, "alice", meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ident.User.ID != userID || ident.Tenant.ID != tenantID {
		t.Fatalf("wrong identity resolved: %+v", ident)
	}
	if !ident.HasAuthority("role:VIEWER") || !ident.HasAuthority("documents:read") {
		t.Fatalf("expected aggregated authorities, got %v", ident.Authorities.Values())
	}

	if len(f.users.logins) != 1 || f.users.logins[0] != userID {
		t.Fatalf("expected login recorded, got %v", f.users.logins)
	}

	success := f.sink.ByType(audit.EventLoginSuccess)
	if len(success) != 1 {
		t.Fatalf("expected 1 LOGIN_SUCCESS entry, got %d", len(success))
	}
	if success[0].IPAddress != meta.IP || success[0].UserAgent != meta.UserAgent {
		t.Fatalf("request meta not propagated: %+v", success[0])
	}
}

func TestResolveByTenantAndUsername_TenantAdminTokens(t *testing.T) {
	r, f := newResolver(t, 0)
	u := eligibleUser()
	u.TenantAdmin = true
	f.seed(activeTenant(), u, nil)

	ident, err := r.ResolveByTenantAndUsername(context.Background(), tenantID, "alice", meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ident.HasAuthority(authority.TenantAdminRole) || !ident.HasAuthority(authority.TenantAdminPermission) {
		t.Fatalf("expected tenant admin tokens, got %v", ident.Authorities.Values())
	}
}

func TestResolveByTenantAndUsername_WrongTenant(t *testing.T) {
	r, f := newResolver(t, 0)
	other := &tenant.Tenant{ID: "t-2", ClientID: "tn-t-2", Active: true}
	f.seed(activeTenant(), eligibleUser(), nil)
	f.tenants.byID[other.ID] = other

	// alice exists, but not in t-2: strict mode scopes the lookup.
	_, err := r.ResolveByTenantAndUsername(context.Background(), "t-2", "alice", meta)
	if !errx.IsType(err, errx.TypeNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}

	if n := len(f.sink.ByType(audit.EventLoginFailed)); n != 1 {
		t.Fatalf("expected exactly 1 LOGIN_FAILED entry, got %d", n)
	}
}

func TestResolveByTenantAndUsername_InactiveTenantFailsClosed(t *testing.T) {
	r, f := newResolver(t, 0)
	tn := activeTenant()
	tn.Active = false
	f.seed(tn, eligibleUser(), nil)

	_, err := r.ResolveByTenantAndUsername(context.Background(), tenantID, "alice", meta)
	if !errx.IsType(err, errx.TypeBusiness) {
		t.Fatalf("expected tenant-inactive error, got %v", err)
	}

	failed := f.sink.ByType(audit.EventLoginFailed)
	if len(failed) != 1 || failed[0].Metadata["reason"] != "tenant-inactive" {
		t.Fatalf("expected single tenant-inactive failure entry, got %+v", failed)
	}
}

func TestResolveByTenantAndUsername_IneligibleAccount(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*user.User)
		reason string
	}{
		{"deactivated", func(u *user.User) { u.Active = false }, identity.ReasonDeactivated},
		{"unverified", func(u *user.User) { u.EmailVerified = false }, identity.ReasonUnverified},
		{"locked", func(u *user.User) { u.Locked = true }, identity.ReasonLocked},
		{"expired", func(u *user.User) { u.PasswordExpiresAt = ptrx.Time(time.Now().Add(-time.Hour)) }, identity.ReasonExpired},
		{"pending invitee", func(u *user.User) { u.PasswordHash = nil }, identity.ReasonNoCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, f := newResolver(t, 0)
			u := eligibleUser()
			tt.mutate(u)
			f.seed(activeTenant(), u, nil)

			_, err := r.ResolveByTenantAndUsername(context.Background(), tenantID, "alice", meta)

			var e *errx.Error
			if !errors.As(err, &e) || e.Code != "IDENTITY_ACCOUNT_UNAVAILABLE" {
				t.Fatalf("expected account-unavailable, got %v", err)
			}
			if e.Details["reason"] != tt.reason {
				t.Fatalf("expected reason %q, got %v", tt.reason, e.Details["reason"])
			}

			failed := f.sink.ByType(audit.EventLoginFailed)
			if len(failed) != 1 || failed[0].Metadata["reason"] != tt.reason {
				t.Fatalf("expected single failure entry with reason %q, got %+v", tt.reason, failed)
			}

			if len(f.users.failedLogins) != 1 {
				t.Fatalf("expected failed login bookkeeping, got %v", f.users.failedLogins)
			}
		})
	}
}

func TestResolve_LockoutAtThreshold(t *testing.T) {
	r, f := newResolver(t, 3)
	u := eligibleUser()
	u.EmailVerified = false
	u.FailedLogins = 2
	f.seed(activeTenant(), u, nil)

	_, err := r.ResolveByTenantAndUsername(context.Background(), tenantID, "alice", meta)
	if err == nil {
		t.Fatal("expected failure")
	}

	if len(f.users.updated) != 1 || !f.users.updated[0].Locked {
		t.Fatalf("expected account locked at threshold, got %+v", f.users.updated)
	}
}

func TestResolve_InfraFailureIsGeneric(t *testing.T) {
	r, f := newResolver(t, 0)
	f.seed(activeTenant(), nil, nil)
	f.users.findErr = errx.New("connection refused", errx.TypeInternal)

	_, err := r.ResolveByTenantAndUsername(context.Background(), tenantID, "alice", meta)

	var e *errx.Error
	if !errors.As(err, &e) || e.Code != "IDENTITY_ACCOUNT_UNAVAILABLE" {
		t.Fatalf("expected generic account-unavailable, got %v", err)
	}
	if e.Details["reason"] != "unavailable" {
		t.Fatalf("internal detail leaked: %v", e.Details)
	}

	failed := f.sink.ByType(audit.EventLoginFailed)
	if len(failed) != 1 {
		t.Fatalf("expected audit entry for infra failure, got %d", len(failed))
	}
}

// ============================================================================
// Loose mode
// ============================================================================

func TestResolveGlobally_EmailSelectsEmailLookup(t *testing.T) {
	r, f := newResolver(t, 0)
	f.seed(activeTenant(), eligibleUser(), viewerAssignment())

	ident, err := r.ResolveGlobally(context.Background(), "alice@acme.test", meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident.Tenant.ID != tenantID {
		t.Fatalf("tenant not derived from match: %+v", ident.Tenant)
	}
}

func TestResolveGlobally_UsernameLookup(t *testing.T) {
	r, f := newResolver(t, 0)
	f.seed(activeTenant(), eligibleUser(), nil)

	ident, err := r.ResolveGlobally(context.Background(), "alice", meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident.User.Username != "alice" {
		t.Fatalf("wrong user: %+v", ident.User)
	}
}

func TestResolveGlobally_UnknownIdentifier(t *testing.T) {
	r, f := newResolver(t, 0)
	f.seed(activeTenant(), eligibleUser(), nil)

	_, err := r.ResolveGlobally(context.Background(), "nobody@acme.test", meta)
	if !errx.IsType(err, errx.TypeNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if n := len(f.sink.ByType(audit.EventLoginFailed)); n != 1 {
		t.Fatalf("expected 1 LOGIN_FAILED, got %d", n)
	}
}

func TestResolveGlobally_InactiveOwningTenant(t *testing.T) {
	r, f := newResolver(t, 0)
	tn := activeTenant()
	tn.Active = false
	f.seed(tn, eligibleUser(), nil)

	_, err := r.ResolveGlobally(context.Background(), "alice@acme.test", meta)
	if !errx.IsType(err, errx.TypeBusiness) {
		t.Fatalf("expected tenant-inactive, got %v", err)
	}
}

// ============================================================================
// Revalidation
// ============================================================================

func TestResolveByID(t *testing.T) {
	r, f := newResolver(t, 0)
	f.seed(activeTenant(), eligibleUser(), viewerAssignment())

	ident, ok := r.ResolveByID(context.Background(), userID, tenantID)
	if !ok {
		t.Fatal("expected successful revalidation")
	}
	if !ident.HasAuthority("documents:read") {
		t.Fatalf("expected authorities, got %v", ident.Authorities.Values())
	}

	// Revalidation is silent: no audit entries at all.
	if n := len(f.sink.Entries()); n != 0 {
		t.Fatalf("expected no audit entries, got %d", n)
	}
}

func TestResolveByID_FailuresCollapseToFalse(t *testing.T) {
	r, f := newResolver(t, 0)
	u := eligibleUser()
	u.Locked = true
	f.seed(activeTenant(), u, nil)

	if _, ok := r.ResolveByID(context.Background(), userID, tenantID); ok {
		t.Fatal("locked account must not revalidate")
	}
	if _, ok := r.ResolveByID(context.Background(), "u-unknown", tenantID); ok {
		t.Fatal("unknown user must not revalidate")
	}
	if n := len(f.sink.Entries()); n != 0 {
		t.Fatalf("expected no audit entries, got %d", n)
	}
}

// ============================================================================
// Service credentials
// ============================================================================

func TestResolveForServiceCredentials(t *testing.T) {
	r, f := newResolver(t, 0)
	admin := eligibleUser()
	admin.TenantAdmin = true
	f.seed(activeTenant(), admin, nil)
	f.users.tenantAdmin = admin

	ident, err := r.ResolveForServiceCredentials(context.Background(), "tn-t-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ident.User.ID != admin.ID {
		t.Fatalf("expected first tenant admin as principal, got %+v", ident.User)
	}
	if !ident.HasAuthority(authority.TenantAdminPermission) {
		t.Fatalf("expected admin authority, got %v", ident.Authorities.Values())
	}
}

func TestResolveForServiceCredentials_NoAdmin(t *testing.T) {
	r, f := newResolver(t, 0)
	f.seed(activeTenant(), nil, nil)

	_, err := r.ResolveForServiceCredentials(context.Background(), "tn-t-1")

	var e *errx.Error
	if !errors.As(err, &e) || e.Code != "IDENTITY_NO_TENANT_ADMIN" {
		t.Fatalf("expected NO_TENANT_ADMIN, got %v", err)
	}
}

func TestResolveForServiceCredentials_InactiveTenant(t *testing.T) {
	r, f := newResolver(t, 0)
	tn := activeTenant()
	tn.Active = false
	f.seed(tn, nil, nil)

	_, err := r.ResolveForServiceCredentials(context.Background(), "tn-t-1")
	if !errx.IsType(err, errx.TypeBusiness) {
		t.Fatalf("expected tenant-inactive, got %v", err)
	}
}
