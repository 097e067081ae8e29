package invitationsrv_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/identra-io/identra/pkg/config"
	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/audit"
	"github.com/identra-io/identra/pkg/iam/invitation"
	"github.com/identra-io/identra/pkg/iam/invitation/invitationsrv"
	"github.com/identra-io/identra/pkg/iam/role"
	"github.com/identra-io/identra/pkg/iam/tenant"
	"github.com/identra-io/identra/pkg/iam/user"
	"github.com/identra-io/identra/pkg/kernel"
	"github.com/identra-io/identra/pkg/ptrx"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeUsers struct {
	user.UserRepository

	mu          sync.Mutex
	created     []user.User
	updated     []user.User
	deactivated []kernel.UserID
	byID        map[kernel.UserID]*user.User
	byToken     map[string]*user.User
	emails      map[string]bool
	usernames   map[string]bool
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		byID:      map[kernel.UserID]*user.User{},
		byToken:   map[string]*user.User{},
		emails:    map[string]bool{},
		usernames: map[string]bool{},
	}
}

func (f *fakeUsers) ExistsByEmailGlobal(_ context.Context, email string) (bool, error) {
	return f.emails[email], nil
}

func (f *fakeUsers) ExistsByUsernameGlobal(_ context.Context, username string) (bool, error) {
	return f.usernames[username], nil
}

func (f *fakeUsers) Create(_ context.Context, u user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, u)
	return nil
}

func (f *fakeUsers) Update(_ context.Context, u user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, u)
	return nil
}

func (f *fakeUsers) FindByID(_ context.Context, id kernel.UserID, tenantID kernel.TenantID) (*user.User, error) {
	if u, ok := f.byID[id]; ok && u.TenantID == tenantID {
		cp := *u
		return &cp, nil
	}
	return nil, user.ErrUserNotFound()
}

func (f *fakeUsers) FindByInvitationToken(_ context.Context, token string) (*user.User, error) {
	if u, ok := f.byToken[token]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, user.ErrUserNotFound()
}

func (f *fakeUsers) Deactivate(_ context.Context, id kernel.UserID, _ kernel.TenantID) error {
	f.deactivated = append(f.deactivated, id)
	return nil
}

func (f *fakeUsers) lastCreated(t *testing.T) user.User {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		t.Fatal("no user was created")
	}
	return f.created[len(f.created)-1]
}

type fakeTenants struct {
	tenant.TenantRepository
	t *tenant.Tenant
}

func (f *fakeTenants) FindByID(_ context.Context, id kernel.TenantID) (*tenant.Tenant, error) {
	if f.t != nil && f.t.ID == id {
		return f.t, nil
	}
	return nil, tenant.ErrTenantNotFound()
}

type fakeRoles struct {
	role.RoleRepository
	byID        map[kernel.RoleID]*role.Role
	byName      map[string]*role.Role
	assignments []role.UserRoleAssignment
}

func newFakeRoles() *fakeRoles {
	userRole := &role.Role{ID: "r-user", Name: role.NameUser, Permissions: []string{"documents:read"}, Active: true}
	adminRole := &role.Role{ID: "r-admin", Name: role.NameAdmin, Permissions: []string{"tenant:admin"}, Active: true}
	return &fakeRoles{
		byID:   map[kernel.RoleID]*role.Role{"r-user": userRole, "r-admin": adminRole},
		byName: map[string]*role.Role{role.NameUser: userRole, role.NameAdmin: adminRole},
	}
}

func (f *fakeRoles) FindByID(_ context.Context, id kernel.RoleID) (*role.Role, error) {
	if r, ok := f.byID[id]; ok {
		return r, nil
	}
	return nil, role.ErrRoleNotFound()
}

func (f *fakeRoles) FindByName(_ context.Context, name string) (*role.Role, error) {
	if r, ok := f.byName[name]; ok {
		return r, nil
	}
	return nil, role.ErrRoleNotFound()
}

func (f *fakeRoles) CreateAssignment(_ context.Context, a role.UserRoleAssignment) error {
	f.assignments = append(f.assignments, a)
	return nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }
func (fakeHasher) Compare(hash, plaintext string) bool  { return hash == "hashed:"+plaintext }

type recordingNotifier struct {
	delivered chan string
	fail      bool
}

func (n *recordingNotifier) NotifyInvited(_ context.Context, _ *user.User, _ *tenant.Tenant, _ kernel.UserID, recipientEmail, _ string) error {
	if n.delivered != nil {
		n.delivered <- recipientEmail
	}
	if n.fail {
		return errx.New("smtp unreachable", errx.TypeExternal)
	}
	return nil
}

// ============================================================================
// Fixture
// ============================================================================

const (
	tenantID  = kernel.TenantID("t-1")
	inviterID = kernel.UserID("u-admin")
)

type fixture struct {
	users    *fakeUsers
	tenants  *fakeTenants
	roles    *fakeRoles
	notifier *recordingNotifier
	sink     *audit.MemorySink
}

func newService(t *testing.T) (*invitationsrv.Service, *fixture) {
	t.Helper()

	f := &fixture{
		users: newFakeUsers(),
		tenants: &fakeTenants{t: &tenant.Tenant{
			ID: tenantID, Name: "Acme", Domain: "acme.test", ClientID: "tn-t-1", Active: true,
		}},
		roles:    newFakeRoles(),
		notifier: &recordingNotifier{delivered: make(chan string, 4)},
		sink:     audit.NewMemorySink(),
	}

	svc := invitationsrv.NewService(
		f.users, f.tenants, f.roles, fakeHasher{},
		invitation.NewSuffixDeconflictor(f.users),
		f.notifier,
		audit.NewRecorder(f.sink),
		config.InvitationConfig{DefaultValidity: 7 * 24 * time.Hour},
	)
	return svc, f
}

func (f *fixture) awaitDelivery(t *testing.T) string {
	t.Helper()
	select {
	case email := <-f.notifier.delivered:
		return email
	case <-time.After(2 * time.Second):
		t.Fatal("invitation was never delivered")
		return ""
	}
}

// ============================================================================
// Invite
// ============================================================================

func TestInvite_CreatesPendingUser(t *testing.T) {
	svc, f := newService(t)

	u, err := svc.Invite(context.Background(), tenantID, inviterID, invitation.InviteRequest{
		Email:    "bob@corp.test",
		Username: "bob",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if u.PasswordHash != nil || u.EmailVerified {
		t.Fatalf("invitee must be pending: %+v", u)
	}
	if u.InvitationToken == nil || len(*u.InvitationToken) != 64 {
		t.Fatalf("expected 32-byte hex token, got %v", u.InvitationToken)
	}
	if u.InvitationExpiresAt == nil || !u.InvitationExpiresAt.After(time.Now().Add(6*24*time.Hour)) {
		t.Fatalf("expected default 7d validity, got %v", u.InvitationExpiresAt)
	}
	if u.InvitedBy == nil || *u.InvitedBy != inviterID {
		t.Fatalf("inviter not recorded: %v", u.InvitedBy)
	}

	created := f.users.lastCreated(t)
	if created.Email != "bob@corp.test" || created.Username != "bob" {
		t.Fatalf("identifiers rewritten without collision: %s / %s", created.Email, created.Username)
	}

	// Default USER role assigned when no explicit role ids are given.
	if len(f.roles.assignments) != 1 || f.roles.assignments[0].RoleID != "r-user" {
		t.Fatalf("expected default USER assignment, got %+v", f.roles.assignments)
	}

	entries := f.sink.ByType(audit.EventUserCreated)
	if len(entries) != 1 || entries[0].Metadata["via_invitation"] != true {
		t.Fatalf("expected invitation audit entry, got %+v", entries)
	}

	if got := f.awaitDelivery(t); got != "bob@corp.test" {
		t.Fatalf("delivery must target the requested email, got %s", got)
	}
}

func TestInvite_DeconflictsTakenIdentifiers(t *testing.T) {
	svc, f := newService(t)
	f.users.emails["bob@corp.test"] = true
	f.users.usernames["bob"] = true

	u, err := svc.Invite(context.Background(), tenantID, inviterID, invitation.InviteRequest{
		Email:    "bob@corp.test",
		Username: "bob",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if u.Email != "bob+acme@corp.test" {
		t.Fatalf("expected plus-tagged email, got %s", u.Email)
	}
	if u.Username != "bob.acme" {
		t.Fatalf("expected dot-suffixed username, got %s", u.Username)
	}

	// The message still goes to the mailbox the inviter typed.
	if got := f.awaitDelivery(t); got != "bob@corp.test" {
		t.Fatalf("delivery must target the requested email, got %s", got)
	}
}

func TestInvite_DeconflictNumericFallback(t *testing.T) {
	svc, f := newService(t)
	f.users.emails["bob@corp.test"] = true
	f.users.emails["bob+acme@corp.test"] = true

	u, err := svc.Invite(context.Background(), tenantID, inviterID, invitation.InviteRequest{
		Email:    "bob@corp.test",
		Username: "bob",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Email != "bob+acme2@corp.test" {
		t.Fatalf("expected numeric fallback tag, got %s", u.Email)
	}
}

func TestInvite_ExplicitRolesUnknownSkipped(t *testing.T) {
	svc, f := newService(t)

	_, err := svc.Invite(context.Background(), tenantID, inviterID, invitation.InviteRequest{
		Email:    "bob@corp.test",
		Username: "bob",
		RoleIDs:  []kernel.RoleID{"r-admin", "r-ghost"},
	})
	if err != nil {
		t.Fatalf("unknown role id must not fail the invitation: %v", err)
	}

	if len(f.roles.assignments) != 1 || f.roles.assignments[0].RoleID != "r-admin" {
		t.Fatalf("expected only the known role assigned, got %+v", f.roles.assignments)
	}
}

func TestInvite_TenantAdminGetsAdminRole(t *testing.T) {
	svc, f := newService(t)

	u, err := svc.Invite(context.Background(), tenantID, inviterID, invitation.InviteRequest{
		Email:       "boss@corp.test",
		Username:    "boss",
		TenantAdmin: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !u.TenantAdmin {
		t.Fatal("tenant admin flag not carried")
	}

	// Default USER plus ADMIN.
	if len(f.roles.assignments) != 2 {
		t.Fatalf("expected USER and ADMIN assignments, got %+v", f.roles.assignments)
	}
}

func TestInvite_Validation(t *testing.T) {
	svc, _ := newService(t)

	for _, req := range []invitation.InviteRequest{
		{Email: "", Username: "bob"},
		{Email: "bob@corp.test", Username: ""},
	} {
		_, err := svc.Invite(context.Background(), tenantID, inviterID, req)
		var e *errx.Error
		if !errors.As(err, &e) || e.Code != "INVITATION_MISSING_FIELDS" {
			t.Fatalf("expected missing-fields, got %v", err)
		}
	}
}

func TestInvite_InactiveTenant(t *testing.T) {
	svc, f := newService(t)
	f.tenants.t.Active = false

	_, err := svc.Invite(context.Background(), tenantID, inviterID, invitation.InviteRequest{
		Email:    "bob@corp.test",
		Username: "bob",
	})
	if !errx.IsType(err, errx.TypeBusiness) {
		t.Fatalf("expected tenant-inactive, got %v", err)
	}
	if len(f.users.created) != 0 {
		t.Fatal("no user may be created for an inactive tenant")
	}
}

func TestInvite_DeliveryFailureDoesNotFail(t *testing.T) {
	svc, f := newService(t)
	f.notifier.fail = true

	_, err := svc.Invite(context.Background(), tenantID, inviterID, invitation.InviteRequest{
		Email:    "bob@corp.test",
		Username: "bob",
	})
	if err != nil {
		t.Fatalf("delivery failure must not surface: %v", err)
	}
	f.awaitDelivery(t)
	if len(f.users.created) != 1 {
		t.Fatal("invitation must survive delivery failure")
	}
}

// ============================================================================
// Accept
// ============================================================================

func pendingUser(token string) *user.User {
	inviter := inviterID
	return &user.User{
		ID:                  "u-bob",
		TenantID:            tenantID,
		Username:            "bob",
		Email:               "bob@corp.test",
		Active:              true,
		InvitationToken:     &token,
		InvitationExpiresAt: ptrx.Time(time.Now().Add(24 * time.Hour)),
		InvitedBy:           &inviter,
	}
}

func TestAccept(t *testing.T) {
	svc, f := newService(t)
	f.users.byToken["tok-1"] = pendingUser("tok-1")

	u, err := svc.Accept(context.Background(), invitation.AcceptRequest{
		Token:           "tok-1",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
		FirstName:       ptrx.String("Robert"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if u.PasswordHash == nil || *u.PasswordHash != "hashed:hunter22" {
		t.Fatalf("credential not set: %v", u.PasswordHash)
	}
	if !u.EmailVerified || u.InvitationToken != nil || u.InvitationExpiresAt != nil {
		t.Fatalf("invitation state not cleared: %+v", u)
	}
	if u.FirstName != "Robert" {
		t.Fatalf("name override not applied: %s", u.FirstName)
	}

	if len(f.users.updated) != 1 {
		t.Fatalf("expected persisted update, got %d", len(f.users.updated))
	}
	if n := len(f.sink.ByType(audit.EventInvitationAccepted)); n != 1 {
		t.Fatalf("expected INVITATION_ACCEPTED entry, got %d", n)
	}
}

func TestAccept_PasswordMismatch(t *testing.T) {
	svc, f := newService(t)
	f.users.byToken["tok-1"] = pendingUser("tok-1")

	cases := []invitation.AcceptRequest{
		{Token: "tok-1", Password: "a", ConfirmPassword: "b"},
		{Token: "tok-1", Password: "", ConfirmPassword: ""},
	}
	for _, req := range cases {
		_, err := svc.Accept(context.Background(), req)
		var e *errx.Error
		if !errors.As(err, &e) || e.Code != "INVITATION_PASSWORD_MISMATCH" {
			t.Fatalf("expected password-mismatch, got %v", err)
		}
	}
}

func TestAccept_UnknownToken(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Accept(context.Background(), invitation.AcceptRequest{
		Token:           "tok-missing",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
	})
	var e *errx.Error
	if !errors.As(err, &e) || e.Code != "INVITATION_INVALID_OR_EXPIRED_TOKEN" {
		t.Fatalf("expected invalid-token, got %v", err)
	}
}

func TestAccept_TokenIsSingleUse(t *testing.T) {
	svc, f := newService(t)
	f.users.byToken["tok-1"] = pendingUser("tok-1")

	u, err := svc.Accept(context.Background(), invitation.AcceptRequest{
		Token: "tok-1", Password: "hunter22", ConfirmPassword: "hunter22",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The accepted state has no token; a second lookup must miss.
	delete(f.users.byToken, "tok-1")
	f.users.byID[u.ID] = u

	_, err = svc.Accept(context.Background(), invitation.AcceptRequest{
		Token: "tok-1", Password: "other", ConfirmPassword: "other",
	})
	var e *errx.Error
	if !errors.As(err, &e) || e.Code != "INVITATION_INVALID_OR_EXPIRED_TOKEN" {
		t.Fatalf("expected invalid-token on reuse, got %v", err)
	}
}

// ============================================================================
// Resend / Cancel
// ============================================================================

func TestResend(t *testing.T) {
	svc, f := newService(t)
	u := pendingUser("tok-1")
	u.InvitationExpiresAt = ptrx.Time(time.Now().Add(time.Hour))
	f.users.byID[u.ID] = u

	ok, err := svc.Resend(context.Background(), u.ID, tenantID, 0)
	if err != nil || !ok {
		t.Fatalf("expected resend to succeed, got ok=%v err=%v", ok, err)
	}

	if len(f.users.updated) != 1 {
		t.Fatalf("expected expiry update, got %d", len(f.users.updated))
	}
	if !f.users.updated[0].InvitationExpiresAt.After(time.Now().Add(6 * 24 * time.Hour)) {
		t.Fatalf("expiry not extended to default validity: %v", f.users.updated[0].InvitationExpiresAt)
	}
	if n := len(f.sink.ByType(audit.EventInvitationResent)); n != 1 {
		t.Fatalf("expected INVITATION_RESENT entry, got %d", n)
	}
	if got := f.awaitDelivery(t); got != u.Email {
		t.Fatalf("resend must deliver to stored email, got %s", got)
	}
}

func TestResend_NonPendingIsNoOp(t *testing.T) {
	svc, f := newService(t)

	accepted := pendingUser("tok-1")
	accepted.AcceptInvitation("hashed:x")
	f.users.byID[accepted.ID] = accepted

	ok, err := svc.Resend(context.Background(), accepted.ID, tenantID, 0)
	if err != nil || ok {
		t.Fatalf("expected benign no-op, got ok=%v err=%v", ok, err)
	}

	ok, err = svc.Resend(context.Background(), "u-missing", tenantID, 0)
	if err != nil || ok {
		t.Fatalf("unknown user must be a no-op, got ok=%v err=%v", ok, err)
	}
}

func TestResend_ExpiredInvitationIsNoOp(t *testing.T) {
	svc, f := newService(t)
	u := pendingUser("tok-1")
	u.InvitationExpiresAt = ptrx.Time(time.Now().Add(-time.Hour))
	f.users.byID[u.ID] = u

	ok, err := svc.Resend(context.Background(), u.ID, tenantID, 0)
	if err != nil || ok {
		t.Fatalf("expired invitation must be a no-op, got ok=%v err=%v", ok, err)
	}
}

func TestCancel(t *testing.T) {
	svc, f := newService(t)
	u := pendingUser("tok-1")
	f.users.byID[u.ID] = u

	ok, err := svc.Cancel(context.Background(), u.ID, tenantID)
	if err != nil || !ok {
		t.Fatalf("expected cancel to succeed, got ok=%v err=%v", ok, err)
	}
	if len(f.users.deactivated) != 1 || f.users.deactivated[0] != u.ID {
		t.Fatalf("expected soft delete, got %v", f.users.deactivated)
	}
	if n := len(f.sink.ByType(audit.EventInvitationCancelled)); n != 1 {
		t.Fatalf("expected INVITATION_CANCELLED entry, got %d", n)
	}
}

func TestCancel_NonPendingIsNoOp(t *testing.T) {
	svc, f := newService(t)
	accepted := pendingUser("tok-1")
	accepted.AcceptInvitation("hashed:x")
	f.users.byID[accepted.ID] = accepted

	ok, err := svc.Cancel(context.Background(), accepted.ID, tenantID)
	if err != nil || ok {
		t.Fatalf("expected benign no-op, got ok=%v err=%v", ok, err)
	}
	if len(f.users.deactivated) != 0 {
		t.Fatal("non-pending user must not be deactivated")
	}
}
