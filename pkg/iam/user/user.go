package user

import (
	"net/http"
	"time"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/kernel"
)

// ============================================================================
// Entity
// ============================================================================

// User is a principal scoped to exactly one tenant. A user created through an
// invitation starts in a pending state: no password hash, invitation token
// set. Accepting the invitation sets the credential and clears the token.
type User struct {
	ID           kernel.UserID   `db:"id" json:"id"`
	TenantID     kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	Username     string          `db:"username" json:"username"`
	Email        string          `db:"email" json:"email"`
	PasswordHash *string         `db:"password_hash" json:"-"`
	FirstName    string          `db:"first_name" json:"first_name"`
	LastName     string          `db:"last_name" json:"last_name"`
	Active       bool            `db:"is_active" json:"is_active"`
	TenantAdmin  bool            `db:"is_tenant_admin" json:"is_tenant_admin"`

	EmailVerified     bool       `db:"email_verified" json:"email_verified"`
	Locked            bool       `db:"is_locked" json:"is_locked"`
	PasswordExpiresAt *time.Time `db:"password_expires_at" json:"password_expires_at,omitempty"`

	InvitationToken     *string        `db:"invitation_token" json:"-"`
	InvitationExpiresAt *time.Time     `db:"invitation_expires_at" json:"invitation_expires_at,omitempty"`
	InvitedBy           *kernel.UserID `db:"invited_by" json:"invited_by,omitempty"`

	LastLoginAt       *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	FailedLogins      int        `db:"failed_logins" json:"-"`
	LastFailedLoginAt *time.Time `db:"last_failed_login_at" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ============================================================================
// Domain Methods
// ============================================================================

// HasCredential reports whether the user has a usable password hash.
func (u *User) HasCredential() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// PasswordExpired reports whether the user's credential expired before now.
// A nil expiry means the credential never expires.
func (u *User) PasswordExpired(now time.Time) bool {
	return u.PasswordExpiresAt != nil && u.PasswordExpiresAt.Before(now)
}

// IsPending reports whether the user is a pending invitee: no credential yet
// and an unexpired invitation token.
func (u *User) IsPending() bool {
	return u.Active &&
		!u.HasCredential() &&
		u.InvitationToken != nil &&
		u.InvitationExpiresAt != nil &&
		u.InvitationExpiresAt.After(time.Now())
}

// AcceptInvitation transitions a pending user to active: credential set,
// token cleared, email verified. The two invitation fields are mutually
// cleared with the credential assignment.
func (u *User) AcceptInvitation(passwordHash string) {
	u.PasswordHash = &passwordHash
	u.InvitationToken = nil
	u.InvitationExpiresAt = nil
	u.EmailVerified = true
	u.UpdatedAt = time.Now().UTC()
}

// FullName returns the display name.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

// ============================================================================
// Ports (collaborators)
// ============================================================================

// PasswordHasher is the external password-hashing collaborator. The core
// never compares plaintext passwords; it only stores opaque hashes.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("USER")

var (
	CodeUserNotFound      = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "User not found")
	CodeUserAlreadyExists = ErrRegistry.Register("ALREADY_EXISTS", errx.TypeConflict, http.StatusConflict, "User with this username or email already exists")
	CodeUserInactive      = ErrRegistry.Register("INACTIVE", errx.TypeBusiness, http.StatusForbidden, "User is deactivated")
)

func ErrUserNotFound() *errx.Error {
	return ErrRegistry.New(CodeUserNotFound)
}

func ErrUserAlreadyExists() *errx.Error {
	return ErrRegistry.New(CodeUserAlreadyExists)
}

func ErrUserInactive() *errx.Error {
	return ErrRegistry.New(CodeUserInactive)
}
