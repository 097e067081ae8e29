package invitation

import (
	"context"
	"net/http"
	"time"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/tenant"
	"github.com/identra-io/identra/pkg/iam/user"
	"github.com/identra-io/identra/pkg/kernel"
)

// ============================================================================
// Requests
// ============================================================================

// InviteRequest describes an invitation to create a pending account.
type InviteRequest struct {
	Email       string          `json:"email"`
	Username    string          `json:"username"`
	FirstName   string          `json:"first_name,omitempty"`
	LastName    string          `json:"last_name,omitempty"`
	TenantAdmin bool            `json:"tenant_admin,omitempty"`
	RoleIDs     []kernel.RoleID `json:"role_ids,omitempty"`

	// Validity is the invitation window. Zero selects the configured
	// default (7 days).
	Validity time.Duration `json:"validity,omitempty"`

	CustomMessage string `json:"custom_message,omitempty"`
}

// AcceptRequest completes an invitation: the invitee sets their credential
// and optionally overrides the name the inviter entered.
type AcceptRequest struct {
	Token           string  `json:"token"`
	Password        string  `json:"password"`
	ConfirmPassword string  `json:"confirm_password"`
	FirstName       *string `json:"first_name,omitempty"`
	LastName        *string `json:"last_name,omitempty"`
}

// ============================================================================
// Collaborator Ports
// ============================================================================

// Deconflictor rewrites a requested email or username into a globally unique
// variant when a collision is detected at invitation time. The result must
// not collide and must still resolve to the same mailbox intent for display;
// the exact transform is this collaborator's concern.
type Deconflictor interface {
	DeconflictEmail(ctx context.Context, requested, tenantDomain string) (string, error)
	DeconflictUsername(ctx context.Context, requested, tenantDomain string) (string, error)
}

// Notifier delivers the invitation message. Invocation is fire-and-forget:
// a delivery failure is logged and never rolls back the created invitation.
type Notifier interface {
	NotifyInvited(ctx context.Context, u *user.User, t *tenant.Tenant, inviterID kernel.UserID, recipientEmail, customMessage string) error
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("INVITATION")

var (
	CodeInvalidOrExpiredToken = ErrRegistry.Register("INVALID_OR_EXPIRED_TOKEN", errx.TypeValidation, http.StatusBadRequest, "Invalid or expired invitation token")
	CodePasswordMismatch      = ErrRegistry.Register("PASSWORD_MISMATCH", errx.TypeValidation, http.StatusBadRequest, "Password and confirmation do not match")
	CodeMissingFields         = ErrRegistry.Register("MISSING_FIELDS", errx.TypeValidation, http.StatusBadRequest, "Email and username are required")
)

func ErrInvalidOrExpiredToken() *errx.Error {
	return ErrRegistry.New(CodeInvalidOrExpiredToken)
}

func ErrPasswordMismatch() *errx.Error {
	return ErrRegistry.New(CodePasswordMismatch)
}

func ErrMissingFields() *errx.Error {
	return ErrRegistry.New(CodeMissingFields)
}
