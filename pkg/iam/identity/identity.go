package identity

import (
	"net/http"
	"time"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/authority"
	"github.com/identra-io/identra/pkg/iam/tenant"
	"github.com/identra-io/identra/pkg/iam/user"
)

// ============================================================================
// Resolved Identity
// ============================================================================

// ResolvedIdentity is the authorization-ready answer to "who is making this
// request": the user, their owning tenant, and the aggregated authority set.
// The protocol layer adapts this into whatever principal shape its framework
// expects; this core stays framework-agnostic.
type ResolvedIdentity struct {
	User        *user.User     `json:"user"`
	Tenant      *tenant.Tenant `json:"tenant"`
	Authorities authority.Set  `json:"authorities"`
}

// HasAuthority reports whether the identity carries the given token.
func (ri *ResolvedIdentity) HasAuthority(token string) bool {
	return ri.Authorities.Has(token)
}

// ============================================================================
// Authenticatability
// ============================================================================

// Unavailability reasons, reported in check order. The order is a stable
// contract: it feeds audit records and user-facing messaging.
const (
	ReasonDeactivated  = "deactivated"
	ReasonUnverified   = "unverified"
	ReasonLocked       = "locked"
	ReasonExpired      = "expired"
	ReasonNoCredential = "no-credential"
)

// EvaluateAuthenticatability runs the short-circuit eligibility chain:
// active, email verified, not locked, credential unexpired, credential
// present. It returns the first failing reason, or "" when the user can
// authenticate.
func EvaluateAuthenticatability(u *user.User, now time.Time) string {
	switch {
	case !u.Active:
		return ReasonDeactivated
	case !u.EmailVerified:
		return ReasonUnverified
	case u.Locked:
		return ReasonLocked
	case u.PasswordExpired(now):
		return ReasonExpired
	case !u.HasCredential():
		return ReasonNoCredential
	default:
		return ""
	}
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("IDENTITY")

var (
	CodeAccountUnavailable = ErrRegistry.Register("ACCOUNT_UNAVAILABLE", errx.TypeAuthorization, http.StatusUnauthorized, "Account is not available for authentication")
	CodeNoTenantAdmin      = ErrRegistry.Register("NO_TENANT_ADMIN", errx.TypeBusiness, http.StatusUnprocessableEntity, "Tenant has no administrator to act as service principal")
)

// ErrAccountUnavailable builds the typed failure for an ineligible account.
// The reason lands in the details map, never in the message, so transport
// layers can keep end-user messaging uniform and non-enumerating.
func ErrAccountUnavailable(reason string) *errx.Error {
	return ErrRegistry.New(CodeAccountUnavailable).WithDetail("reason", reason)
}

func ErrNoTenantAdmin() *errx.Error {
	return ErrRegistry.New(CodeNoTenantAdmin)
}
