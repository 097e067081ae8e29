package iam

import (
	"context"
	"net/http"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/audit"
	"github.com/identra-io/identra/pkg/iam/authority"
	"github.com/identra-io/identra/pkg/iam/identity"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("IAM")

var (
	CodeUnauthorized = ErrRegistry.Register("UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Unauthorized")
	CodeAccessDenied = ErrRegistry.Register("ACCESS_DENIED", errx.TypeAuthorization, http.StatusForbidden, "Access denied")
)

func ErrUnauthorized() *errx.Error {
	return ErrRegistry.New(CodeUnauthorized)
}

func ErrAccessDenied() *errx.Error {
	return ErrRegistry.New(CodeAccessDenied)
}

// ============================================================================
// Guard
// ============================================================================

// Guard makes authorization decisions against a resolved identity's
// authority set. Denials are audited; the decision itself is pure set
// membership, tenant admins pass every check through their admin token.
type Guard struct {
	recorder *audit.Recorder
}

// NewGuard creates a guard recording denials through the given recorder.
func NewGuard(recorder *audit.Recorder) *Guard {
	return &Guard{recorder: recorder}
}

// Require returns nil when the identity carries the permission token, or
// the tenant-admin token. Denials are recorded as PERMISSION_DENIED.
func (g *Guard) Require(ctx context.Context, ident *identity.ResolvedIdentity, permission string) error {
	if ident == nil {
		return ErrUnauthorized()
	}

	if ident.Authorities.Has(permission) || ident.Authorities.Has(authority.TenantAdminPermission) {
		return nil
	}

	g.recorder.Record(ctx, audit.Entry{
		TenantID:    &ident.User.TenantID,
		UserID:      &ident.User.ID,
		EventType:   audit.EventPermissionDenied,
		Description: "Permission denied: " + permission,
		Metadata:    map[string]interface{}{"permission": permission},
	})

	return ErrAccessDenied().WithDetail("permission", permission)
}
