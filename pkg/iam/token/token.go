package token

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/kernel"
)

// Type classifies what a verification token is good for.
type Type string

const (
	TypeEmailVerification Type = "EMAIL_VERIFICATION"
	TypePasswordReset     Type = "PASSWORD_RESET"
	TypeAccountActivation Type = "ACCOUNT_ACTIVATION"
)

// VerificationToken is a single-use, time-bounded secret bound to one user.
type VerificationToken struct {
	ID        string          `db:"id" json:"id"`
	UserID    kernel.UserID   `db:"user_id" json:"user_id"`
	TenantID  kernel.TenantID `db:"tenant_id" json:"tenant_id"`
	Token     string          `db:"token" json:"-"`
	Type      Type            `db:"token_type" json:"type"`
	ExpiresAt time.Time       `db:"expires_at" json:"expires_at"`
	UsedAt    *time.Time      `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// IsValid reports whether the token is still consumable at the given time.
func (t *VerificationToken) IsValid(now time.Time) bool {
	return now.Before(t.ExpiresAt) && t.UsedAt == nil
}

// MarkUsed stamps the token as consumed. Returns an error when the token is
// expired or was already consumed.
func (t *VerificationToken) MarkUsed(now time.Time) error {
	if !now.Before(t.ExpiresAt) {
		return ErrTokenExpired()
	}
	if t.UsedAt != nil {
		return ErrTokenAlreadyUsed()
	}
	t.UsedAt = &now
	return nil
}

// GenerateSecret produces a cryptographically random token string.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errx.Wrap(err, "failed to generate token secret", errx.TypeInternal)
	}
	return hex.EncodeToString(buf), nil
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("TOKEN")

var (
	CodeTokenNotFound    = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Verification token not found")
	CodeTokenExpired     = ErrRegistry.Register("EXPIRED", errx.TypeValidation, http.StatusBadRequest, "Verification token has expired")
	CodeTokenAlreadyUsed = ErrRegistry.Register("ALREADY_USED", errx.TypeBusiness, http.StatusBadRequest, "Verification token has already been used")
)

func ErrTokenNotFound() *errx.Error    { return ErrRegistry.New(CodeTokenNotFound) }
func ErrTokenExpired() *errx.Error     { return ErrRegistry.New(CodeTokenExpired) }
func ErrTokenAlreadyUsed() *errx.Error { return ErrRegistry.New(CodeTokenAlreadyUsed) }
