package token

import "context"

// TokenRepository persists verification tokens.
type TokenRepository interface {
	Create(ctx context.Context, t VerificationToken) error
	FindBySecret(ctx context.Context, secret string, tokenType Type) (*VerificationToken, error)
	Update(ctx context.Context, t VerificationToken) error
	DeleteExpired(ctx context.Context) (int64, error)
}
