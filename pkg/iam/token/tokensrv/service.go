package tokensrv

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/token"
	"github.com/identra-io/identra/pkg/kernel"
)

// Service issues and consumes single-use verification tokens.
type Service struct {
	repo token.TokenRepository
}

// NewService creates a token service.
func NewService(repo token.TokenRepository) *Service {
	return &Service{repo: repo}
}

// Issue creates and persists a new verification token for the user.
func (s *Service) Issue(ctx context.Context, userID kernel.UserID, tenantID kernel.TenantID, tokenType token.Type, ttl time.Duration) (*token.VerificationToken, error) {
	secret, err := token.GenerateSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := token.VerificationToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TenantID:  tenantID,
		Token:     secret,
		Type:      tokenType,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, errx.Wrap(err, "failed to save verification token", errx.TypeInternal)
	}
	return &t, nil
}

// Consume validates a token secret and marks it used. A token can be
// consumed exactly once; later calls with the same secret fail.
func (s *Service) Consume(ctx context.Context, secret string, tokenType token.Type) (*token.VerificationToken, error) {
	t, err := s.repo.FindBySecret(ctx, secret, tokenType)
	if err != nil {
		return nil, err
	}

	if err := t.MarkUsed(time.Now().UTC()); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, *t); err != nil {
		return nil, errx.Wrap(err, "failed to mark token used", errx.TypeInternal)
	}
	return t, nil
}
