package tokeninfra

import (
	"context"
	"database/sql"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/token"
	"github.com/jmoiron/sqlx"
)

const tokenColumns = `
	id, user_id, tenant_id, token, token_type, expires_at, used_at, created_at`

// PostgresTokenRepository is the Postgres implementation of token.TokenRepository.
type PostgresTokenRepository struct {
	db *sqlx.DB
}

// NewPostgresTokenRepository creates a new token repository.
func NewPostgresTokenRepository(db *sqlx.DB) token.TokenRepository {
	return &PostgresTokenRepository{db: db}
}

// Create inserts a new verification token.
func (r *PostgresTokenRepository) Create(ctx context.Context, t token.VerificationToken) error {
	query := `
		INSERT INTO verification_tokens (
			id, user_id, tenant_id, token, token_type, expires_at, used_at, created_at
		) VALUES (
			:id, :user_id, :tenant_id, :token, :token_type, :expires_at, :used_at, :created_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, t); err != nil {
		return errx.Wrap(err, "failed to create verification token", errx.TypeInternal).
			WithDetail("token_id", t.ID)
	}
	return nil
}

// FindBySecret looks a token up by its secret and type.
func (r *PostgresTokenRepository) FindBySecret(ctx context.Context, secret string, tokenType token.Type) (*token.VerificationToken, error) {
	query := `SELECT` + tokenColumns + ` FROM verification_tokens WHERE token = $1 AND token_type = $2`

	var t token.VerificationToken
	if err := r.db.GetContext(ctx, &t, query, secret, string(tokenType)); err != nil {
		if err == sql.ErrNoRows {
			return nil, token.ErrTokenNotFound()
		}
		return nil, errx.Wrap(err, "failed to find verification token", errx.TypeInternal)
	}
	return &t, nil
}

// Update persists token state, in practice the used-at stamp.
func (r *PostgresTokenRepository) Update(ctx context.Context, t token.VerificationToken) error {
	query := `UPDATE verification_tokens SET used_at = :used_at WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, t)
	if err != nil {
		return errx.Wrap(err, "failed to update verification token", errx.TypeInternal).
			WithDetail("token_id", t.ID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return token.ErrTokenNotFound().WithDetail("token_id", t.ID)
	}
	return nil
}

// DeleteExpired removes tokens past their expiry. Returns the rows removed.
func (r *PostgresTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM verification_tokens WHERE expires_at < NOW()`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired tokens", errx.TypeInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	return rows, nil
}
