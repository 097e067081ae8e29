package userinfra

import (
	"context"
	"database/sql"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/user"
	"github.com/identra-io/identra/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const userColumns = `
	id, tenant_id, username, email, password_hash, first_name, last_name,
	is_active, is_tenant_admin, email_verified, is_locked, password_expires_at,
	invitation_token, invitation_expires_at, invited_by,
	last_login_at, failed_logins, last_failed_login_at, created_at, updated_at`

// PostgresUserRepository is the Postgres implementation of user.UserRepository.
type PostgresUserRepository struct {
	db *sqlx.DB
}

// NewPostgresUserRepository creates a new user repository.
func NewPostgresUserRepository(db *sqlx.DB) user.UserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) getOne(ctx context.Context, query string, args ...interface{}) (*user.User, error) {
	var u user.User
	err := r.db.GetContext(ctx, &u, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, user.ErrUserNotFound()
		}
		return nil, errx.Wrap(err, "failed to find user", errx.TypeInternal)
	}
	return &u, nil
}

// FindByID looks a user up by id inside a tenant.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id kernel.UserID, tenantID kernel.TenantID) (*user.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE id = $1 AND tenant_id = $2`
	return r.getOne(ctx, query, id.String(), tenantID.String())
}

// FindByUsername looks a user up by (username, tenant).
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string, tenantID kernel.TenantID) (*user.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE username = $1 AND tenant_id = $2`
	return r.getOne(ctx, query, username, tenantID.String())
}

// FindByEmailGlobal looks a user up by email across all tenants. Pre-existing
// data may hold duplicates; most-recently-created wins so the result is
// stable across calls.
func (r *PostgresUserRepository) FindByEmailGlobal(ctx context.Context, email string) (*user.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE email = $1 ORDER BY created_at DESC LIMIT 1`
	return r.getOne(ctx, query, email)
}

// FindByUsernameGlobal looks a user up by username across all tenants.
func (r *PostgresUserRepository) FindByUsernameGlobal(ctx context.Context, username string) (*user.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE username = $1 ORDER BY created_at DESC LIMIT 1`
	return r.getOne(ctx, query, username)
}

// FindByInvitationToken looks a user up by an unexpired invitation token.
// Expiry is a query filter; a janitor collaborator does bulk cleanup.
func (r *PostgresUserRepository) FindByInvitationToken(ctx context.Context, token string) (*user.User, error) {
	query := `SELECT` + userColumns + ` FROM users
		WHERE invitation_token = $1 AND invitation_expires_at > NOW()`
	return r.getOne(ctx, query, token)
}

// FindFirstTenantAdmin returns the earliest-created active tenant admin.
func (r *PostgresUserRepository) FindFirstTenantAdmin(ctx context.Context, tenantID kernel.TenantID) (*user.User, error) {
	query := `SELECT` + userColumns + ` FROM users
		WHERE tenant_id = $1 AND is_tenant_admin = TRUE AND is_active = TRUE
		ORDER BY created_at ASC LIMIT 1`
	return r.getOne(ctx, query, tenantID.String())
}

// ExistsByEmailGlobal reports whether any tenant holds this email.
func (r *PostgresUserRepository) ExistsByEmailGlobal(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, email); err != nil {
		return false, errx.Wrap(err, "failed to check email existence", errx.TypeInternal)
	}
	return exists, nil
}

// ExistsByUsernameGlobal reports whether any tenant holds this username.
func (r *PostgresUserRepository) ExistsByUsernameGlobal(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, username); err != nil {
		return false, errx.Wrap(err, "failed to check username existence", errx.TypeInternal)
	}
	return exists, nil
}

// Create inserts a new user.
func (r *PostgresUserRepository) Create(ctx context.Context, u user.User) error {
	query := `
		INSERT INTO users (
			id, tenant_id, username, email, password_hash, first_name, last_name,
			is_active, is_tenant_admin, email_verified, is_locked, password_expires_at,
			invitation_token, invitation_expires_at, invited_by,
			last_login_at, failed_logins, last_failed_login_at, created_at, updated_at
		) VALUES (
			:id, :tenant_id, :username, :email, :password_hash, :first_name, :last_name,
			:is_active, :is_tenant_admin, :email_verified, :is_locked, :password_expires_at,
			:invitation_token, :invitation_expires_at, :invited_by,
			:last_login_at, :failed_logins, :last_failed_login_at, :created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, u)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return user.ErrUserAlreadyExists().
				WithDetail("username", u.Username).
				WithDetail("tenant_id", u.TenantID.String())
		}
		return errx.Wrap(err, "failed to create user", errx.TypeInternal).
			WithDetail("user_id", u.ID.String())
	}

	return nil
}

// Update persists user state.
func (r *PostgresUserRepository) Update(ctx context.Context, u user.User) error {
	query := `
		UPDATE users SET
			username = :username,
			email = :email,
			password_hash = :password_hash,
			first_name = :first_name,
			last_name = :last_name,
			is_active = :is_active,
			is_tenant_admin = :is_tenant_admin,
			email_verified = :email_verified,
			is_locked = :is_locked,
			password_expires_at = :password_expires_at,
			invitation_token = :invitation_token,
			invitation_expires_at = :invitation_expires_at,
			updated_at = :updated_at
		WHERE id = :id AND tenant_id = :tenant_id`

	result, err := r.db.NamedExecContext(ctx, query, u)
	if err != nil {
		return errx.Wrap(err, "failed to update user", errx.TypeInternal).
			WithDetail("user_id", u.ID.String())
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return user.ErrUserNotFound().WithDetail("user_id", u.ID.String())
	}

	return nil
}

// Deactivate soft-deletes a user.
func (r *PostgresUserRepository) Deactivate(ctx context.Context, id kernel.UserID, tenantID kernel.TenantID) error {
	query := `UPDATE users SET is_active = FALSE, updated_at = NOW() WHERE id = $1 AND tenant_id = $2`

	result, err := r.db.ExecContext(ctx, query, id.String(), tenantID.String())
	if err != nil {
		return errx.Wrap(err, "failed to deactivate user", errx.TypeInternal).
			WithDetail("user_id", id.String())
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return user.ErrUserNotFound().WithDetail("user_id", id.String())
	}

	return nil
}

// RecordLogin stamps a successful login and resets failure bookkeeping.
func (r *PostgresUserRepository) RecordLogin(ctx context.Context, id kernel.UserID) error {
	query := `
		UPDATE users SET
			last_login_at = NOW(),
			failed_logins = 0,
			last_failed_login_at = NULL
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id.String()); err != nil {
		return errx.Wrap(err, "failed to record login", errx.TypeInternal).
			WithDetail("user_id", id.String())
	}
	return nil
}

// RecordFailedLogin increments the failure counter and stamps the time.
func (r *PostgresUserRepository) RecordFailedLogin(ctx context.Context, id kernel.UserID) error {
	query := `
		UPDATE users SET
			failed_logins = failed_logins + 1,
			last_failed_login_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id.String()); err != nil {
		return errx.Wrap(err, "failed to record failed login", errx.TypeInternal).
			WithDetail("user_id", id.String())
	}
	return nil
}

// DeactivateExpiredInvitees soft-deletes invitees whose invitation lapsed.
func (r *PostgresUserRepository) DeactivateExpiredInvitees(ctx context.Context) (int64, error) {
	query := `
		UPDATE users SET is_active = FALSE, updated_at = NOW()
		WHERE invitation_token IS NOT NULL
		  AND invitation_expires_at < NOW()
		  AND password_hash IS NULL
		  AND is_active = TRUE`

	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, errx.Wrap(err, "failed to deactivate expired invitees", errx.TypeInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	return rows, nil
}
