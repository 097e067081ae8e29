package tenantinfra

import (
	"context"
	"database/sql"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/tenant"
	"github.com/identra-io/identra/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const tenantColumns = `
	id, name, domain, client_id, client_secret_hash, redirect_uris,
	scopes, is_active, plan_id, api_key, created_at, updated_at`

// PostgresTenantRepository is the Postgres implementation of
// tenant.TenantRepository.
type PostgresTenantRepository struct {
	db *sqlx.DB
}

// NewPostgresTenantRepository creates a new tenant repository.
func NewPostgresTenantRepository(db *sqlx.DB) tenant.TenantRepository {
	return &PostgresTenantRepository{db: db}
}

// FindByID looks a tenant up by its identifier.
func (r *PostgresTenantRepository) FindByID(ctx context.Context, id kernel.TenantID) (*tenant.Tenant, error) {
	query := `SELECT` + tenantColumns + ` FROM tenants WHERE id = $1`

	var t tenant.Tenant
	err := r.db.GetContext(ctx, &t, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrTenantNotFound().WithDetail("tenant_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to find tenant by id", errx.TypeInternal).
			WithDetail("tenant_id", id.String())
	}

	return &t, nil
}

// FindByDomain looks a tenant up by its unique domain slug.
func (r *PostgresTenantRepository) FindByDomain(ctx context.Context, domain string) (*tenant.Tenant, error) {
	query := `SELECT` + tenantColumns + ` FROM tenants WHERE domain = $1`

	var t tenant.Tenant
	err := r.db.GetContext(ctx, &t, query, domain)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrTenantNotFound().WithDetail("domain", domain)
		}
		return nil, errx.Wrap(err, "failed to find tenant by domain", errx.TypeInternal).
			WithDetail("domain", domain)
	}

	return &t, nil
}

// FindByClientID looks a tenant up by its derived OAuth2 client id.
func (r *PostgresTenantRepository) FindByClientID(ctx context.Context, clientID string) (*tenant.Tenant, error) {
	query := `SELECT` + tenantColumns + ` FROM tenants WHERE client_id = $1`

	var t tenant.Tenant
	err := r.db.GetContext(ctx, &t, query, clientID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrTenantNotFound().WithDetail("client_id", clientID)
		}
		return nil, errx.Wrap(err, "failed to find tenant by client id", errx.TypeInternal).
			WithDetail("client_id", clientID)
	}

	return &t, nil
}

// FindByAPIKey looks a tenant up by its legacy API key.
func (r *PostgresTenantRepository) FindByAPIKey(ctx context.Context, apiKey string) (*tenant.Tenant, error) {
	query := `SELECT` + tenantColumns + ` FROM tenants WHERE api_key = $1`

	var t tenant.Tenant
	err := r.db.GetContext(ctx, &t, query, apiKey)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrTenantNotFound()
		}
		return nil, errx.Wrap(err, "failed to find tenant by api key", errx.TypeInternal)
	}

	return &t, nil
}

// ExistsByDomain reports whether a tenant with the domain exists.
func (r *PostgresTenantRepository) ExistsByDomain(ctx context.Context, domain string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM tenants WHERE domain = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, domain); err != nil {
		return false, errx.Wrap(err, "failed to check tenant domain existence", errx.TypeInternal).
			WithDetail("domain", domain)
	}

	return exists, nil
}

// ExistsByClientID reports whether a tenant with the client id exists.
func (r *PostgresTenantRepository) ExistsByClientID(ctx context.Context, clientID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM tenants WHERE client_id = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, clientID); err != nil {
		return false, errx.Wrap(err, "failed to check tenant client id existence", errx.TypeInternal).
			WithDetail("client_id", clientID)
	}

	return exists, nil
}

// Create inserts a new tenant.
func (r *PostgresTenantRepository) Create(ctx context.Context, t tenant.Tenant) error {
	query := `
		INSERT INTO tenants (
			id, name, domain, client_id, client_secret_hash, redirect_uris,
			scopes, is_active, plan_id, api_key, created_at, updated_at
		) VALUES (
			:id, :name, :domain, :client_id, :client_secret_hash, :redirect_uris,
			:scopes, :is_active, :plan_id, :api_key, :created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, t)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return tenant.ErrTenantAlreadyExists().
				WithDetail("domain", t.Domain).
				WithDetail("client_id", t.ClientID)
		}
		return errx.Wrap(err, "failed to create tenant", errx.TypeInternal).
			WithDetail("tenant_id", t.ID.String())
	}

	return nil
}

// Update persists mutable tenant settings.
func (r *PostgresTenantRepository) Update(ctx context.Context, t tenant.Tenant) error {
	query := `
		UPDATE tenants SET
			name = :name,
			redirect_uris = :redirect_uris,
			scopes = :scopes,
			is_active = :is_active,
			plan_id = :plan_id,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, t)
	if err != nil {
		return errx.Wrap(err, "failed to update tenant", errx.TypeInternal).
			WithDetail("tenant_id", t.ID.String())
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return tenant.ErrTenantNotFound().WithDetail("tenant_id", t.ID.String())
	}

	return nil
}

// Deactivate flips the active flag off.
func (r *PostgresTenantRepository) Deactivate(ctx context.Context, id kernel.TenantID) error {
	query := `UPDATE tenants SET is_active = FALSE, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to deactivate tenant", errx.TypeInternal).
			WithDetail("tenant_id", id.String())
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return tenant.ErrTenantNotFound().WithDetail("tenant_id", id.String())
	}

	return nil
}

// ListActive returns all active tenants.
func (r *PostgresTenantRepository) ListActive(ctx context.Context) ([]*tenant.Tenant, error) {
	query := `SELECT` + tenantColumns + ` FROM tenants WHERE is_active = TRUE ORDER BY created_at`

	var tenants []tenant.Tenant
	if err := r.db.SelectContext(ctx, &tenants, query); err != nil {
		return nil, errx.Wrap(err, "failed to list active tenants", errx.TypeInternal)
	}

	result := make([]*tenant.Tenant, len(tenants))
	for i := range tenants {
		result[i] = &tenants[i]
	}

	return result, nil
}
