package tenant

import (
	"context"

	"github.com/identra-io/identra/pkg/kernel"
)

// TenantRepository defines the contract for tenant persistence. Lookups for
// absent records return a TENANT_NOT_FOUND error, never a nil-nil pair; only
// infrastructure failures surface as internal errors.
type TenantRepository interface {
	// FindByID looks a tenant up by its identifier.
	FindByID(ctx context.Context, id kernel.TenantID) (*Tenant, error)

	// FindByDomain looks a tenant up by its unique domain slug.
	FindByDomain(ctx context.Context, domain string) (*Tenant, error)

	// FindByClientID looks a tenant up by its derived OAuth2 client id.
	FindByClientID(ctx context.Context, clientID string) (*Tenant, error)

	// FindByAPIKey looks a tenant up by its legacy API key.
	FindByAPIKey(ctx context.Context, apiKey string) (*Tenant, error)

	// ExistsByDomain reports whether a tenant with the domain exists.
	ExistsByDomain(ctx context.Context, domain string) (bool, error)

	// ExistsByClientID reports whether a tenant with the client id exists.
	ExistsByClientID(ctx context.Context, clientID string) (bool, error)

	// Create inserts a new tenant. Returns TENANT_ALREADY_EXISTS when the
	// domain or derived client id is taken.
	Create(ctx context.Context, t Tenant) error

	// Update persists mutable tenant settings.
	Update(ctx context.Context, t Tenant) error

	// Deactivate flips the active flag off. Tenants are never deleted.
	Deactivate(ctx context.Context, id kernel.TenantID) error

	// ListActive returns all active tenants.
	ListActive(ctx context.Context) ([]*Tenant, error)
}
