package user

import (
	"context"

	"github.com/identra-io/identra/pkg/kernel"
)

// UserRepository defines the contract for user persistence under both
// multi-tenancy models: tenant-scoped lookups for the strict path and global
// lookups for the loose path.
type UserRepository interface {
	// FindByID looks a user up by id inside a tenant.
	FindByID(ctx context.Context, id kernel.UserID, tenantID kernel.TenantID) (*User, error)

	// FindByUsername looks a user up by (username, tenant) — strict mode.
	FindByUsername(ctx context.Context, username string, tenantID kernel.TenantID) (*User, error)

	// FindByEmailGlobal looks a user up by email across all tenants — loose
	// mode. When migrated data holds the same email in several tenants the
	// most recently created user wins.
	FindByEmailGlobal(ctx context.Context, email string) (*User, error)

	// FindByUsernameGlobal looks a user up by username across all tenants.
	// Same tie-break as FindByEmailGlobal.
	FindByUsernameGlobal(ctx context.Context, username string) (*User, error)

	// FindByInvitationToken looks a user up by an unexpired invitation token.
	FindByInvitationToken(ctx context.Context, token string) (*User, error)

	// FindFirstTenantAdmin returns the earliest-created tenant admin of a
	// tenant, used as acting principal for machine-to-machine flows.
	FindFirstTenantAdmin(ctx context.Context, tenantID kernel.TenantID) (*User, error)

	// ExistsByEmailGlobal reports whether any tenant holds this email.
	ExistsByEmailGlobal(ctx context.Context, email string) (bool, error)

	// ExistsByUsernameGlobal reports whether any tenant holds this username.
	ExistsByUsernameGlobal(ctx context.Context, username string) (bool, error)

	// Create inserts a new user. Returns USER_ALREADY_EXISTS on a
	// (username, tenant) or (email, tenant) uniqueness violation.
	Create(ctx context.Context, u User) error

	// Update persists user state.
	Update(ctx context.Context, u User) error

	// Deactivate soft-deletes a user.
	Deactivate(ctx context.Context, id kernel.UserID, tenantID kernel.TenantID) error

	// RecordLogin stamps a successful login and resets failure bookkeeping.
	RecordLogin(ctx context.Context, id kernel.UserID) error

	// RecordFailedLogin increments the failure counter and stamps the
	// failure time. Locking past a threshold is caller policy.
	RecordFailedLogin(ctx context.Context, id kernel.UserID) error

	// DeactivateExpiredInvitees soft-deletes pending invitees whose
	// invitation expired without being accepted. Returns the rows affected.
	DeactivateExpiredInvitees(ctx context.Context) (int64, error)
}
