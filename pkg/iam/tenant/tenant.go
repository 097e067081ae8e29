package tenant

import (
	"net/http"
	"time"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/kernel"
	"github.com/lib/pq"
)

// ============================================================================
// Entity
// ============================================================================

// Tenant is an isolated organization. Tenants are never physically deleted,
// only deactivated; identity resolution for a deactivated tenant's users
// fails closed.
type Tenant struct {
	ID               kernel.TenantID `db:"id" json:"id"`
	Name             string          `db:"name" json:"name"`
	Domain           string          `db:"domain" json:"domain"`
	ClientID         string          `db:"client_id" json:"client_id"`
	ClientSecretHash string          `db:"client_secret_hash" json:"-"`
	RedirectURIs     pq.StringArray  `db:"redirect_uris" json:"redirect_uris"`
	Scopes           pq.StringArray  `db:"scopes" json:"scopes"`
	Active           bool            `db:"is_active" json:"is_active"`
	PlanID           string          `db:"plan_id" json:"plan_id"`
	// APIKey is the legacy machine credential, being phased out in favor of
	// client-credential flows.
	APIKey    string    `db:"api_key" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DeriveClientID computes the OAuth2 client identifier for a tenant. The
// client id is a deterministic function of the tenant identifier, never
// independently assigned, which makes it globally unique by construction.
func DeriveClientID(id kernel.TenantID) string {
	return "tn-" + id.String()
}

// Deactivate flips the tenant inactive. The record itself is retained.
func (t *Tenant) Deactivate() {
	t.Active = false
	t.UpdatedAt = time.Now().UTC()
}

// ============================================================================
// Requests
// ============================================================================

// CreateRequest holds the fields required to provision a new tenant.
type CreateRequest struct {
	Name          string   `json:"name"`
	Domain        string   `json:"domain"`
	PlanID        string   `json:"plan_id"`
	RedirectURIs  []string `json:"redirect_uris,omitempty"`
	Scopes        []string `json:"scopes,omitempty"`
	AdminEmail    string   `json:"admin_email"`
	AdminUsername string   `json:"admin_username"`
	AdminPassword string   `json:"admin_password"`
	FirstName     string   `json:"first_name,omitempty"`
	LastName      string   `json:"last_name,omitempty"`
}

// UpdateRequest holds the tenant settings that can change after provisioning.
type UpdateRequest struct {
	Name         *string  `json:"name,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	PlanID       *string  `json:"plan_id,omitempty"`
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("TENANT")

var (
	CodeTenantNotFound      = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Tenant not found")
	CodeTenantInactive      = ErrRegistry.Register("INACTIVE", errx.TypeBusiness, http.StatusForbidden, "Tenant is deactivated")
	CodeTenantAlreadyExists = ErrRegistry.Register("ALREADY_EXISTS", errx.TypeConflict, http.StatusConflict, "Tenant with this domain or client id already exists")
	CodeInvalidDomain       = ErrRegistry.Register("INVALID_DOMAIN", errx.TypeValidation, http.StatusBadRequest, "Invalid tenant domain")
)

func ErrTenantNotFound() *errx.Error {
	return ErrRegistry.New(CodeTenantNotFound)
}

func ErrTenantInactive() *errx.Error {
	return ErrRegistry.New(CodeTenantInactive)
}

func ErrTenantAlreadyExists() *errx.Error {
	return ErrRegistry.New(CodeTenantAlreadyExists)
}

func ErrInvalidDomain() *errx.Error {
	return ErrRegistry.New(CodeInvalidDomain)
}
