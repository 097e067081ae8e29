package role

import (
	"net/http"
	"time"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/kernel"
	"github.com/lib/pq"
)

// Well-known role names seeded at install time.
const (
	NameUser  = "USER"
	NameAdmin = "ADMIN"
)

// ============================================================================
// Entities
// ============================================================================

// Role is a global, tenant-independent named permission bundle. Permissions
// follow the "resource:action" convention (e.g. "documents:read").
type Role struct {
	ID          kernel.RoleID  `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description"`
	Permissions pq.StringArray `db:"permissions" json:"permissions"`
	Active      bool           `db:"is_active" json:"is_active"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// CanBeAssigned reports whether the role may be newly assigned. Inactive
// roles and roles without permissions cannot.
func (r *Role) CanBeAssigned() bool {
	return r.Active && len(r.Permissions) > 0
}

// UserRoleAssignment is the many-to-many edge between a user and a role.
type UserRoleAssignment struct {
	ID         string         `db:"id" json:"id"`
	UserID     kernel.UserID  `db:"user_id" json:"user_id"`
	RoleID     kernel.RoleID  `db:"role_id" json:"role_id"`
	AssignedAt time.Time      `db:"assigned_at" json:"assigned_at"`
	AssignedBy *kernel.UserID `db:"assigned_by" json:"assigned_by,omitempty"` // nil ⇒ system-assigned
	ExpiresAt  *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	Active     bool           `db:"is_active" json:"is_active"`
}

// IsCurrentlyActive reports whether the assignment counts at the given
// instant: active flag set and not past its expiry.
func (a *UserRoleAssignment) IsCurrentlyActive(now time.Time) bool {
	if !a.Active {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// IsExpired reports whether the assignment expired by timestamp.
func (a *UserRoleAssignment) IsExpired(now time.Time) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now)
}

// AssignmentWithRole is the join row the resolver feeds to the authority
// aggregation: one assignment together with its role.
type AssignmentWithRole struct {
	Assignment UserRoleAssignment
	Role       Role
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("ROLE")

var (
	CodeRoleNotFound       = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Role not found")
	CodeRoleNotAssignable  = ErrRegistry.Register("NOT_ASSIGNABLE", errx.TypeBusiness, http.StatusUnprocessableEntity, "Role cannot be assigned")
	CodeRoleAlreadyExists  = ErrRegistry.Register("ALREADY_EXISTS", errx.TypeConflict, http.StatusConflict, "Role with this name already exists")
	CodeAssignmentExpired  = ErrRegistry.Register("ASSIGNMENT_EXPIRED", errx.TypeBusiness, http.StatusUnprocessableEntity, "Role assignment has expired")
	CodeAssignmentNotFound = ErrRegistry.Register("ASSIGNMENT_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Role assignment not found")
)

func ErrRoleNotFound() *errx.Error {
	return ErrRegistry.New(CodeRoleNotFound)
}

func ErrRoleNotAssignable() *errx.Error {
	return ErrRegistry.New(CodeRoleNotAssignable)
}

func ErrRoleAlreadyExists() *errx.Error {
	return ErrRegistry.New(CodeRoleAlreadyExists)
}

func ErrAssignmentExpired() *errx.Error {
	return ErrRegistry.New(CodeAssignmentExpired)
}

func ErrAssignmentNotFound() *errx.Error {
	return ErrRegistry.New(CodeAssignmentNotFound)
}
