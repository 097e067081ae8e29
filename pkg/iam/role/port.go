package role

import (
	"context"

	"github.com/identra-io/identra/pkg/kernel"
)

// RoleRepository defines the contract for role and assignment persistence.
type RoleRepository interface {
	// FindByID looks a role up by identifier.
	FindByID(ctx context.Context, id kernel.RoleID) (*Role, error)

	// FindByName looks a role up by its unique name.
	FindByName(ctx context.Context, name string) (*Role, error)

	// ListAssignmentsWithRoles returns every assignment of the user joined
	// with its role, including inactive and expired edges; filtering is the
	// aggregator's concern.
	ListAssignmentsWithRoles(ctx context.Context, userID kernel.UserID) ([]AssignmentWithRole, error)

	// Create inserts a new role. Returns ROLE_ALREADY_EXISTS on a name clash.
	Create(ctx context.Context, r Role) error

	// Update persists role state.
	Update(ctx context.Context, r Role) error

	// CreateAssignment inserts a user-role edge.
	CreateAssignment(ctx context.Context, a UserRoleAssignment) error

	// DeactivateAssignment flips an assignment inactive.
	DeactivateAssignment(ctx context.Context, assignmentID string) error

	// ReactivateAssignment re-enables an inactive assignment. Fails with
	// ROLE_ASSIGNMENT_EXPIRED when the edge already expired by timestamp.
	ReactivateAssignment(ctx context.Context, assignmentID string) error
}
