package roleinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/role"
	"github.com/identra-io/identra/pkg/kernel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const roleColumns = `id, name, description, permissions, is_active, created_at, updated_at`

// PostgresRoleRepository is the Postgres implementation of role.RoleRepository.
type PostgresRoleRepository struct {
	db *sqlx.DB
}

// NewPostgresRoleRepository creates a new role repository.
func NewPostgresRoleRepository(db *sqlx.DB) role.RoleRepository {
	return &PostgresRoleRepository{db: db}
}

// FindByID looks a role up by identifier.
func (r *PostgresRoleRepository) FindByID(ctx context.Context, id kernel.RoleID) (*role.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`

	var ro role.Role
	err := r.db.GetContext(ctx, &ro, query, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, role.ErrRoleNotFound().WithDetail("role_id", id.String())
		}
		return nil, errx.Wrap(err, "failed to find role by id", errx.TypeInternal).
			WithDetail("role_id", id.String())
	}

	return &ro, nil
}

// FindByName looks a role up by its unique name.
func (r *PostgresRoleRepository) FindByName(ctx context.Context, name string) (*role.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE name = $1`

	var ro role.Role
	err := r.db.GetContext(ctx, &ro, query, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, role.ErrRoleNotFound().WithDetail("name", name)
		}
		return nil, errx.Wrap(err, "failed to find role by name", errx.TypeInternal).
			WithDetail("name", name)
	}

	return &ro, nil
}

type assignmentJoinRow struct {
	AssignmentID string         `db:"assignment_id"`
	UserID       string         `db:"user_id"`
	RoleID       string         `db:"role_id"`
	AssignedAt   time.Time      `db:"assigned_at"`
	AssignedBy   *string        `db:"assigned_by"`
	ExpiresAt    *time.Time     `db:"expires_at"`
	EdgeActive   bool           `db:"edge_active"`
	Name         string         `db:"name"`
	Description  string         `db:"description"`
	Permissions  pq.StringArray `db:"permissions"`
	RoleActive   bool           `db:"role_active"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// ListAssignmentsWithRoles returns every assignment of the user joined with
// its role. No activity or expiry filtering happens here.
func (r *PostgresRoleRepository) ListAssignmentsWithRoles(ctx context.Context, userID kernel.UserID) ([]role.AssignmentWithRole, error) {
	query := `
		SELECT
			a.id AS assignment_id, a.user_id, a.role_id, a.assigned_at,
			a.assigned_by, a.expires_at, a.is_active AS edge_active,
			r.name, r.description, r.permissions, r.is_active AS role_active,
			r.created_at, r.updated_at
		FROM user_role_assignments a
		JOIN roles r ON r.id = a.role_id
		WHERE a.user_id = $1
		ORDER BY a.assigned_at`

	var rows []assignmentJoinRow
	if err := r.db.SelectContext(ctx, &rows, query, userID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to list role assignments", errx.TypeInternal).
			WithDetail("user_id", userID.String())
	}

	result := make([]role.AssignmentWithRole, 0, len(rows))
	for _, row := range rows {
		var assignedBy *kernel.UserID
		if row.AssignedBy != nil {
			v := kernel.NewUserID(*row.AssignedBy)
			assignedBy = &v
		}
		result = append(result, role.AssignmentWithRole{
			Assignment: role.UserRoleAssignment{
				ID:         row.AssignmentID,
				UserID:     kernel.NewUserID(row.UserID),
				RoleID:     kernel.NewRoleID(row.RoleID),
				AssignedAt: row.AssignedAt,
				AssignedBy: assignedBy,
				ExpiresAt:  row.ExpiresAt,
				Active:     row.EdgeActive,
			},
			Role: role.Role{
				ID:          kernel.NewRoleID(row.RoleID),
				Name:        row.Name,
				Description: row.Description,
				Permissions: row.Permissions,
				Active:      row.RoleActive,
				CreatedAt:   row.CreatedAt,
				UpdatedAt:   row.UpdatedAt,
			},
		})
	}

	return result, nil
}

// Create inserts a new role.
func (r *PostgresRoleRepository) Create(ctx context.Context, ro role.Role) error {
	query := `
		INSERT INTO roles (id, name, description, permissions, is_active, created_at, updated_at)
		VALUES (:id, :name, :description, :permissions, :is_active, :created_at, :updated_at)`

	_, err := r.db.NamedExecContext(ctx, query, ro)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return role.ErrRoleAlreadyExists().WithDetail("name", ro.Name)
		}
		return errx.Wrap(err, "failed to create role", errx.TypeInternal).
			WithDetail("role_id", ro.ID.String())
	}

	return nil
}

// Update persists role state.
func (r *PostgresRoleRepository) Update(ctx context.Context, ro role.Role) error {
	query := `
		UPDATE roles SET
			name = :name,
			description = :description,
			permissions = :permissions,
			is_active = :is_active,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, ro)
	if err != nil {
		return errx.Wrap(err, "failed to update role", errx.TypeInternal).
			WithDetail("role_id", ro.ID.String())
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return role.ErrRoleNotFound().WithDetail("role_id", ro.ID.String())
	}

	return nil
}

// CreateAssignment inserts a user-role edge.
func (r *PostgresRoleRepository) CreateAssignment(ctx context.Context, a role.UserRoleAssignment) error {
	query := `
		INSERT INTO user_role_assignments (id, user_id, role_id, assigned_at, assigned_by, expires_at, is_active)
		VALUES (:id, :user_id, :role_id, :assigned_at, :assigned_by, :expires_at, :is_active)`

	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return errx.Wrap(err, "failed to create role assignment", errx.TypeInternal).
			WithDetail("user_id", a.UserID.String()).
			WithDetail("role_id", a.RoleID.String())
	}

	return nil
}

// DeactivateAssignment flips an assignment inactive.
func (r *PostgresRoleRepository) DeactivateAssignment(ctx context.Context, assignmentID string) error {
	query := `UPDATE user_role_assignments SET is_active = FALSE WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, assignmentID)
	if err != nil {
		return errx.Wrap(err, "failed to deactivate assignment", errx.TypeInternal).
			WithDetail("assignment_id", assignmentID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		return role.ErrAssignmentNotFound().WithDetail("assignment_id", assignmentID)
	}

	return nil
}

// ReactivateAssignment re-enables an inactive, unexpired assignment.
func (r *PostgresRoleRepository) ReactivateAssignment(ctx context.Context, assignmentID string) error {
	query := `
		UPDATE user_role_assignments SET is_active = TRUE
		WHERE id = $1 AND (expires_at IS NULL OR expires_at > NOW())`

	result, err := r.db.ExecContext(ctx, query, assignmentID)
	if err != nil {
		return errx.Wrap(err, "failed to reactivate assignment", errx.TypeInternal).
			WithDetail("assignment_id", assignmentID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}
	if rows == 0 {
		// Either the edge does not exist or it expired; distinguish for the caller.
		var exists bool
		check := `SELECT EXISTS(SELECT 1 FROM user_role_assignments WHERE id = $1)`
		if err := r.db.GetContext(ctx, &exists, check, assignmentID); err != nil {
			return errx.Wrap(err, "failed to check assignment existence", errx.TypeInternal)
		}
		if exists {
			return role.ErrAssignmentExpired().WithDetail("assignment_id", assignmentID)
		}
		return role.ErrAssignmentNotFound().WithDetail("assignment_id", assignmentID)
	}

	return nil
}
