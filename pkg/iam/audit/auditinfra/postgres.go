package auditinfra

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/iam/audit"
	"github.com/identra-io/identra/pkg/kernel"
	"github.com/jmoiron/sqlx"
)

// PostgresSink is the append-only Postgres implementation of audit.Sink.
// Entries are inserted and never updated; the only sanctioned mutation is the
// bulk retention delete.
type PostgresSink struct {
	db *sqlx.DB
}

// NewPostgresSink creates a Postgres-backed audit sink.
func NewPostgresSink(db *sqlx.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

type entryRow struct {
	ID          string          `db:"id"`
	TenantID    *string         `db:"tenant_id"`
	UserID      *string         `db:"user_id"`
	EventType   string          `db:"event_type"`
	Description string          `db:"description"`
	IPAddress   string          `db:"ip_address"`
	UserAgent   string          `db:"user_agent"`
	Metadata    json.RawMessage `db:"metadata"`
	CreatedAt   time.Time       `db:"created_at"`
}

// Record appends one audit entry.
func (s *PostgresSink) Record(ctx context.Context, entry audit.Entry) error {
	row := entryRow{
		ID:          entry.ID,
		EventType:   string(entry.EventType),
		Description: entry.Description,
		IPAddress:   entry.IPAddress,
		UserAgent:   entry.UserAgent,
		CreatedAt:   entry.CreatedAt,
	}
	if entry.TenantID != nil {
		v := entry.TenantID.String()
		row.TenantID = &v
	}
	if entry.UserID != nil {
		v := entry.UserID.String()
		row.UserID = &v
	}
	if entry.Metadata != nil {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return errx.Wrap(err, "failed to encode audit metadata", errx.TypeInternal)
		}
		row.Metadata = b
	}

	query := `
		INSERT INTO audit_log (
			id, tenant_id, user_id, event_type, description,
			ip_address, user_agent, metadata, created_at
		) VALUES (
			:id, :tenant_id, :user_id, :event_type, :description,
			:ip_address, :user_agent, :metadata, :created_at
		)`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return audit.ErrRegistry.NewWithCause(audit.CodeAppendFailed, err).
			WithDetail("event_type", entry.EventType)
	}

	return nil
}

// Search returns a page of the audit trail, newest first.
func (s *PostgresSink) Search(ctx context.Context, q audit.Query) (kernel.Paginated[audit.Entry], error) {
	q.Normalize()

	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.TenantID != nil {
		add("tenant_id = $%d", q.TenantID.String())
	}
	if q.UserID != nil {
		add("user_id = $%d", q.UserID.String())
	}
	if q.EventType != nil {
		add("event_type = $%d", string(*q.EventType))
	}
	if q.Since != nil {
		add("created_at >= $%d", *q.Since)
	}
	if q.Until != nil {
		add("created_at < $%d", *q.Until)
	}

	filter := ""
	if len(where) > 0 {
		filter = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_log` + filter
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return kernel.Paginated[audit.Entry]{}, errx.Wrap(err, "failed to count audit entries", errx.TypeInternal)
	}

	query := fmt.Sprintf(`
		SELECT id, tenant_id, user_id, event_type, description,
		       ip_address, user_agent, metadata, created_at
		FROM audit_log%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, filter, len(args)+1, len(args)+2)
	args = append(args, q.Size, (q.Page-1)*q.Size)

	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return kernel.Paginated[audit.Entry]{}, errx.Wrap(err, "failed to search audit entries", errx.TypeInternal)
	}

	entries := make([]audit.Entry, 0, len(rows))
	for _, row := range rows {
		e := audit.Entry{
			ID:          row.ID,
			EventType:   audit.EventType(row.EventType),
			Description: row.Description,
			IPAddress:   row.IPAddress,
			UserAgent:   row.UserAgent,
			CreatedAt:   row.CreatedAt,
		}
		if row.TenantID != nil {
			id := kernel.TenantID(*row.TenantID)
			e.TenantID = &id
		}
		if row.UserID != nil {
			id := kernel.UserID(*row.UserID)
			e.UserID = &id
		}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &e.Metadata); err != nil {
				return kernel.Paginated[audit.Entry]{}, errx.Wrap(err, "failed to decode audit metadata", errx.TypeInternal)
			}
		}
		entries = append(entries, e)
	}

	return kernel.NewPaginated(entries, q.Page, q.Size, total), nil
}

// DeleteOlderThan removes entries created before the cutoff. This is the bulk
// retention-policy deletion, the only mutation the audit trail permits.
func (s *PostgresSink) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM audit_log WHERE created_at < $1`

	result, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired audit entries", errx.TypeInternal)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errx.Wrap(err, "failed to get rows affected", errx.TypeInternal)
	}

	return rows, nil
}
