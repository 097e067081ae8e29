package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/identra-io/identra/pkg/errx"
	"github.com/identra-io/identra/pkg/kernel"
)

// ============================================================================
// Event Types
// ============================================================================

// EventType is the closed vocabulary of security and operational events.
type EventType string

const (
	EventLoginSuccess        EventType = "LOGIN_SUCCESS"
	EventLoginFailed         EventType = "LOGIN_FAILED"
	EventRoleAssigned        EventType = "ROLE_ASSIGNED"
	EventUserCreated         EventType = "USER_CREATED"
	EventTenantCreated       EventType = "TENANT_CREATED"
	EventTenantDeactivated   EventType = "TENANT_DEACTIVATED"
	EventPermissionDenied    EventType = "PERMISSION_DENIED"
	EventOAuthTokenIssued    EventType = "OAUTH_TOKEN_ISSUED"
	EventInvitationAccepted  EventType = "INVITATION_ACCEPTED"
	EventInvitationResent    EventType = "INVITATION_RESENT"
	EventInvitationCancelled EventType = "INVITATION_CANCELLED"
)

// ============================================================================
// Entry
// ============================================================================

// Entry is an immutable record of a security or operational event. Entries
// are written and never read back by this system except for reporting and
// retention sweeps.
type Entry struct {
	ID          string                 `db:"id" json:"id"`
	TenantID    *kernel.TenantID       `db:"tenant_id" json:"tenant_id,omitempty"` // nil ⇒ system-level event
	UserID      *kernel.UserID         `db:"user_id" json:"user_id,omitempty"`
	EventType   EventType              `db:"event_type" json:"event_type"`
	Description string                 `db:"description" json:"description"`
	IPAddress   string                 `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent   string                 `db:"user_agent" json:"user_agent,omitempty"`
	Metadata    map[string]interface{} `db:"-" json:"metadata,omitempty"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
}

// ============================================================================
// Query
// ============================================================================

// Query filters the audit trail for reporting. Zero-valued fields are not
// applied; Page is 1-based and Size falls back to 50.
type Query struct {
	TenantID  *kernel.TenantID
	UserID    *kernel.UserID
	EventType *EventType
	Since     *time.Time
	Until     *time.Time
	Page      int
	Size      int
}

// Normalize clamps paging to sane values.
func (q *Query) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < 1 || q.Size > 500 {
		q.Size = 50
	}
}

// ============================================================================
// Ports
// ============================================================================

// Sink is the append-only audit capability. It is always passed in explicitly
// at construction so tests can substitute an in-memory sink and assert exact
// event sequences.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("AUDIT")

var (
	CodeAppendFailed = ErrRegistry.Register("APPEND_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Failed to append audit entry")
)
