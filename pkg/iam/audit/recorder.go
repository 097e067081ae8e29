package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/identra-io/identra/pkg/kernel"
	"github.com/identra-io/identra/pkg/logx"
)

// Recorder wraps a Sink with the propagation policy the platform requires:
// the attempt to record is mandatory, but a failed append is logged and
// swallowed so it can never fail the primary operation.
type Recorder struct {
	sink Sink
}

// NewRecorder creates a Recorder over the given sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Record fills in identifier and timestamp and appends the entry. Errors from
// the sink are logged with full detail and not returned.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err := r.sink.Record(ctx, entry); err != nil {
		logx.WithError(err).WithFields(logx.Fields{
			"event_type": entry.EventType,
			"tenant_id":  tenantIDString(entry.TenantID),
			"user_id":    userIDString(entry.UserID),
		}).Error("audit append failed")
	}
}

func tenantIDString(id *kernel.TenantID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func userIDString(id *kernel.UserID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
