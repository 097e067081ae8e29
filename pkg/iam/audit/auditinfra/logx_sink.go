package auditinfra

import (
	"context"

	"github.com/identra-io/identra/pkg/iam/audit"
	"github.com/identra-io/identra/pkg/logx"
)

// LogxSink mirrors audit entries into the structured log stream. Useful in
// development and as a secondary trail next to the Postgres sink.
type LogxSink struct{}

// NewLogxSink creates a log-backed audit sink.
func NewLogxSink() *LogxSink {
	return &LogxSink{}
}

func (s *LogxSink) Record(_ context.Context, entry audit.Entry) error {
	fields := logx.Fields{
		"audit_event": entry.EventType,
		"description": entry.Description,
		"ip":          entry.IPAddress,
		"user_agent":  entry.UserAgent,
	}
	if entry.TenantID != nil {
		fields["tenant_id"] = entry.TenantID.String()
	}
	if entry.UserID != nil {
		fields["user_id"] = entry.UserID.String()
	}
	for k, v := range entry.Metadata {
		fields["meta_"+k] = v
	}

	logx.WithFields(fields).Info("Audit: " + string(entry.EventType))
	return nil
}

// FanoutSink writes each entry to every underlying sink, returning the first
// error. Lets deployments keep the Postgres trail and a log mirror together.
type FanoutSink struct {
	sinks []audit.Sink
}

// NewFanoutSink creates a sink that fans out to the given sinks.
func NewFanoutSink(sinks ...audit.Sink) *FanoutSink {
	return &FanoutSink{sinks: sinks}
}

func (s *FanoutSink) Record(ctx context.Context, entry audit.Entry) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
