package janitor

import (
	"context"
	"time"

	"github.com/identra-io/identra/pkg/logx"
)

// Narrow store surfaces the standard sweeps operate on.
type (
	// TokenPurger deletes expired verification tokens.
	TokenPurger interface {
		DeleteExpired(ctx context.Context) (int64, error)
	}

	// InviteeExpirer deactivates pending invitees whose invitation lapsed.
	InviteeExpirer interface {
		DeactivateExpiredInvitees(ctx context.Context) (int64, error)
	}

	// AuditTrimmer removes audit entries older than a cutoff.
	AuditTrimmer interface {
		DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	}
)

// TokenSweep purges expired verification tokens.
func TokenSweep(store TokenPurger) SweepFunc {
	return func(ctx context.Context) error {
		n, err := store.DeleteExpired(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logx.WithField("deleted", n).Info("janitor: purged expired verification tokens")
		}
		return nil
	}
}

// InvitationSweep deactivates invitees whose invitation expired unaccepted.
func InvitationSweep(store InviteeExpirer) SweepFunc {
	return func(ctx context.Context) error {
		n, err := store.DeactivateExpiredInvitees(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logx.WithField("expired", n).Info("janitor: expired lapsed invitations")
		}
		return nil
	}
}

// AuditRetentionSweep trims audit entries older than the retention window.
func AuditRetentionSweep(store AuditTrimmer, retention time.Duration) SweepFunc {
	return func(ctx context.Context) error {
		n, err := store.DeleteOlderThan(ctx, time.Now().UTC().Add(-retention))
		if err != nil {
			return err
		}
		if n > 0 {
			logx.WithField("deleted", n).Info("janitor: trimmed audit entries past retention")
		}
		return nil
	}
}
