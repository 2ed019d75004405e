package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/rgabriel/mcp-gmail/mailbox"
)

// Renewer keeps a Gmail watch alive. Gmail drops watches after seven days,
// so it re-registers on a fixed interval.
type Renewer struct {
	Watcher mailbox.Watcher
	Topic   string
	Labels  []string
	Every   time.Duration
	// OnWatch is called after every successful registration.
	OnWatch func(historyID uint64, expiration time.Time)
	Logger  *slog.Logger
}

// Renew registers the watch once.
func (r *Renewer) Renew(ctx context.Context) error {
	historyID, expiration, err := r.Watcher.Watch(ctx, r.Topic, r.Labels)
	if err != nil {
		return err
	}
	r.logger().Info("gmail watch registered",
		"topic", r.Topic,
		"history_id", historyID,
		"expires", expiration.UTC().Format(time.RFC3339),
	)
	if r.OnWatch != nil {
		r.OnWatch(historyID, expiration)
	}
	return nil
}

// Run renews immediately and then every r.Every until ctx is done. Failed
// renewals are logged and retried on the next tick.
func (r *Renewer) Run(ctx context.Context) {
	if err := r.Renew(ctx); err != nil {
		r.logger().Error("failed to register gmail watch", "error", err)
	}

	ticker := time.NewTicker(r.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Renew(ctx); err != nil {
				r.logger().Error("failed to renew gmail watch", "error", err)
			}
		}
	}
}

func (r *Renewer) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
