package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Deleter removes published entries older than a cutoff.
type Deleter interface {
	DeletePublished(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner deletes published entries once they are older than the retention
// period. Unpublished entries are never touched.
type Pruner struct {
	store     Deleter
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewPruner(store Deleter, retention, interval time.Duration, logger *slog.Logger) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Pruner{store: store, retention: retention, interval: interval, logger: logger, now: time.Now}
}

// Run prunes once immediately and then every interval until ctx is cancelled.
// A zero retention disables pruning.
func (p *Pruner) Run(ctx context.Context) error {
	if p.retention <= 0 {
		return nil
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.Prune(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Pruner) Prune(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.DeletePublished(ctx, cutoff)
	if err != nil {
		p.logger.WarnContext(ctx, "outbox prune failed", "error", err)
		return 0
	}
	if n > 0 {
		p.logger.InfoContext(ctx, "outbox pruned", "deleted", n, "cutoff", cutoff)
	}
	return n
}
