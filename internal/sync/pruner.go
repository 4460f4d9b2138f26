package sync

import (
	"context"
	"time"

	"github.com/claridad-app/claridad/internal/store"
	"go.uber.org/zap"
)

// Pruner periodically deletes typing and presence rows that have outlived
// their TTL, so missed "stop" signals do not accumulate in the store.
type Pruner struct {
	db        *store.DB
	typingTTL time.Duration
	onlineTTL time.Duration
	interval  time.Duration
	logger    *zap.Logger
	cancel    context.CancelFunc
}

// NewPruner creates a new pruner.
func NewPruner(db *store.DB, typingTTL, onlineTTL, interval time.Duration, logger *zap.Logger) *Pruner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pruner{db: db, typingTTL: typingTTL, onlineTTL: onlineTTL, interval: interval, logger: logger}
}

// Start begins the prune loop.
func (p *Pruner) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
}

// Stop stops the prune loop.
func (p *Pruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// PruneOnce runs a single prune pass.
func (p *Pruner) PruneOnce() (int64, error) {
	now := time.Now()
	return p.db.PrunePresence(now.Add(-p.typingTTL), now.Add(-p.onlineTTL))
}

func (p *Pruner) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := p.PruneOnce()
			if err != nil {
				p.logger.Error("presence prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				p.logger.Debug("presence pruned", zap.Int64("rows", n))
			}
		case <-ctx.Done():
			return
		}
	}
}
