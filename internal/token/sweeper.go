package token

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fathimasithara01/chat-relay/internal/metrics"
)

// Sweeper periodically purges expired tokens, independent of validation traffic.
type Sweeper struct {
	store    Store
	interval time.Duration
	log      *zap.Logger
}

func NewSweeper(store Store, interval time.Duration, log *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{store: store, interval: interval, log: log.Named("token-sweeper")}
}

// Run blocks until ctx is cancelled. Sweep failures are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("token sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("token sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) int {
	n, err := s.store.SweepExpired(ctx)
	if n > 0 {
		metrics.TokensSwept.Add(float64(n))
		s.log.Info("expired tokens removed", zap.Int("count", n))
	}
	if err != nil {
		s.log.Warn("token sweep failed", zap.Error(err))
	}
	return n
}
