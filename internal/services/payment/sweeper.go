package payment

import (
	"context"
	"time"

	"catering-system/internal/logger"
)

// Sweeper periodically reconciles all orders awaiting a payment outcome.
// It backstops missed provider callbacks.
type Sweeper struct {
	service  *Service
	logger   *logger.Logger
	interval time.Duration
}

// NewSweeper creates a reconciliation sweeper
func NewSweeper(service *Service, log *logger.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		service:  service,
		logger:   log,
		interval: interval,
	}
}

// Run sweeps immediately and then on every tick until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper_started", "Reconciliation sweeper started", "", map[string]interface{}{
		"interval_seconds": int(s.interval.Seconds()),
	})

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper_stopped", "Reconciliation sweeper stopped", "", nil)
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	requestID := logger.GenerateRequestID()
	start := time.Now()

	if err := s.service.Sweep(ctx, requestID); err != nil {
		s.logger.Error("sweep_failed", "Reconciliation sweep failed", requestID, err, nil)
		return
	}

	s.logger.Debug("sweep_completed", "Reconciliation sweep completed", requestID, map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
	})
}
