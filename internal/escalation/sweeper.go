package escalation

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper settles overdue escalations in the background. Expiry is also
// checked lazily on read; the sweeper catches events nobody touches again.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(service *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{service: service, interval: interval, logger: logger}
}

// Run sweeps until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			expired, err := s.service.ExpireOverdue(ctx)
			if err != nil {
				s.logger.Error("escalation sweep", slog.Any("error", err))
				continue
			}
			if expired > 0 {
				s.logger.Info("expired overdue escalations", slog.Int("count", expired))
			}
		}
	}
}
