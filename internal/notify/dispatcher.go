package notify

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"aegis/internal/platform/metrics"
)

const (
	queueDepth       = 256
	deliveryAttempts = 3
)

// Dispatcher decouples alert production from delivery. Enqueue never blocks;
// a full queue drops the alert and counts the failure, because stalling a
// decision on a notification channel is worse than a missed ping.
type Dispatcher struct {
	notifier Notifier
	queue    chan Alert
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(notifier Notifier, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		queue:    make(chan Alert, queueDepth),
		limiter:  rate.NewLimiter(rate.Limit(20), 40),
		logger:   logger,
		metrics:  m,
	}
}

// Enqueue hands an alert to the delivery worker without blocking.
func (d *Dispatcher) Enqueue(alert Alert) {
	select {
	case d.queue <- alert:
	default:
		d.metrics.NotifyFailures.Inc()
		d.logger.Warn("alert queue full, dropping alert",
			slog.String("event_id", alert.EventID.String()))
	}
}

// Run delivers queued alerts until the context is canceled. Each alert gets
// a bounded number of attempts; the limiter spaces retries so a broken
// channel cannot spin the worker.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case alert := <-d.queue:
			d.deliver(ctx, alert)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, alert Alert) {
	for attempt := 1; attempt <= deliveryAttempts; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}
		err := d.notifier.Notify(ctx, alert)
		if err == nil {
			return
		}
		d.logger.Warn("alert delivery failed",
			slog.String("event_id", alert.EventID.String()),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
	d.metrics.NotifyFailures.Inc()
}
