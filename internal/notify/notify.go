// Package notify delivers advocate alerts. Delivery is best effort and
// always off the decision path: a failed or slow notification never changes
// or delays a decision outcome.
package notify

import (
	"context"
	"log/slog"
	"time"

	"aegis/pkg/domain"
)

// Alert tells an advocate that an escalation needs their attention.
type Alert struct {
	EventID    domain.EventID       `json:"event_id"`
	GrantID    domain.GrantID       `json:"poa_id,omitempty"`
	AdvocateID string               `json:"advocate_id"`
	SeniorID   string               `json:"senior_id,omitempty"`
	Reason     domain.TriggerReason `json:"reason"`
	Service    string               `json:"service,omitempty"`
	Amount     float64              `json:"amount,omitempty"`
	// Code is the verification code the advocate relays back through the
	// break-glass flow.
	Code      string    `json:"verification_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier delivers one alert to its channel.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log. Development stand-in for
// a real channel.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	n.logger.Info("advocate alert",
		slog.String("event_id", alert.EventID.String()),
		slog.String("advocate_id", alert.AdvocateID),
		slog.String("reason", string(alert.Reason)),
		slog.Float64("amount", alert.Amount),
	)
	return nil
}
