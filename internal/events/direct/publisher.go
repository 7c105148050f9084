// Package direct provides a publisher that records reply events as guard
// metrics in storage. It is the default for single-instance deployments.
package direct

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vidasmart/coachgw/internal/events"
	"github.com/vidasmart/coachgw/internal/storage"
)

// Publisher implements events.Publisher by writing to a MetricStore.
type Publisher struct {
	store  storage.MetricStore
	logger *slog.Logger
}

// NewPublisher creates a direct publisher.
func NewPublisher(store storage.MetricStore, logger *slog.Logger) (*Publisher, error) {
	if store == nil {
		return nil, fmt.Errorf("metric store required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{store: store, logger: logger}, nil
}

// Publish stores the guard outcome carried by ev.
func (p *Publisher) Publish(ctx context.Context, ev *events.Reply) error {
	m := &storage.GuardMetric{
		ID:          ev.ID,
		UserID:      ev.UserID,
		StageBefore: ev.StageBefore,
		StageAfter:  ev.Stage,
		Detected:    ev.Detected,
		Confidence:  ev.Confidence,
		Action:      ev.Action,
		Issues:      ev.Issues,
		Hints:       ev.Hints,
		Fallback:    ev.Fallback,
		CreatedAt:   ev.Timestamp,
	}
	if err := p.store.RecordMetric(ctx, m); err != nil {
		return fmt.Errorf("record guard metric: %w", err)
	}

	if ev.StageChanged() {
		p.logger.Info("client stage advanced",
			slog.String("user_id", ev.UserID),
			slog.String("from", string(ev.StageBefore)),
			slog.String("to", string(ev.Stage)),
		)
	}
	return nil
}

// Close is a no-op for the direct publisher.
func (p *Publisher) Close() error {
	return nil
}
