// Package events carries the notification emitted after every coach reply
// so the messaging gateway and analytics can react to it.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/vidasmart/coachgw/internal/domain"
)

// Reply describes one answered message.
type Reply struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	Phone       string       `json:"phone,omitempty"`
	Reply       string       `json:"reply"`
	StageBefore domain.Stage `json:"stageBefore"`
	Stage       domain.Stage `json:"stage"`
	Detected    domain.Stage `json:"detectedStage"`
	Confidence  float64      `json:"confidence"`
	Action      string       `json:"action"`
	Issues      []string     `json:"issues,omitempty"`
	Hints       []string     `json:"hints,omitempty"`
	Fallback    bool         `json:"fallback,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// StageChanged reports whether the reply moved the client forward.
func (r *Reply) StageChanged() bool {
	return r.Stage != r.StageBefore
}

// Publisher delivers reply events.
type Publisher interface {
	Publish(ctx context.Context, ev *Reply) error
	Close() error
}

// Multi fans an event out to several publishers. Every publisher is tried;
// the errors are joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev *Reply) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
