// Package storage defines persistence for coach state: user profiles, the
// persisted client stage, chat history and guard metrics.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vidasmart/coachgw/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("storage: not found")

// GuardMetric is one guard decision, kept for analytics.
type GuardMetric struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	StageBefore domain.Stage `json:"stageBefore"`
	StageAfter  domain.Stage `json:"stageAfter"`
	Detected    domain.Stage `json:"detectedStage"`
	Confidence  float64      `json:"confidence"`
	Action      string       `json:"action"`
	Issues      []string     `json:"issues,omitempty"`
	Hints       []string     `json:"hints,omitempty"`
	Fallback    bool         `json:"fallback,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	UpsertProfile(ctx context.Context, p *domain.UserProfile) error
	GetProfile(ctx context.Context, id string) (*domain.UserProfile, error)
}

// StageStore persists the client stage per user.
type StageStore interface {
	// GetStage returns ErrNotFound when no stage was ever stored.
	GetStage(ctx context.Context, userID string) (domain.Stage, error)
	SetStage(ctx context.Context, userID string, st domain.Stage) error
}

// HistoryStore persists chat turns.
type HistoryStore interface {
	// AppendMessages stores msgs in order. Messages without a timestamp
	// are stamped with the store's clock.
	AppendMessages(ctx context.Context, userID string, msgs ...domain.ChatMessage) error

	// History returns up to limit most recent messages, oldest first.
	// A limit <= 0 returns everything.
	History(ctx context.Context, userID string, limit int) ([]domain.ChatMessage, error)
}

// MetricStore persists guard metrics.
type MetricStore interface {
	RecordMetric(ctx context.Context, m *GuardMetric) error
	ListMetrics(ctx context.Context, userID string, limit int) ([]GuardMetric, error)
}

// Store is the full persistence surface used by the HTTP layer.
type Store interface {
	ProfileStore
	StageStore
	HistoryStore
	MetricStore

	// Prune deletes chat messages and metrics created before cutoff and
	// returns how many rows were removed.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
