// Package memory is an in-process implementation of storage.Store used in
// tests and single-node development.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vidasmart/coachgw/internal/domain"
	"github.com/vidasmart/coachgw/internal/storage"
)

// Store keeps everything in maps guarded by a single RWMutex.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]domain.UserProfile
	stages   map[string]domain.Stage
	history  map[string][]domain.ChatMessage
	metrics  map[string][]storage.GuardMetric
	now      func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		profiles: make(map[string]domain.UserProfile),
		stages:   make(map[string]domain.Stage),
		history:  make(map[string][]domain.ChatMessage),
		metrics:  make(map[string][]storage.GuardMetric),
		now:      time.Now,
	}
}

func (s *Store) UpsertProfile(ctx context.Context, p *domain.UserProfile) error {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return domain.ErrMissingField("userProfile.id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = *p
	return nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*domain.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, storage.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) GetStage(ctx context.Context, userID string) (domain.Stage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.stages[userID]
	if !ok {
		return "", fmt.Errorf("stage for %s: %w", userID, storage.ErrNotFound)
	}
	return st, nil
}

func (s *Store) SetStage(ctx context.Context, userID string, st domain.Stage) error {
	if !st.Valid() {
		return domain.ErrInvalidRequest(fmt.Sprintf("unknown stage %q", st))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages[userID] = st
	return nil
}

func (s *Store) AppendMessages(ctx context.Context, userID string, msgs ...domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, m := range msgs {
		if m.Timestamp == nil {
			at := now
			m.Timestamp = &at
		}
		s.history[userID] = append(s.history[userID], m)
	}
	return nil
}

func (s *Store) History(ctx context.Context, userID string, limit int) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.history[userID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]domain.ChatMessage, len(all))
	copy(out, all)
	return out, nil
}

func (s *Store) RecordMetric(ctx context.Context, m *storage.GuardMetric) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *m
	stored.Issues = slices.Clone(m.Issues)
	stored.Hints = slices.Clone(m.Hints)
	s.metrics[m.UserID] = append(s.metrics[m.UserID], stored)
	return nil
}

// ListMetrics returns the newest metrics first.
func (s *Store) ListMetrics(ctx context.Context, userID string, limit int) ([]storage.GuardMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.metrics[userID]
	out := make([]storage.GuardMetric, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, msgs := range s.history {
		kept := slices.DeleteFunc(msgs, func(m domain.ChatMessage) bool {
			return m.Timestamp != nil && m.Timestamp.Before(cutoff)
		})
		removed += int64(len(msgs) - len(kept))
		s.history[id] = kept
	}
	for id, metrics := range s.metrics {
		kept := slices.DeleteFunc(metrics, func(m storage.GuardMetric) bool {
			return m.CreatedAt.Before(cutoff)
		})
		removed += int64(len(metrics) - len(kept))
		s.metrics[id] = kept
	}
	return removed, nil
}

func (s *Store) Close() error {
	return nil
}
