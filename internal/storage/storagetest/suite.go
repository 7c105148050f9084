// Package storagetest runs the same behavioural checks against every
// storage.Store implementation.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vidasmart/coachgw/internal/domain"
	"github.com/vidasmart/coachgw/internal/storage"
)

// Run exercises s. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("Profile", func(t *testing.T) { testProfile(t, newStore(t)) })
	t.Run("Stage", func(t *testing.T) { testStage(t, newStore(t)) })
	t.Run("History", func(t *testing.T) { testHistory(t, newStore(t)) })
	t.Run("Metrics", func(t *testing.T) { testMetrics(t, newStore(t)) })
	t.Run("Prune", func(t *testing.T) { testPrune(t, newStore(t)) })
}

func testProfile(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if _, err := s.GetProfile(ctx, "u-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetProfile() on empty store error = %v, want ErrNotFound", err)
	}

	created := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	p := &domain.UserProfile{ID: "u-1", DisplayName: "Ana Souza", CreatedAt: created, Age: 34}
	if err := s.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("UpsertProfile() error = %v", err)
	}

	p.DisplayName = "Ana S."
	if err := s.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("UpsertProfile() second call error = %v", err)
	}

	got, err := s.GetProfile(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if got.DisplayName != "Ana S." {
		t.Errorf("DisplayName = %q, want %q", got.DisplayName, "Ana S.")
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if got.Age != 34 {
		t.Errorf("Age = %d, want 34", got.Age)
	}

	if err := s.UpsertProfile(ctx, &domain.UserProfile{}); err == nil {
		t.Error("UpsertProfile() without id error = nil, want error")
	}
}

func testStage(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if _, err := s.GetStage(ctx, "u-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetStage() error = %v, want ErrNotFound", err)
	}

	for _, st := range []domain.Stage{domain.StageSpecialist, domain.StageSeller} {
		if err := s.SetStage(ctx, "u-1", st); err != nil {
			t.Fatalf("SetStage(%s) error = %v", st, err)
		}
		got, err := s.GetStage(ctx, "u-1")
		if err != nil {
			t.Fatalf("GetStage() error = %v", err)
		}
		if got != st {
			t.Errorf("GetStage() = %s, want %s", got, st)
		}
	}

	if err := s.SetStage(ctx, "u-1", domain.Stage("vip")); err == nil {
		t.Error("SetStage(vip) error = nil, want error")
	}
}

func testHistory(t *testing.T, s storage.Store) {
	ctx := context.Background()

	got, err := s.History(ctx, "u-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("History() on empty store = %v, want empty", got)
	}

	turns := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "oi"},
		{Role: domain.RoleAssistant, Content: "olá!"},
		{Role: domain.RoleUser, Content: "quero emagrecer"},
		{Role: domain.RoleAssistant, Content: "vamos montar um plano"},
	}
	if err := s.AppendMessages(ctx, "u-1", turns[:2]...); err != nil {
		t.Fatalf("AppendMessages() error = %v", err)
	}
	if err := s.AppendMessages(ctx, "u-1", turns[2:]...); err != nil {
		t.Fatalf("AppendMessages() error = %v", err)
	}
	if err := s.AppendMessages(ctx, "u-2", domain.ChatMessage{Role: domain.RoleUser, Content: "outro"}); err != nil {
		t.Fatalf("AppendMessages() error = %v", err)
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{limit: 0, want: []string{"oi", "olá!", "quero emagrecer", "vamos montar um plano"}},
		{limit: 2, want: []string{"quero emagrecer", "vamos montar um plano"}},
		{limit: 10, want: []string{"oi", "olá!", "quero emagrecer", "vamos montar um plano"}},
	}
	for _, tt := range tests {
		got, err := s.History(ctx, "u-1", tt.limit)
		if err != nil {
			t.Fatalf("History(%d) error = %v", tt.limit, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("History(%d) len = %d, want %d", tt.limit, len(got), len(tt.want))
		}
		for i := range tt.want {
			if got[i].Content != tt.want[i] {
				t.Errorf("History(%d)[%d] = %q, want %q", tt.limit, i, got[i].Content, tt.want[i])
			}
			if got[i].Timestamp == nil {
				t.Errorf("History(%d)[%d].Timestamp = nil", tt.limit, i)
			}
		}
	}

	last, _ := s.History(ctx, "u-1", 1)
	if last[0].Role != domain.RoleAssistant {
		t.Errorf("last role = %s, want assistant", last[0].Role)
	}
}

func testMetrics(t *testing.T, s storage.Store) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, action := range []string{"proceed", "force_stage", "block_reply"} {
		m := &storage.GuardMetric{
			UserID:      "u-1",
			StageBefore: domain.StageLead,
			StageAfter:  domain.StageSpecialist,
			Detected:    domain.StageSeller,
			Confidence:  0.66,
			Action:      action,
			Issues:      []string{"capped_stage_jump"},
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.RecordMetric(ctx, m); err != nil {
			t.Fatalf("RecordMetric() error = %v", err)
		}
		if m.ID == "" {
			t.Error("RecordMetric() did not assign an id")
		}
	}

	got, err := s.ListMetrics(ctx, "u-1", 2)
	if err != nil {
		t.Fatalf("ListMetrics() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListMetrics() len = %d, want 2", len(got))
	}
	if got[0].Action != "block_reply" || got[1].Action != "force_stage" {
		t.Errorf("ListMetrics() actions = %s, %s, want block_reply, force_stage", got[0].Action, got[1].Action)
	}
	if len(got[0].Issues) != 1 || got[0].Issues[0] != "capped_stage_jump" {
		t.Errorf("Issues = %v, want [capped_stage_jump]", got[0].Issues)
	}
	if got[0].Detected != domain.StageSeller {
		t.Errorf("Detected = %s, want seller", got[0].Detected)
	}
}

func testPrune(t *testing.T, s storage.Store) {
	ctx := context.Background()
	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-48 * time.Hour)
	recent := cutoff.Add(time.Hour)

	msgs := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "antiga", Timestamp: &old},
		{Role: domain.RoleUser, Content: "nova", Timestamp: &recent},
	}
	if err := s.AppendMessages(ctx, "u-1", msgs...); err != nil {
		t.Fatalf("AppendMessages() error = %v", err)
	}
	if err := s.RecordMetric(ctx, &storage.GuardMetric{UserID: "u-1", Action: "proceed", StageBefore: domain.StageLead, StageAfter: domain.StageLead, Detected: domain.StageLead, CreatedAt: old}); err != nil {
		t.Fatalf("RecordMetric() error = %v", err)
	}
	if err := s.SetStage(ctx, "u-1", domain.StageSeller); err != nil {
		t.Fatalf("SetStage() error = %v", err)
	}

	n, err := s.Prune(ctx, cutoff)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() = %d, want 2", n)
	}

	history, _ := s.History(ctx, "u-1", 0)
	if len(history) != 1 || history[0].Content != "nova" {
		t.Errorf("History() after prune = %v, want [nova]", history)
	}
	if st, err := s.GetStage(ctx, "u-1"); err != nil || st != domain.StageSeller {
		t.Errorf("GetStage() after prune = %s, %v, want seller", st, err)
	}
}
