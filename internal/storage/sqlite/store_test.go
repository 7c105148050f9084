package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/vidasmart/coachgw/internal/domain"
	"github.com/vidasmart/coachgw/internal/storage"
	"github.com/vidasmart/coachgw/internal/storage/storagetest"
)

var memdb atomic.Int64

func newMemStore(t *testing.T) *Store {
	t.Helper()
	// Shared cache keeps the in-memory database alive across pooled connections.
	s, err := New(fmt.Sprintf("file:memdb%d?mode=memory&cache=shared", memdb.Add(1)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newMemStore(t)
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coach.db")
	ctx := context.Background()

	s, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.SetStage(ctx, "u-1", domain.StagePartner); err != nil {
		t.Fatalf("SetStage() error = %v", err)
	}
	if err := s.AppendMessages(ctx, "u-1", domain.ChatMessage{Role: domain.RoleUser, Content: "já assinei"}); err != nil {
		t.Fatalf("AppendMessages() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = New(path)
	if err != nil {
		t.Fatalf("New() reopen error = %v", err)
	}
	defer s.Close()

	st, err := s.GetStage(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetStage() error = %v", err)
	}
	if st != domain.StagePartner {
		t.Errorf("GetStage() = %s, want partner", st)
	}
	history, err := s.History(ctx, "u-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 || history[0].Content != "já assinei" {
		t.Errorf("History() = %v, want one message", history)
	}
}

func TestStore_UnknownStoredStage(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO client_stages (user_id, stage, updated_at) VALUES ('u-1', 'legacy', 0)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	st, err := s.GetStage(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetStage() error = %v", err)
	}
	if st != domain.StageLead {
		t.Errorf("GetStage() = %s, want lead", st)
	}
}
