// Package sqlite is the SQLite implementation of storage.Store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vidasmart/coachgw/internal/domain"
	"github.com/vidasmart/coachgw/internal/storage"
)

// Store keeps coach state in a SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New opens (and creates if needed) the database at dsn.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Timestamps are stored as unix milliseconds so range deletes compare
// numerically.
func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS user_profiles (
			id TEXT PRIMARY KEY,
			profile TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS client_stages (
			user_id TEXT PRIMARY KEY,
			stage TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_metrics (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			stage_before TEXT NOT NULL,
			stage_after TEXT NOT NULL,
			detected_stage TEXT NOT NULL,
			confidence REAL NOT NULL,
			action TEXT NOT NULL,
			issues TEXT,
			hints TEXT,
			fallback INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_user ON chat_messages(user_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_created ON chat_messages(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_metrics_user ON conversation_metrics(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_metrics_created ON conversation_metrics(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) UpsertProfile(ctx context.Context, p *domain.UserProfile) error {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return domain.ErrMissingField("userProfile.id")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (id, profile, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET profile = excluded.profile, updated_at = excluded.updated_at`,
		p.ID, string(data), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*domain.UserProfile, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT profile FROM user_profiles WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var p domain.UserProfile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}

func (s *Store) GetStage(ctx context.Context, userID string) (domain.Stage, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT stage FROM client_stages WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("stage for %s: %w", userID, storage.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get stage: %w", err)
	}
	return domain.ParseStageOr(raw, domain.StageLead), nil
}

func (s *Store) SetStage(ctx context.Context, userID string, st domain.Stage) error {
	if !st.Valid() {
		return domain.ErrInvalidRequest(fmt.Sprintf("unknown stage %q", st))
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_stages (user_id, stage, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET stage = excluded.stage, updated_at = excluded.updated_at`,
		userID, string(st), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set stage: %w", err)
	}
	return nil
}

func (s *Store) AppendMessages(ctx context.Context, userID string, msgs ...domain.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chat_messages (id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	for _, m := range msgs {
		at := now
		if m.Timestamp != nil {
			at = *m.Timestamp
		}
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), userID, string(m.Role), m.Content, at.UnixMilli()); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, userID string, limit int) ([]domain.ChatMessage, error) {
	query := `SELECT role, content, created_at FROM (
		SELECT seq, role, content, created_at FROM chat_messages
		WHERE user_id = ? ORDER BY seq DESC LIMIT ?
	) ORDER BY seq ASC`
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := []domain.ChatMessage{}
	for rows.Next() {
		var (
			m      domain.ChatMessage
			role   string
			millis int64
		)
		if err := rows.Scan(&role, &m.Content, &millis); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = domain.Role(role)
		ts := time.UnixMilli(millis).UTC()
		m.Timestamp = &ts
		history = append(history, m)
	}
	return history, rows.Err()
}

func (s *Store) RecordMetric(ctx context.Context, m *storage.GuardMetric) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}

	issues, err := json.Marshal(m.Issues)
	if err != nil {
		return fmt.Errorf("failed to marshal issues: %w", err)
	}
	hints, err := json.Marshal(m.Hints)
	if err != nil {
		return fmt.Errorf("failed to marshal hints: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_metrics
		 (id, user_id, stage_before, stage_after, detected_stage, confidence, action, issues, hints, fallback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, string(m.StageBefore), string(m.StageAfter), string(m.Detected),
		m.Confidence, m.Action, string(issues), string(hints), m.Fallback, m.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record metric: %w", err)
	}
	return nil
}

func (s *Store) ListMetrics(ctx context.Context, userID string, limit int) ([]storage.GuardMetric, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, stage_before, stage_after, detected_stage, confidence, action, issues, hints, fallback, created_at
		 FROM conversation_metrics WHERE user_id = ?
		 ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	metrics := []storage.GuardMetric{}
	for rows.Next() {
		var (
			m                       storage.GuardMetric
			before, after, detected string
			issues, hints           sql.NullString
			millis                  int64
		)
		if err := rows.Scan(&m.ID, &m.UserID, &before, &after, &detected, &m.Confidence,
			&m.Action, &issues, &hints, &m.Fallback, &millis); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		m.StageBefore = domain.Stage(before)
		m.StageAfter = domain.Stage(after)
		m.Detected = domain.Stage(detected)
		m.CreatedAt = time.UnixMilli(millis).UTC()
		if err := unmarshalList(issues, &m.Issues); err != nil {
			return nil, err
		}
		if err := unmarshalList(hints, &m.Hints); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var total int64
	for _, table := range []string{"chat_messages", "conversation_metrics"} {
		res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE created_at < ?`, cutoff.UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to count pruned %s: %w", table, err)
		}
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return total, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func unmarshalList(raw sql.NullString, dst *[]string) error {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), dst); err != nil {
		return fmt.Errorf("failed to unmarshal list: %w", err)
	}
	return nil
}
