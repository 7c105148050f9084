package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vidasmart/coachgw/internal/auth"
	"github.com/vidasmart/coachgw/internal/config"
	"github.com/vidasmart/coachgw/internal/domain"
	"github.com/vidasmart/coachgw/internal/guard"
	"github.com/vidasmart/coachgw/internal/plan"
)

var testTime = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// missingConfig points at a file that does not exist so defaults apply.
func missingConfig(t *testing.T) string {
	return filepath.Join(t.TempDir(), "config.yaml")
}

func TestDetectCommand(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantStage  domain.Stage
		wantAction guard.Action
	}{
		{
			name:       "purchase intent",
			args:       []string{"Quero assinar agora, quanto custa?"},
			wantStage:  domain.StageSeller,
			wantAction: guard.ActionForceStage,
		},
		{
			name:       "greeting",
			args:       []string{"oi"},
			wantStage:  domain.StageLead,
			wantAction: guard.ActionProceed,
		},
		{
			name:       "emergency blocks",
			args:       []string{"--stage", "specialist", "às vezes penso em me matar"},
			wantStage:  domain.StageSpecialist,
			wantAction: guard.ActionBlockReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"detect", "--config", missingConfig(t)}, tt.args...)
			out, err := run(t, "", args...)
			if err != nil {
				t.Fatalf("detect error = %v", err)
			}

			var res DetectResult
			if err := json.Unmarshal([]byte(out), &res); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out)
			}
			if res.Decision.Stage != tt.wantStage {
				t.Errorf("decision stage = %q, want %q", res.Decision.Stage, tt.wantStage)
			}
			if res.Decision.Action != tt.wantAction {
				t.Errorf("decision action = %q, want %q", res.Decision.Action, tt.wantAction)
			}
		})
	}
}

func TestDetectCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	badHistory := filepath.Join(dir, "history.json")
	if err := os.WriteFile(badHistory, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"no message", []string{"detect"}},
		{"unknown stage", []string{"detect", "--stage", "vip", "oi"}},
		{"bad history", []string{"detect", "--history", badHistory, "oi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(tt.args, "--config", missingConfig(t))
			if _, err := run(t, "", args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestDetect_History(t *testing.T) {
	cfg := config.Default()
	history := []domain.ChatMessage{
		{Role: domain.RoleAssistant, Content: "Como posso ajudar?"},
	}

	got := detect(&cfg, "oi", domain.StageLead, history, testTime)
	if got.Detection.Metrics.AssistantTurns != 1 {
		t.Errorf("assistant turns = %d, want 1", got.Detection.Metrics.AssistantTurns)
	}
}

func TestExtractCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	body := `{"workouts":[{"day":"Mon","exercises":[{"name":"Squat"}]}]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	want := []plan.Item{{Identifier: "physical:Mon:Squat", Description: "Squat (Mon)"}}

	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"file", "", []string{"extract", "--type", "physical", path}},
		{"stdin", body, []string{"extract", "-t", "PHYSICAL", "-"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.stdin, tt.args...)
			if err != nil {
				t.Fatalf("extract error = %v", err)
			}
			var got []plan.Item
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("output is not JSON: %v\n%s", err, out)
			}
			if len(got) != 1 || got[0] != want[0] {
				t.Errorf("items = %+v, want %+v", got, want)
			}
		})
	}
}

func TestExtractCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing type", []string{"extract", "-"}},
		{"unknown type", []string{"extract", "--type", "financial", "-"}},
		{"missing file", []string{"extract", "--type", "physical", filepath.Join(t.TempDir(), "nope.json")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, "{}", tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestKeygenCommand(t *testing.T) {
	out, err := run(t, "", "keygen", "s3cret")
	if err != nil {
		t.Fatalf("keygen error = %v", err)
	}
	hash := auth.HashSecret("s3cret")
	if !strings.Contains(out, "secret_hash: \""+hash+"\"") {
		t.Errorf("output missing config snippet:\n%s", out)
	}

	out, err = run(t, "", "keygen", "--prefix", "test_")
	if err != nil {
		t.Fatalf("keygen error = %v", err)
	}
	if !strings.Contains(out, "Secret: test_") {
		t.Errorf("generated secret missing prefix:\n%s", out)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		cfg      config.LogConfig
		wantJSON bool
	}{
		{config.LogConfig{Level: "debug", Format: "json"}, true},
		{config.LogConfig{Level: "warn", Format: "text"}, false},
		{config.LogConfig{Level: "nonsense"}, true},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		newLogger(tt.cfg, &buf).Error("hello")
		isJSON := strings.HasPrefix(buf.String(), "{")
		if isJSON != tt.wantJSON {
			t.Errorf("newLogger(%+v) JSON = %v, want %v", tt.cfg, isJSON, tt.wantJSON)
		}
	}
}

func TestOpenStore(t *testing.T) {
	s, err := openStore(config.StorageConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("openStore(memory) error = %v", err)
	}
	s.Close()

	s, err = openStore(config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "coach.db")}})
	if err != nil {
		t.Fatalf("openStore(sqlite) error = %v", err)
	}
	s.Close()

	if _, err := openStore(config.StorageConfig{Type: "redis"}); err == nil {
		t.Error("openStore(redis) expected error")
	}
}
