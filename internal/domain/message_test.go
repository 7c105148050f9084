package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestLastByRole(t *testing.T) {
	history := []ChatMessage{
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "u1"},
		{Role: RoleAssistant, Content: "a2"},
		{Role: RoleUser, Content: "u2"},
		{Role: RoleAssistant, Content: "a3"},
	}

	got := LastByRole(history, RoleAssistant, 2)
	if len(got) != 2 || got[0].Content != "a2" || got[1].Content != "a3" {
		t.Errorf("LastByRole() = %+v, want [a2 a3]", got)
	}

	if got := LastByRole(nil, RoleUser, 3); len(got) != 0 {
		t.Errorf("LastByRole(nil) = %+v, want empty", got)
	}
}

func TestCountRoles(t *testing.T) {
	history := []ChatMessage{
		{Role: RoleUser}, {Role: RoleAssistant}, {Role: RoleUser}, {Role: RoleSystem},
	}
	user, assistant := CountRoles(history)
	if user != 2 || assistant != 1 {
		t.Errorf("CountRoles() = (%d, %d), want (2, 1)", user, assistant)
	}
}

func TestUserProfile_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantName string
		wantAt   time.Time
	}{
		{
			name:     "snake case from user table",
			body:     `{"id":"u1","full_name":"Maria Silva","created_at":"2025-01-02T03:04:05Z"}`,
			wantName: "Maria Silva",
			wantAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			name:     "camel case",
			body:     `{"id":"u1","displayName":"João","createdAt":"2025-06-01T00:00:00Z"}`,
			wantName: "João",
			wantAt:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "no created at",
			body: `{"id":"u1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p UserProfile
			if err := json.Unmarshal([]byte(tt.body), &p); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if p.ID != "u1" {
				t.Errorf("ID = %q, want u1", p.ID)
			}
			if p.DisplayName != tt.wantName {
				t.Errorf("DisplayName = %q, want %q", p.DisplayName, tt.wantName)
			}
			if !p.CreatedAt.Equal(tt.wantAt) {
				t.Errorf("CreatedAt = %v, want %v", p.CreatedAt, tt.wantAt)
			}
		})
	}
}

func TestUserProfile_UnmarshalJSON_BadTimestamp(t *testing.T) {
	var p UserProfile
	if err := json.Unmarshal([]byte(`{"id":"u1","created_at":"yesterday"}`), &p); err == nil {
		t.Error("expected an error for an unparseable created_at")
	}
}

func TestUserProfile_AccountAge(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	p := UserProfile{CreatedAt: now.Add(-72 * time.Hour)}
	if got := p.AccountAge(now); got != 72*time.Hour {
		t.Errorf("AccountAge() = %v, want 72h", got)
	}

	future := UserProfile{CreatedAt: now.Add(time.Hour)}
	if got := future.AccountAge(now); got != 0 {
		t.Errorf("AccountAge() for future account = %v, want 0", got)
	}

	var zero UserProfile
	if got := zero.AccountAge(now); got != 0 {
		t.Errorf("AccountAge() for zero CreatedAt = %v, want 0", got)
	}
}

func TestUserProfile_FirstName(t *testing.T) {
	p := UserProfile{DisplayName: "  Ana Paula Souza "}
	if got := p.FirstName(); got != "Ana" {
		t.Errorf("FirstName() = %q, want Ana", got)
	}
}

func TestUserProfile_Detailed(t *testing.T) {
	var p UserProfile
	body := `{"id":"u1","age":34,"current_weight":82.5,"target_weight":75,"goal_type":"perder peso"}`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !p.Detailed() {
		t.Errorf("Detailed() = false for %+v", p)
	}
	if p.GoalType != "perder peso" {
		t.Errorf("GoalType = %q, want %q", p.GoalType, "perder peso")
	}

	p.TargetWeight = 0
	if p.Detailed() {
		t.Error("Detailed() = true without target weight")
	}
}
