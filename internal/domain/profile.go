package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// UserProfile is the subset of the user record the coach needs. It is
// owned by the user-management system; only ID and CreatedAt drive
// heuristics, DisplayName personalises prompts.
type UserProfile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`

	Age           int     `json:"age,omitempty"`
	GoalType      string  `json:"goalType,omitempty"`
	CurrentWeight float64 `json:"currentWeight,omitempty"`
	TargetWeight  float64 `json:"targetWeight,omitempty"`
}

// UnmarshalJSON accepts both the camelCase shape and the snake_case shape
// stored by the user table (full_name, created_at).
func (p *UserProfile) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
		FullName    string `json:"full_name"`
		Name        string `json:"name"`
		Phone       string `json:"phone"`
		CreatedAt   string `json:"createdAt"`
		CreatedAtDB string `json:"created_at"`

		Age             int     `json:"age"`
		GoalType        string  `json:"goalType"`
		GoalTypeDB      string  `json:"goal_type"`
		CurrentWeight   float64 `json:"currentWeight"`
		CurrentWeightDB float64 `json:"current_weight"`
		TargetWeight    float64 `json:"targetWeight"`
		TargetWeightDB  float64 `json:"target_weight"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.ID = raw.ID
	p.Phone = raw.Phone
	p.DisplayName = firstNonEmpty(raw.DisplayName, raw.FullName, raw.Name)
	p.CreatedAt = time.Time{}
	p.Age = raw.Age
	p.GoalType = firstNonEmpty(raw.GoalType, raw.GoalTypeDB)
	p.CurrentWeight = firstNonZero(raw.CurrentWeight, raw.CurrentWeightDB)
	p.TargetWeight = firstNonZero(raw.TargetWeight, raw.TargetWeightDB)

	if ts := firstNonEmpty(raw.CreatedAt, raw.CreatedAtDB); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return err
		}
		p.CreatedAt = parsed
	}
	return nil
}

// FirstName returns the first word of the display name.
func (p *UserProfile) FirstName() string {
	fields := strings.Fields(p.DisplayName)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// AccountAge returns how long the account has existed at now. A zero
// CreatedAt yields zero.
func (p *UserProfile) AccountAge(now time.Time) time.Duration {
	if p.CreatedAt.IsZero() || now.Before(p.CreatedAt) {
		return 0
	}
	return now.Sub(p.CreatedAt)
}

// Detailed reports whether the user filled in age and both weights.
func (p *UserProfile) Detailed() bool {
	return p.Age > 0 && p.CurrentWeight > 0 && p.TargetWeight > 0
}

func firstNonZero(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
