// Package prompt renders the coach's system prompts and canned replies
// from a YAML catalog.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/vidasmart/coachgw/internal/domain"
	"github.com/vidasmart/coachgw/internal/guard"
	"github.com/vidasmart/coachgw/internal/plan"
	"github.com/vidasmart/coachgw/internal/stage"
)

//go:embed prompts.yaml
var defaultCatalog []byte

// Catalog is the raw YAML document.
type Catalog struct {
	Base        string            `yaml:"base"`
	Stages      map[string]string `yaml:"stages"`
	Moments     map[string]string `yaml:"moments"`
	Profiles    map[string]string `yaml:"profiles"`
	Hints       map[string]string `yaml:"hints"`
	Suggestions string            `yaml:"suggestions"`
	Replies     Replies           `yaml:"replies"`
}

// Replies are the canned messages sent without calling the generator.
type Replies struct {
	Fallback    string `yaml:"fallback"`
	Emergency   string `yaml:"emergency"`
	Abusive     string `yaml:"abusive"`
	RateLimited string `yaml:"rate_limited"`
	Missing     string `yaml:"missing"`
}

// Data is what a system prompt is rendered from.
type Data struct {
	Profile     domain.UserProfile
	Persisted   domain.Stage
	Stage       domain.Stage
	Moment      stage.Moment
	AgeDays     int
	Hints       []guard.Hint
	Suggestions []plan.Suggestion
}

// view is the template context.
type view struct {
	Name           string
	Goal           string
	PsychProfile   string
	Moment         string
	AccountAgeDays int
	Persisted      domain.Stage
	Suggestions    []plan.Suggestion
}

// Builder renders prompts. It is immutable and safe for concurrent use.
type Builder struct {
	catalog     Catalog
	base        *template.Template
	suggestions *template.Template
	stages      map[domain.Stage]string
}

// Default returns a builder for the embedded catalog.
func Default() (*Builder, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or the embedded one when path is empty.
func Load(path string) (*Builder, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a Builder from catalog YAML.
func Parse(data []byte) (*Builder, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}

	if strings.TrimSpace(c.Base) == "" {
		return nil, fmt.Errorf("prompt catalog: base prompt is required")
	}
	for name, reply := range map[string]string{
		"fallback":     c.Replies.Fallback,
		"emergency":    c.Replies.Emergency,
		"abusive":      c.Replies.Abusive,
		"rate_limited": c.Replies.RateLimited,
		"missing":      c.Replies.Missing,
	} {
		if strings.TrimSpace(reply) == "" {
			return nil, fmt.Errorf("prompt catalog: %s reply is required", name)
		}
	}

	b := &Builder{catalog: c, stages: make(map[domain.Stage]string)}

	var err error
	if b.base, err = template.New("base").Parse(c.Base); err != nil {
		return nil, fmt.Errorf("prompt catalog: base: %w", err)
	}
	if b.suggestions, err = template.New("suggestions").Parse(c.Suggestions); err != nil {
		return nil, fmt.Errorf("prompt catalog: suggestions: %w", err)
	}

	for label, text := range c.Stages {
		st, err := domain.ParseStage(label)
		if err != nil {
			return nil, fmt.Errorf("prompt catalog: %w", err)
		}
		b.stages[st] = strings.TrimSpace(text)
	}
	for _, st := range domain.Stages() {
		if b.stages[st] == "" {
			return nil, fmt.Errorf("prompt catalog: no prompt for stage %s", st)
		}
	}

	return b, nil
}

// System renders the system prompt for d.Stage.
func (b *Builder) System(d Data) (string, error) {
	profileKey := "expressive"
	if d.Profile.Detailed() {
		profileKey = "analytical"
	}

	v := view{
		Name:           d.Profile.FirstName(),
		Goal:           d.Profile.GoalType,
		PsychProfile:   b.catalog.Profiles[profileKey],
		Moment:         b.catalog.Moments[string(d.Moment)],
		AccountAgeDays: d.AgeDays,
		Persisted:      d.Persisted,
		Suggestions:    d.Suggestions,
	}

	var sb strings.Builder
	if err := b.base.Execute(&sb, v); err != nil {
		return "", fmt.Errorf("render base prompt: %w", err)
	}

	sections := []string{strings.TrimSpace(sb.String())}

	st := d.Stage
	if !st.Valid() {
		st = domain.StageLead
	}
	sections = append(sections, b.stages[st])

	for _, h := range d.Hints {
		if text := strings.TrimSpace(b.catalog.Hints[string(h.Code)]); text != "" {
			sections = append(sections, text)
		}
	}

	if len(d.Suggestions) > 0 {
		sb.Reset()
		if err := b.suggestions.Execute(&sb, v); err != nil {
			return "", fmt.Errorf("render suggestions: %w", err)
		}
		sections = append(sections, strings.TrimSpace(sb.String()))
	}

	return strings.Join(sections, "\n\n"), nil
}

// Fallback is sent when generation fails.
func (b *Builder) Fallback() string { return b.catalog.Replies.Fallback }

// BlockReply returns the canned reply for a blocking guard issue.
func (b *Builder) BlockReply(issues []guard.Issue) string {
	for _, issue := range issues {
		switch issue {
		case guard.IssueEmergencyRisk:
			return b.catalog.Replies.Emergency
		case guard.IssueAbusiveContent:
			return b.catalog.Replies.Abusive
		case guard.IssueRateLimited:
			return b.catalog.Replies.RateLimited
		case guard.IssueMissingUserResponse:
			return b.catalog.Replies.Missing
		}
	}
	return b.catalog.Replies.Fallback
}
