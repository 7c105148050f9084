package coach

import (
	"fmt"
	"time"
)

// Config tunes the orchestrator.
type Config struct {
	// HistoryMessages is how many of the most recent history messages are
	// sent to the generator.
	HistoryMessages int `koanf:"history_messages" json:"historyMessages"`

	// HistoryTokens caps the token size of that window. Zero disables it.
	HistoryTokens int `koanf:"history_tokens" json:"historyTokens"`

	// GenerationTimeout bounds each generator call on top of the caller's
	// own deadline.
	GenerationTimeout time.Duration `koanf:"generation_timeout" json:"generationTimeout"`

	// SuggestionLimit is how many plan suggestions go into the prompt.
	SuggestionLimit int `koanf:"suggestion_limit" json:"suggestionLimit"`

	// TimeZone selects the clock used for time-of-day suggestions.
	TimeZone string `koanf:"time_zone" json:"timeZone"`
}

func DefaultConfig() Config {
	return Config{
		HistoryMessages:   6,
		HistoryTokens:     2000,
		GenerationTimeout: 25 * time.Second,
		SuggestionLimit:   2,
		TimeZone:          "America/Sao_Paulo",
	}
}

func (c Config) Validate() error {
	if c.HistoryMessages < 0 {
		return fmt.Errorf("history_messages must not be negative")
	}
	if c.HistoryTokens < 0 {
		return fmt.Errorf("history_tokens must not be negative")
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("generation_timeout must be positive")
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("time_zone: %w", err)
	}
	return nil
}
