// Package tokens counts chat tokens and trims history to a budget.
package tokens

import (
	"github.com/vidasmart/coachgw/internal/domain"
)

// Chat framing overhead, following OpenAI's accounting for chat models.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	assistantPriming = 3
)

// Counter counts tokens in plain text.
type Counter interface {
	CountText(text string) int
}

// CountMessages returns the prompt size of a chat request.
func CountMessages(c Counter, system string, history []domain.ChatMessage, user string) int {
	total := assistantPriming
	if system != "" {
		total += MessageTokens(c, system)
	}
	for _, m := range history {
		total += MessageTokens(c, m.Content)
	}
	if user != "" {
		total += MessageTokens(c, user)
	}
	return total
}

// MessageTokens is the cost of one chat message with the given content.
func MessageTokens(c Counter, content string) int {
	return tokensPerMessage + tokensPerRole + c.CountText(content)
}

// Trim returns the newest messages of history whose combined cost fits in
// budget. The result is a copy; history is never modified. A budget of
// zero or less disables trimming.
func Trim(c Counter, history []domain.ChatMessage, budget int) []domain.ChatMessage {
	if budget <= 0 {
		return clone(history)
	}

	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := MessageTokens(c, history[i].Content)
		if used+cost > budget {
			break
		}
		used += cost
		start = i
	}
	return clone(history[start:])
}

func clone(history []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(history))
	copy(out, history)
	return out
}

// Estimator approximates token counts from character length. It is used
// when no tokenizer is available for the configured model.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

func (e *Estimator) CountText(text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(len(text)) / e.CharsPerToken)
	if n == 0 {
		n = 1
	}
	return n
}
