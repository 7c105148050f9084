package domain

import "time"

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is a single turn of a conversation.
type ChatMessage struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// CountRoles returns how many messages in history were written by the
// user and by the assistant.
func CountRoles(history []ChatMessage) (user, assistant int) {
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			user++
		case RoleAssistant:
			assistant++
		}
	}
	return user, assistant
}

// LastByRole returns up to n most recent messages with the given role,
// oldest first.
func LastByRole(history []ChatMessage, role Role, n int) []ChatMessage {
	var out []ChatMessage
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		if history[i].Role == role {
			out = append(out, history[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
