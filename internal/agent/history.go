package agent

import (
	"github.com/firebase/genkit/go/ai"

	"github.com/taarya/taarya/internal/tools"
)

// Message roles after normalization.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxHistoryMessages bounds the active conversation window. Older messages
// are dropped first.
const MaxHistoryMessages = 50

// Message is one conversation turn. ToolOutputs is only set on assistant
// messages that were produced with tool calls.
type Message struct {
	Role        string         `json:"role"`
	Content     string         `json:"content"`
	ToolOutputs []tools.Output `json:"tool_outputs,omitempty"`
}

// NormalizeRole maps boundary role aliases onto the canonical set.
// "human" becomes "user" and "ai" becomes "assistant"; canonical roles
// pass through. ok is false for anything else.
func NormalizeRole(role string) (string, bool) {
	switch role {
	case RoleUser, "human":
		return RoleUser, true
	case RoleAssistant, "ai":
		return RoleAssistant, true
	default:
		return "", false
	}
}

// TruncateHistory keeps the most recent MaxHistoryMessages messages,
// dropping from the front.
func TruncateHistory(history []Message) []Message {
	if len(history) <= MaxHistoryMessages {
		return history
	}
	return history[len(history)-MaxHistoryMessages:]
}

// toModelMessages converts normalized history to genkit messages.
func toModelMessages(history []Message) []*ai.Message {
	messages := make([]*ai.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		default:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		}
	}
	return messages
}
