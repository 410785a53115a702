package agent

import (
	"fmt"

	"github.com/nxank4/zerog/pkg/llm"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationMessage is one entry in the per-task conversation history. The
// history is owned exclusively by the orchestrator, append-only, reset per
// task, and seeded with a task-specific instruction.
type ConversationMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(text string) ConversationMessage {
	return ConversationMessage{Role: RoleUser, Content: text}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(text string) ConversationMessage {
	return ConversationMessage{Role: RoleAssistant, Content: text}
}

// NewToolResultMessage wraps an action result as a synthetic user message so
// the model sees the outcome of its tool call as data.
func NewToolResultMessage(action Action, result ActionResult) ConversationMessage {
	return NewUserMessage(fmt.Sprintf(
		"Tool result for %s (status: %s):\n%s", action.Name, result.Status, result.Output))
}

// NewToolRejectedMessage is the synthetic feedback appended when the human
// rejects a pending action.
func NewToolRejectedMessage(action Action) ConversationMessage {
	return NewUserMessage(fmt.Sprintf(
		"Tool call %s was rejected by the user. Do not retry it.", action.Name))
}

// toWire converts history to the transport wire format.
func toWire(history []ConversationMessage) []llm.Message {
	out := make([]llm.Message, 0, len(history))
	for _, m := range history {
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
