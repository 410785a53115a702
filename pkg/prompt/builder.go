// Package prompt builds the system prompt and per-task instructions. The
// orchestrator itself only passes these strings through; all protocol wording
// lives here.
package prompt

import (
	"fmt"
	"strings"
)

// ToolInfo describes a tool for prompt generation.
type ToolInfo interface {
	Name() string
	Description() string
}

// SystemPrompt renders the protocol instructions the model must follow:
// reasoning in <think> tags, at most one <tool_call> per turn, and a final
// <message> when the task is complete.
func SystemPrompt(workspace string, tools []ToolInfo) string {
	var b strings.Builder
	b.WriteString("You are a coding assistant operating inside an editor. ")
	b.WriteString("You complete one task at a time by calling tools.\n\n")

	fmt.Fprintf(&b, "Working directory: %s\n\n", workspace)

	b.WriteString("## Output protocol\n\n")
	b.WriteString("Wrap private reasoning in <think>...</think>.\n")
	b.WriteString("To call a tool, emit exactly one block per turn:\n")
	b.WriteString("<tool_call>{\"name\": \"<tool>\", \"arguments\": {...}}</tool_call>\n")
	b.WriteString("Only the first tool call in a turn is acted on.\n")
	b.WriteString("When the task is complete, emit <message>...</message> with a short summary and no tool call.\n")

	if len(tools) > 0 {
		b.WriteString("\n## Tools\n\n")
		for _, tool := range tools {
			fmt.Fprintf(&b, "- %s: %s\n", tool.Name(), tool.Description())
		}
	}

	return b.String()
}

// TaskInstruction renders the seed message for one task. The attachment is
// the one-time context included with the task's first turn.
func TaskInstruction(description, attachment string) string {
	var b strings.Builder
	b.WriteString("Your current task:\n")
	b.WriteString(description)
	b.WriteString("\n\nWork step by step. Each tool result will be provided before your next turn.")
	if attachment != "" {
		b.WriteString("\n\n## Context\n\n")
		b.WriteString(attachment)
	}
	return b.String()
}

// PlanRequest renders the single-shot planning prompt for a goal. The reply
// is expected to carry a <plan> payload.
func PlanRequest(goal string) string {
	var b strings.Builder
	b.WriteString("Break the following goal into a short ordered task list.\n")
	b.WriteString("Reply with a single block of the form:\n")
	b.WriteString(`<plan>[{"id": 1, "task": "...", "status": "pending"}]</plan>`)
	b.WriteString("\n\nGoal:\n")
	b.WriteString(goal)
	return b.String()
}
