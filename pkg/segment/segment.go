// Package segment extracts typed segments from the tagged text protocol the
// model speaks: reasoning inside <think> tags, tool invocations inside
// <tool_call> tags, and user-facing messages inside <message> tags. The
// parser is incremental and tolerates tags split across arbitrary stream
// fragment boundaries.
package segment

// Kind identifies the type of a segment.
type Kind string

const (
	KindReasoning Kind = "reasoning"
	KindAction    Kind = "action"
	KindMessage   Kind = "message"
)

// Segment is a completed, typed unit of model output.
type Segment struct {
	Kind Kind
	Text string
}

// marker defines the grammar for one segment kind: a start delimiter, its
// matching end delimiter, and whether content streams incrementally.
type marker struct {
	kind      Kind
	start     string
	end       string
	streaming bool // reasoning/message stream deltas; action surfaces only at close
}

// grammar is the fixed delimiter vocabulary.
var grammar = []marker{
	{kind: KindReasoning, start: "<think>", end: "</think>", streaming: true},
	{kind: KindAction, start: "<tool_call>", end: "</tool_call>", streaming: false},
	{kind: KindMessage, start: "<message>", end: "</message>", streaming: true},
}

// PlanStart and PlanEnd delimit a plan payload (a JSON array of tasks). Plans
// are only extracted from complete responses, never streamed, so they are not
// part of the parser grammar.
const (
	PlanStart = "<plan>"
	PlanEnd   = "</plan>"
)

// ActionStart and ActionEnd expose the action delimiters for non-streaming
// extraction.
const (
	ActionStart = "<tool_call>"
	ActionEnd   = "</tool_call>"
)

// overlapLen returns the length of the longest suffix of s that is a proper
// prefix of delim. It is the withholding primitive: while inside a segment,
// the last overlapLen(buf, end) bytes of the buffer may still turn out to be
// the end delimiter and must not be emitted yet.
func overlapLen(s, delim string) int {
	max := len(delim) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if s[len(s)-n:] == delim[:n] {
			return n
		}
	}
	return 0
}
