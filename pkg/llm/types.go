package llm

// Model represents a model endpoint configuration.
type Model struct {
	ID       string `json:"id"`       // e.g. "glm-4.7"
	Provider string `json:"provider"` // e.g. "zai", "openai"
	BaseURL  string `json:"baseUrl"`  // e.g. "https://api.openai.com/v1"
}

// Message is a single wire-format conversation message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Request carries one completion request to the model.
type Request struct {
	SystemPrompt string
	Messages     []Message
}

// Usage represents token usage reported by the provider.
type Usage struct {
	InputTokens  int `json:"prompt_tokens"`
	OutputTokens int `json:"completion_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Event is an event from the model stream.
type Event interface {
	GetEventType() string
}

// StartEvent is emitted when the model starts generating.
type StartEvent struct{}

func (e StartEvent) GetEventType() string { return "start" }

// TextDeltaEvent is emitted for each text fragment.
type TextDeltaEvent struct {
	Delta string
}

func (e TextDeltaEvent) GetEventType() string { return "text_delta" }

// ThinkingDeltaEvent is emitted for provider-side reasoning fragments.
type ThinkingDeltaEvent struct {
	Delta string
}

func (e ThinkingDeltaEvent) GetEventType() string { return "thinking_delta" }

// DoneEvent terminates a stream and carries the complete response text.
type DoneEvent struct {
	Text       string
	Usage      Usage
	StopReason string
}

func (e DoneEvent) GetEventType() string { return "done" }

// ErrorEvent terminates a stream with an error.
type ErrorEvent struct {
	Error error
}

func (e ErrorEvent) GetEventType() string { return "error" }

// Stream is the event stream returned by a streaming completion. The final
// result is the complete response text.
type Stream = EventStream[Event, string]

// NewStream creates a Stream that completes on done or error events.
func NewStream() *Stream {
	return NewEventStream[Event, string](
		func(e Event) bool {
			t := e.GetEventType()
			return t == "done" || t == "error"
		},
		func(e Event) string {
			if done, ok := e.(DoneEvent); ok {
				return done.Text
			}
			return ""
		},
	)
}
