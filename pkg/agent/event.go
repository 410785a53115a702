package agent

import (
	"time"

	"github.com/nxank4/zerog/pkg/llm"
)

// State is the observable orchestrator state.
type State string

const (
	StateIdle           State = "idle"
	StateThinking       State = "thinking"
	StateWaitingForTool State = "waiting_for_tool"
	StateExecuting      State = "executing"
)

// Event is one entry in the orchestrator's event feed.
type Event struct {
	Type    string `json:"type"`
	EventAt int64  `json:"eventAt,omitempty"`

	Task   *PlanTask     `json:"task,omitempty"`
	Action *Action       `json:"action,omitempty"`
	Result *ActionResult `json:"result,omitempty"`
	Text   string        `json:"text,omitempty"`
	State  State         `json:"state,omitempty"`
	Error  string        `json:"error,omitempty"`

	// loop_finished carries the final plan snapshot.
	Tasks []PlanTask `json:"tasks,omitempty"`
}

// Event type constants
const (
	EventTaskStarted    = "task_started"
	EventTaskCompleted  = "task_completed"
	EventTaskFailed     = "task_failed"
	EventLoopFinished   = "loop_finished"
	EventStreamChunk    = "stream_chunk"
	EventStreamDone     = "stream_done"
	EventWaitingForTool = "waiting_for_tool"
	EventToolExecuted   = "tool_executed"
	EventStateChanged   = "state_changed"
)

// RunResult is the final result of one orchestration run.
type RunResult struct {
	Tasks []PlanTask
	Err   error
}

// RunStream is the event feed for one orchestration run.
type RunStream = llm.EventStream[Event, RunResult]

func newRunStream() *RunStream {
	return llm.NewEventStream[Event, RunResult](
		func(e Event) bool { return e.Type == EventLoopFinished },
		func(e Event) RunResult {
			var err error
			if e.Error != "" {
				err = &RunError{Message: e.Error}
			}
			return RunResult{Tasks: e.Tasks, Err: err}
		},
	)
}

// RunError is a human-readable run failure.
type RunError struct {
	Message string
}

func (e *RunError) Error() string { return e.Message }

func newEvent(eventType string) Event {
	return Event{Type: eventType, EventAt: time.Now().UnixNano()}
}

// NewTaskStartedEvent creates a task_started event.
func NewTaskStartedEvent(task PlanTask) Event {
	e := newEvent(EventTaskStarted)
	e.Task = &task
	return e
}

// NewTaskCompletedEvent creates a task_completed event.
func NewTaskCompletedEvent(task PlanTask) Event {
	e := newEvent(EventTaskCompleted)
	e.Task = &task
	return e
}

// NewTaskFailedEvent creates a task_failed event.
func NewTaskFailedEvent(task PlanTask, err error) Event {
	e := newEvent(EventTaskFailed)
	e.Task = &task
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// NewLoopFinishedEvent creates the terminal loop_finished event.
func NewLoopFinishedEvent(tasks []PlanTask, err error) Event {
	e := newEvent(EventLoopFinished)
	e.Tasks = tasks
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// NewStreamChunkEvent creates a stream_chunk display event.
func NewStreamChunkEvent(text string) Event {
	e := newEvent(EventStreamChunk)
	e.Text = text
	return e
}

// NewStreamDoneEvent creates a stream_done event with the full reply text.
func NewStreamDoneEvent(text string) Event {
	e := newEvent(EventStreamDone)
	e.Text = text
	return e
}

// NewWaitingForToolEvent creates a waiting_for_tool event carrying the
// pending action.
func NewWaitingForToolEvent(action Action) Event {
	e := newEvent(EventWaitingForTool)
	e.Action = &action
	return e
}

// NewToolExecutedEvent creates a tool_executed event.
func NewToolExecutedEvent(action Action, result ActionResult) Event {
	e := newEvent(EventToolExecuted)
	e.Action = &action
	e.Result = &result
	return e
}

// NewStateChangedEvent creates a state_changed event.
func NewStateChangedEvent(state State) Event {
	e := newEvent(EventStateChanged)
	e.State = state
	return e
}
