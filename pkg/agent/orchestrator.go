package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/nxank4/zerog/pkg/llm"
	"github.com/nxank4/zerog/pkg/metrics"
	"github.com/nxank4/zerog/pkg/segment"
)

const (
	// defaultMaxIterations bounds the number of tasks driven in one run.
	defaultMaxIterations = 10
	// maxTurnsPerTask is the hard safety ceiling on turns within one task,
	// independent of the configured max iterations.
	maxTurnsPerTask = 20
	// maxToolOutputChars is the ceiling on tool output fed back into the
	// conversation.
	maxToolOutputChars = 10240
	// truncationMarker is appended when output exceeds the ceiling.
	truncationMarker = "\n... (output truncated)"
)

// ErrBusy is returned when a run is requested while one is in flight.
var ErrBusy = errors.New("orchestrator is busy")

// Transport streams model output for a conversation. Implemented by
// llm.Client in production and by fakes in tests.
type Transport interface {
	Stream(ctx context.Context, req llm.Request) *llm.Stream
}

// ToolRunner executes one named action and returns a normalized result. It
// never fails as an error: failures are ActionResults with status error.
type ToolRunner interface {
	Execute(ctx context.Context, name string, args map[string]any) ActionResult
}

// Config configures an Orchestrator.
type Config struct {
	// SystemPrompt is passed through to every model request.
	SystemPrompt string
	// Instruction builds the task-specific seed message. The attachment is
	// the one-time context included with a task's first turn. Defaults to a
	// plain pass-through formatter.
	Instruction func(description, attachment string) string
	// MaxIterations bounds the number of tasks per run.
	MaxIterations int
	// Metrics is optional.
	Metrics *metrics.Recorder
}

// Orchestrator drives one task plan at a time through a bounded
// request/parse/approve/execute/feedback cycle. At most one action is pending
// approval at any time, and no tool executes without an explicit approval
// signal.
type Orchestrator struct {
	cfg       Config
	transport Transport
	runner    ToolRunner

	gate    approvalGate
	running atomic.Bool

	mu      sync.Mutex
	state   State
	plan    []PlanTask
	history []ConversationMessage
}

// New creates an Orchestrator.
func New(cfg Config, transport Transport, runner ToolRunner) *Orchestrator {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.Instruction == nil {
		cfg.Instruction = defaultInstruction
	}
	return &Orchestrator{
		cfg:       cfg,
		transport: transport,
		runner:    runner,
		state:     StateIdle,
	}
}

func defaultInstruction(description, attachment string) string {
	var b strings.Builder
	b.WriteString("Your current task: ")
	b.WriteString(description)
	if attachment != "" {
		b.WriteString("\n\nContext:\n")
		b.WriteString(attachment)
	}
	return b.String()
}

// State returns the current orchestrator state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Plan returns a snapshot of the current task plan.
func (o *Orchestrator) Plan() []PlanTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]PlanTask(nil), o.plan...)
}

// History returns a snapshot of the current task's conversation history.
func (o *Orchestrator) History() []ConversationMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ConversationMessage(nil), o.history...)
}

// Approve resolves the outstanding approval suspension, if any, allowing the
// pending action to execute. No-op otherwise.
func (o *Orchestrator) Approve() {
	o.gate.resolve(true)
}

// Reject resolves the outstanding approval suspension, if any, as rejected.
// The pending action is never executed. No-op otherwise.
func (o *Orchestrator) Reject() {
	o.gate.resolve(false)
}

// Stop requests a cooperative halt: the running flag is cleared and, if the
// orchestrator is suspended waiting for approval, that suspension resolves as
// rejected. The stop latches in the gate, so a stop landing while the model
// is still streaming also rejects the turn's action instead of being lost.
// Safe to call repeatedly or after the run has finished.
func (o *Orchestrator) Stop() {
	o.running.Store(false)
	o.gate.stop()
}

// Run starts driving the plan and returns the event feed for the run. The
// feed terminates with a loop_finished event carrying the final plan
// snapshot. Only one run may be in flight.
func (o *Orchestrator) Run(ctx context.Context, plan []PlanTask, contextAttachment string) (*RunStream, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}

	o.gate.reset()
	o.mu.Lock()
	o.plan = append([]PlanTask(nil), plan...)
	o.history = nil
	o.mu.Unlock()

	stream := newRunStream()
	go o.run(ctx, stream, contextAttachment)
	return stream, nil
}

func (o *Orchestrator) run(ctx context.Context, stream *RunStream, attachment string) {
	var runErr error
	defer func() {
		o.setState(stream, StateIdle)
		o.running.Store(false)
		stream.Push(NewLoopFinishedEvent(o.Plan(), runErr))
	}()

	for iter := 0; iter < o.cfg.MaxIterations; iter++ {
		if !o.running.Load() || ctx.Err() != nil {
			return
		}

		task := o.takePending()
		if task == nil {
			return
		}
		stream.Push(NewTaskStartedEvent(*task))
		slog.Info("[Orchestrator] task started", "id", task.ID, "description", task.Description)

		err := o.runTask(ctx, stream, task, attachment)
		if err != nil {
			o.setTaskStatus(task.ID, TaskPending)
			task.Status = TaskPending
			stream.Push(NewTaskFailedEvent(*task, err))
			slog.Error("[Orchestrator] task failed", "id", task.ID, "error", err)
			runErr = fmt.Errorf("task %d failed: %w", task.ID, err)
			return
		}

		if !o.running.Load() || ctx.Err() != nil {
			// Stopped mid-task: the work is not done, leave it pending.
			o.setTaskStatus(task.ID, TaskPending)
			return
		}

		o.setTaskStatus(task.ID, TaskDone)
		task.Status = TaskDone
		stream.Push(NewTaskCompletedEvent(*task))
		slog.Info("[Orchestrator] task completed", "id", task.ID)
	}
}

// takePending selects the first pending task and marks it in_progress. At
// most one task is in_progress at a time.
func (o *Orchestrator) takePending() *PlanTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	idx := nextPending(o.plan)
	if idx < 0 {
		return nil
	}
	o.plan[idx].Status = TaskInProgress
	task := o.plan[idx]
	return &task
}

func (o *Orchestrator) setTaskStatus(id int, status TaskStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.plan {
		if o.plan[i].ID == id {
			o.plan[i].Status = status
			return
		}
	}
}

// runTask drives one task through its turn loop. A nil return means the task
// ran to a normal end (completion, rejection, stop, or turn ceiling); an
// error means a transport failure that fails the whole run.
func (o *Orchestrator) runTask(ctx context.Context, stream *RunStream, task *PlanTask, attachment string) error {
	o.mu.Lock()
	o.history = []ConversationMessage{NewUserMessage(o.cfg.Instruction(task.Description, attachment))}
	o.mu.Unlock()

	for turn := 0; turn < maxTurnsPerTask; turn++ {
		if !o.running.Load() || ctx.Err() != nil {
			return nil
		}

		o.setState(stream, StateThinking)
		reply, err := o.streamTurn(ctx, stream)
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation is an immediate halt, not a task failure.
				return nil
			}
			return err
		}

		o.appendHistory(NewAssistantMessage(reply))
		stream.Push(NewStreamDoneEvent(reply))

		// A stop that landed during the stream ends the task before any
		// approval is requested.
		if !o.running.Load() || ctx.Err() != nil {
			return nil
		}

		// Extract against the full reply, independent of what the streaming
		// parser surfaced, for robustness against partial reconstruction.
		action, ok := ExtractFirstAction(reply)
		if !ok {
			return nil
		}

		// Arm before announcing so a decision arriving immediately after the
		// event is observed cannot be lost.
		decision := o.gate.arm()
		o.setState(stream, StateWaitingForTool)
		stream.Push(NewWaitingForToolEvent(action))

		approved := o.gate.await(ctx, decision) && o.running.Load()
		o.cfg.Metrics.ObserveApproval(approved)
		if !approved {
			o.appendHistory(NewToolRejectedMessage(action))
			slog.Info("[Orchestrator] action rejected", "tool", action.Name)
			return nil
		}

		o.setState(stream, StateExecuting)
		result := o.runner.Execute(ctx, action.Name, action.Arguments)
		if len(result.Output) > maxToolOutputChars {
			result.Output = truncateAtRuneBoundary(result.Output, maxToolOutputChars) + truncationMarker
			o.cfg.Metrics.ObserveTruncation()
		}
		stream.Push(NewToolExecutedEvent(action, result))
		o.appendHistory(NewToolResultMessage(action, result))
	}

	slog.Warn("[Orchestrator] turn ceiling reached", "task", task.ID, "turns", maxTurnsPerTask)
	return nil
}

// streamTurn sends the conversation to the model and pumps the fragment
// stream through the segment parser, forwarding reasoning/message content as
// display events. Returns the complete reply text.
func (o *Orchestrator) streamTurn(ctx context.Context, stream *RunStream) (string, error) {
	parser := segment.NewParser(
		func(kind segment.Kind, text string) {
			stream.Push(NewStreamChunkEvent(text))
		},
		func(seg segment.Segment) {
			if seg.Kind != segment.KindAction {
				return
			}
			// Finalized only at close; a malformed payload is a local parse
			// failure, not a task failure.
			if _, ok := ParseAction(seg.Text); !ok {
				slog.Debug("[Orchestrator] action segment failed to parse", "bytes", len(seg.Text))
			}
		},
	)

	req := llm.Request{
		SystemPrompt: o.cfg.SystemPrompt,
		Messages:     toWire(o.History()),
	}

	start := time.Now()
	llmStream := o.transport.Stream(ctx, req)

	var full strings.Builder
	for ev := range llmStream.Iterator(ctx) {
		switch e := ev.Value.(type) {
		case llm.TextDeltaEvent:
			full.WriteString(e.Delta)
			parser.Feed(e.Delta)
		case llm.ThinkingDeltaEvent:
			// Provider-side reasoning channel, forwarded as display output.
			stream.Push(NewStreamChunkEvent(e.Delta))
		case llm.DoneEvent:
			parser.Flush()
			o.cfg.Metrics.ObserveLLMCall(time.Since(start), nil)
			if e.Text != "" {
				return e.Text, nil
			}
			return full.String(), nil
		case llm.ErrorEvent:
			parser.Flush()
			o.cfg.Metrics.ObserveLLMCall(time.Since(start), e.Error)
			return "", e.Error
		}
	}

	parser.Flush()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return full.String(), nil
}

// truncateAtRuneBoundary cuts s to at most limit bytes without splitting a
// multi-byte rune.
func truncateAtRuneBoundary(s string, limit int) string {
	if limit >= len(s) {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func (o *Orchestrator) appendHistory(msg ConversationMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history, msg)
}

func (o *Orchestrator) setState(stream *RunStream, state State) {
	o.mu.Lock()
	changed := o.state != state
	o.state = state
	o.mu.Unlock()
	if changed {
		stream.Push(NewStateChangedEvent(state))
	}
}
