package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nxank4/zerog/pkg/llm"
)

// scriptedTransport replays one canned reply per turn, streamed in small
// fragments. When the script runs out it answers with a plain completion so
// the turn loop terminates.
type scriptedTransport struct {
	mu      sync.Mutex
	replies []scriptedReply
	turns   int
}

type scriptedReply struct {
	text string
	err  error
}

func (t *scriptedTransport) Stream(ctx context.Context, req llm.Request) *llm.Stream {
	t.mu.Lock()
	t.turns++
	var reply scriptedReply
	if len(t.replies) > 0 {
		reply = t.replies[0]
		t.replies = t.replies[1:]
	} else {
		reply = scriptedReply{text: "<message>All done.</message>"}
	}
	t.mu.Unlock()

	stream := llm.NewStream()
	go func() {
		if reply.err != nil {
			stream.Push(llm.ErrorEvent{Error: reply.err})
			return
		}
		stream.Push(llm.StartEvent{})
		// Stream in 7-byte fragments so delimiters split across pushes.
		for text := reply.text; text != ""; {
			n := 7
			if n > len(text) {
				n = len(text)
			}
			stream.Push(llm.TextDeltaEvent{Delta: text[:n]})
			text = text[n:]
		}
		stream.Push(llm.DoneEvent{Text: reply.text, StopReason: "stop"})
	}()
	return stream
}

func (t *scriptedTransport) turnCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.turns
}

type recordedCall struct {
	name string
	args map[string]any
}

// recordingRunner records every execution and answers with a fixed result.
type recordingRunner struct {
	mu     sync.Mutex
	calls  []recordedCall
	output string
}

func (r *recordingRunner) Execute(ctx context.Context, name string, args map[string]any) ActionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{name: name, args: args})
	out := r.output
	if out == "" {
		out = "ok"
	}
	return ActionResult{Output: out, Status: StatusSuccess}
}

func (r *recordingRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// drive runs the plan to completion, applying decide to every pending
// approval, and returns all observed events plus the final result.
func drive(t *testing.T, o *Orchestrator, plan []PlanTask, decide func(*Orchestrator)) ([]Event, RunResult) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := o.Run(ctx, plan, "")
	require.NoError(t, err)

	var events []Event
	for ev := range stream.Iterator(ctx) {
		events = append(events, ev.Value)
		if ev.Value.Type == EventWaitingForTool {
			decide(o)
		}
	}
	return events, <-stream.Result()
}

func eventsOfType(events []Event, eventType string) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func singleTask(description string) []PlanTask {
	return []PlanTask{{ID: 1, Description: description, Status: TaskPending}}
}

func TestOrchestratorApprovedToolCall(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{text: `<think>Reading first.</think><tool_call>{"name": "read_file", "arguments": {"path": "main.go"}}</tool_call>`},
		{text: `<message>The file looks fine.</message>`},
	}}
	runner := &recordingRunner{output: "package main"}
	o := New(Config{}, transport, runner)

	events, result := drive(t, o, singleTask("inspect main.go"), (*Orchestrator).Approve)

	require.NoError(t, result.Err)
	require.Equal(t, 1, runner.callCount())
	assert.Equal(t, "read_file", runner.calls[0].name)
	assert.Equal(t, "main.go", runner.calls[0].args["path"])

	executed := eventsOfType(events, EventToolExecuted)
	require.Len(t, executed, 1)
	assert.Equal(t, "package main", executed[0].Result.Output)
	assert.Equal(t, StatusSuccess, executed[0].Result.Status)

	completed := eventsOfType(events, EventTaskCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, TaskDone, completed[0].Task.Status)

	require.Len(t, result.Tasks, 1)
	assert.Equal(t, TaskDone, result.Tasks[0].Status)
	assert.Equal(t, StateIdle, o.State())
}

func TestOrchestratorToolResultFedBack(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{text: `<tool_call>{"name": "run_command", "arguments": {"command": "ls"}}</tool_call>`},
	}}
	runner := &recordingRunner{output: "main.go\ngo.mod"}
	o := New(Config{}, transport, runner)

	_, result := drive(t, o, singleTask("list files"), (*Orchestrator).Approve)
	require.NoError(t, result.Err)

	history := o.History()
	var found bool
	for _, msg := range history {
		if msg.Role == RoleUser && strings.Contains(msg.Content, "run_command") &&
			strings.Contains(msg.Content, "main.go\ngo.mod") {
			found = true
		}
	}
	assert.True(t, found, "tool result should appear in history as a user message")
}

func TestOrchestratorRejectedToolCall(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{text: `<tool_call>{"name": "run_command", "arguments": {"command": "rm -rf /"}}</tool_call>`},
	}}
	runner := &recordingRunner{}
	o := New(Config{}, transport, runner)

	events, result := drive(t, o, singleTask("clean up"), (*Orchestrator).Reject)

	require.NoError(t, result.Err)
	assert.Equal(t, 0, runner.callCount(), "rejected action must never execute")
	assert.Empty(t, eventsOfType(events, EventToolExecuted))

	// Rejection ends the task but does not fail the run.
	require.Len(t, result.Tasks, 1)
	assert.Equal(t, TaskDone, result.Tasks[0].Status)
}

func TestOrchestratorMessageOnlyTurn(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{text: `<think>Nothing to do here.</think><message>Already handled.</message>`},
	}}
	runner := &recordingRunner{}
	o := New(Config{}, transport, runner)

	events, result := drive(t, o, singleTask("check status"), func(*Orchestrator) {
		t.Fatal("no approval should be requested")
	})

	require.NoError(t, result.Err)
	assert.Equal(t, 0, runner.callCount())
	assert.Empty(t, eventsOfType(events, EventWaitingForTool))
	assert.Equal(t, 1, transport.turnCount())
	assert.Equal(t, TaskDone, result.Tasks[0].Status)
}

func TestOrchestratorMalformedActionIsActionFree(t *testing.T) {
	// Truncated JSON inside a well-delimited unit: parse fails, and per
	// policy the turn is treated as carrying no action at all.
	transport := &scriptedTransport{replies: []scriptedReply{
		{text: `<tool_call>{"name": "read_file", "arguments": {"path": </tool_call>`},
	}}
	runner := &recordingRunner{}
	o := New(Config{}, transport, runner)

	events, result := drive(t, o, singleTask("read something"), func(*Orchestrator) {
		t.Fatal("malformed action must not request approval")
	})

	require.NoError(t, result.Err)
	assert.Equal(t, 0, runner.callCount())
	assert.Empty(t, eventsOfType(events, EventWaitingForTool))
	assert.Equal(t, TaskDone, result.Tasks[0].Status)
}

func TestOrchestratorFirstActionOnlyPerTurn(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{text: `<tool_call>{"name": "read_file", "arguments": {"path": "a.go"}}</tool_call>` +
			`<tool_call>{"name": "read_file", "arguments": {"path": "b.go"}}</tool_call>`},
	}}
	runner := &recordingRunner{}
	o := New(Config{}, transport, runner)

	events, result := drive(t, o, singleTask("read files"), (*Orchestrator).Approve)

	require.NoError(t, result.Err)
	// Turn 1 carries two payloads but only the first is honored; the scripted
	// follow-up turn carries none.
	waiting := eventsOfType(events, EventWaitingForTool)
	require.Len(t, waiting, 1)
	assert.Equal(t, "a.go", waiting[0].Action.Arguments["path"])
	require.Equal(t, 1, runner.callCount())
	assert.Equal(t, "a.go", runner.calls[0].args["path"])
}

func TestOrchestratorTruncatesToolOutput(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{text: `<tool_call>{"name": "run_command", "arguments": {"command": "cat big.txt"}}</tool_call>`},
	}}
	runner := &recordingRunner{output: strings.Repeat("x", maxToolOutputChars+1)}
	o := New(Config{}, transport, runner)

	events, result := drive(t, o, singleTask("dump file"), (*Orchestrator).Approve)
	require.NoError(t, result.Err)

	executed := eventsOfType(events, EventToolExecuted)
	require.Len(t, executed, 1)
	got := executed[0].Result.Output
	assert.Len(t, got, maxToolOutputChars+len(truncationMarker))
	assert.True(t, strings.HasSuffix(got, truncationMarker))
	assert.Equal(t, strings.Repeat("x", maxToolOutputChars), strings.TrimSuffix(got, truncationMarker))
}

func TestOrchestratorExactCeilingNotTruncated(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{text: `<tool_call>{"name": "run_command", "arguments": {"command": "cat big.txt"}}</tool_call>`},
	}}
	runner := &recordingRunner{output: strings.Repeat("x", maxToolOutputChars)}
	o := New(Config{}, transport, runner)

	events, result := drive(t, o, singleTask("dump file"), (*Orchestrator).Approve)
	require.NoError(t, result.Err)

	executed := eventsOfType(events, EventToolExecuted)
	require.Len(t, executed, 1)
	assert.Len(t, executed[0].Result.Output, maxToolOutputChars)
	assert.False(t, strings.Contains(executed[0].Result.Output, truncationMarker))
}

func TestOrchestratorTruncationKeepsRuneBoundary(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{text: `<tool_call>{"name": "run_command", "arguments": {"command": "cat big.txt"}}</tool_call>`},
	}}
	// A 3-byte rune straddles the ceiling: bytes 10239..10241.
	runner := &recordingRunner{output: strings.Repeat("x", maxToolOutputChars-1) + "世界"}
	o := New(Config{}, transport, runner)

	events, result := drive(t, o, singleTask("dump file"), (*Orchestrator).Approve)
	require.NoError(t, result.Err)

	executed := eventsOfType(events, EventToolExecuted)
	require.Len(t, executed, 1)
	got := executed[0].Result.Output
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("x", maxToolOutputChars-1)+truncationMarker, got)
}

func TestTruncateAtRuneBoundary(t *testing.T) {
	cases := []struct {
		name  string
		s     string
		limit int
		want  string
	}{
		{"ascii_exact", "abcdef", 4, "abcd"},
		{"under_limit", "abc", 10, "abc"},
		{"mid_rune_backs_off", "ab世cd", 3, "ab"},
		{"rune_boundary_kept", "ab世cd", 5, "ab世"},
		{"zero_limit", "abc", 0, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := truncateAtRuneBoundary(tc.s, tc.limit)
			assert.Equal(t, tc.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestOrchestratorTransportErrorFailsRun(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{err: errors.New("upstream returned 500")},
	}}
	runner := &recordingRunner{}
	o := New(Config{}, transport, runner)

	events, result := drive(t, o, singleTask("doomed"), (*Orchestrator).Approve)

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "upstream returned 500")
	require.Len(t, eventsOfType(events, EventTaskFailed), 1)
	// The failed task goes back to pending so a later run can retry it.
	require.Len(t, result.Tasks, 1)
	assert.Equal(t, TaskPending, result.Tasks[0].Status)
	assert.Equal(t, StateIdle, o.State())
}

func TestOrchestratorMaxIterationsBoundsTasks(t *testing.T) {
	transport := &scriptedTransport{}
	runner := &recordingRunner{}
	o := New(Config{MaxIterations: 2}, transport, runner)

	plan := []PlanTask{
		{ID: 1, Description: "one", Status: TaskPending},
		{ID: 2, Description: "two", Status: TaskPending},
		{ID: 3, Description: "three", Status: TaskPending},
	}
	_, result := drive(t, o, plan, (*Orchestrator).Approve)

	require.NoError(t, result.Err)
	require.Len(t, result.Tasks, 3)
	assert.Equal(t, TaskDone, result.Tasks[0].Status)
	assert.Equal(t, TaskDone, result.Tasks[1].Status)
	assert.Equal(t, TaskPending, result.Tasks[2].Status)
}

func TestOrchestratorSkipsNonPendingTasks(t *testing.T) {
	transport := &scriptedTransport{}
	runner := &recordingRunner{}
	o := New(Config{}, transport, runner)

	plan := []PlanTask{
		{ID: 1, Description: "already finished", Status: TaskDone},
		{ID: 2, Description: "fresh", Status: TaskPending},
	}
	events, result := drive(t, o, plan, (*Orchestrator).Approve)

	require.NoError(t, result.Err)
	started := eventsOfType(events, EventTaskStarted)
	require.Len(t, started, 1)
	assert.Equal(t, 2, started[0].Task.ID)
}

func TestOrchestratorBusy(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{text: `<tool_call>{"name": "read_file", "arguments": {"path": "a"}}</tool_call>`},
	}}
	runner := &recordingRunner{}
	o := New(Config{}, transport, runner)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := o.Run(ctx, singleTask("first"), "")
	require.NoError(t, err)

	// Wait until the run is suspended on approval, then try a second run.
	for ev := range stream.Iterator(ctx) {
		if ev.Value.Type == EventWaitingForTool {
			_, err := o.Run(ctx, singleTask("second"), "")
			assert.ErrorIs(t, err, ErrBusy)
			o.Reject()
		}
	}
	<-stream.Result()

	// After the run finishes a new one is accepted.
	stream2, err := o.Run(ctx, singleTask("third"), "")
	require.NoError(t, err)
	for range stream2.Iterator(ctx) {
	}
}

func TestOrchestratorStopWhileWaitingForApproval(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{text: `<tool_call>{"name": "run_command", "arguments": {"command": "ls"}}</tool_call>`},
	}}
	runner := &recordingRunner{}
	o := New(Config{}, transport, runner)

	events, result := drive(t, o, singleTask("stoppable"), (*Orchestrator).Stop)

	require.NoError(t, result.Err)
	assert.Equal(t, 0, runner.callCount(), "stop must behave as rejection for the pending action")
	assert.Empty(t, eventsOfType(events, EventToolExecuted))
	// Stopped mid-task: the task is not done.
	require.Len(t, result.Tasks, 1)
	assert.Equal(t, TaskPending, result.Tasks[0].Status)
	assert.Equal(t, StateIdle, o.State())

	// Stop is idempotent after the run has ended.
	o.Stop()
	o.Stop()
}

// hookedTransport streams one reply and fires a hook between the deltas and
// the done event.
type hookedTransport struct {
	reply      string
	midStream  func()
	hookedOnce sync.Once
}

func (t *hookedTransport) Stream(ctx context.Context, req llm.Request) *llm.Stream {
	stream := llm.NewStream()
	go func() {
		stream.Push(llm.StartEvent{})
		stream.Push(llm.TextDeltaEvent{Delta: t.reply})
		if t.midStream != nil {
			t.hookedOnce.Do(t.midStream)
		}
		stream.Push(llm.DoneEvent{Text: t.reply, StopReason: "stop"})
	}()
	return stream
}

func TestOrchestratorStopWhileStreaming(t *testing.T) {
	transport := &hookedTransport{
		reply: `<tool_call>{"name": "run_command", "arguments": {"command": "ls"}}</tool_call>`,
	}
	runner := &recordingRunner{}
	o := New(Config{}, transport, runner)
	transport.midStream = o.Stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stream, err := o.Run(ctx, singleTask("aborted mid-stream"), "")
	require.NoError(t, err)

	var events []Event
	for ev := range stream.Iterator(ctx) {
		events = append(events, ev.Value)
	}

	select {
	case result := <-stream.Result():
		require.NoError(t, result.Err)
		require.Len(t, result.Tasks, 1)
		assert.Equal(t, TaskPending, result.Tasks[0].Status)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not terminate after mid-stream stop")
	}

	// The abort arrived before the action surfaced: no approval is requested
	// and nothing executes.
	assert.Empty(t, eventsOfType(events, EventWaitingForTool))
	assert.Empty(t, eventsOfType(events, EventToolExecuted))
	assert.Equal(t, 0, runner.callCount())
	assert.Equal(t, StateIdle, o.State())

	// A later run starts clean despite the latched stop: an approval goes
	// through and the tool actually executes.
	transport.midStream = nil
	stream2, err := o.Run(ctx, singleTask("after restart"), "")
	require.NoError(t, err)
	var waiting int
	for ev := range stream2.Iterator(ctx) {
		if ev.Value.Type == EventWaitingForTool {
			waiting++
			if waiting == 1 {
				o.Approve()
			} else {
				o.Reject()
			}
		}
	}
	result := <-stream2.Result()
	require.NoError(t, result.Err)
	assert.Equal(t, 2, waiting)
	assert.Equal(t, 1, runner.callCount())
}

// repeatingTransport answers every turn with the same reply.
type repeatingTransport struct {
	mu    sync.Mutex
	reply string
	turns int
}

func (t *repeatingTransport) Stream(ctx context.Context, req llm.Request) *llm.Stream {
	t.mu.Lock()
	t.turns++
	t.mu.Unlock()
	stream := llm.NewStream()
	go func() {
		stream.Push(llm.StartEvent{})
		stream.Push(llm.TextDeltaEvent{Delta: t.reply})
		stream.Push(llm.DoneEvent{Text: t.reply, StopReason: "stop"})
	}()
	return stream
}

func (t *repeatingTransport) turnCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.turns
}

func TestOrchestratorTurnCeiling(t *testing.T) {
	// A model that calls a tool every single turn must hit the per-task
	// ceiling and end the task normally.
	transport := &repeatingTransport{
		reply: `<tool_call>{"name": "run_command", "arguments": {"command": "ls"}}</tool_call>`,
	}
	runner := &recordingRunner{}
	o := New(Config{}, transport, runner)

	events, result := drive(t, o, singleTask("never finishes on its own"), (*Orchestrator).Approve)

	require.NoError(t, result.Err)
	assert.Equal(t, maxTurnsPerTask, transport.turnCount())
	assert.Equal(t, maxTurnsPerTask, runner.callCount())
	assert.Len(t, eventsOfType(events, EventToolExecuted), maxTurnsPerTask)
	assert.Empty(t, eventsOfType(events, EventTaskFailed))
	require.Len(t, result.Tasks, 1)
	assert.Equal(t, TaskDone, result.Tasks[0].Status)
}

func TestOrchestratorContextCancellation(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{text: `<tool_call>{"name": "run_command", "arguments": {"command": "ls"}}</tool_call>`},
	}}
	runner := &recordingRunner{}
	o := New(Config{}, transport, runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := o.Run(ctx, singleTask("cancelled"), "")
	require.NoError(t, err)

	drain := context.Background()
	for ev := range stream.Iterator(drain) {
		if ev.Value.Type == EventWaitingForTool {
			cancel()
		}
	}
	result := <-stream.Result()

	require.NoError(t, result.Err, "cancellation is a halt, not a failure")
	assert.Equal(t, 0, runner.callCount())
	assert.Equal(t, StateIdle, o.State())
}

func TestOrchestratorSeedsHistoryWithInstruction(t *testing.T) {
	transport := &scriptedTransport{}
	runner := &recordingRunner{}
	o := New(Config{
		Instruction: func(description, attachment string) string {
			return "TASK: " + description + " CTX: " + attachment
		},
	}, transport, runner)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stream, err := o.Run(ctx, singleTask("refactor parser"), "open buffer contents")
	require.NoError(t, err)
	for range stream.Iterator(ctx) {
	}
	<-stream.Result()

	history := o.History()
	require.NotEmpty(t, history)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "TASK: refactor parser CTX: open buffer contents", history[0].Content)
}

func TestOrchestratorStateTransitions(t *testing.T) {
	transport := &scriptedTransport{replies: []scriptedReply{
		{text: `<tool_call>{"name": "read_file", "arguments": {"path": "a"}}</tool_call>`},
	}}
	runner := &recordingRunner{}
	o := New(Config{}, transport, runner)

	events, result := drive(t, o, singleTask("one tool"), (*Orchestrator).Approve)
	require.NoError(t, result.Err)

	var states []State
	for _, e := range eventsOfType(events, EventStateChanged) {
		states = append(states, e.State)
	}
	assert.Equal(t, []State{
		StateThinking,
		StateWaitingForTool,
		StateExecuting,
		StateThinking,
		StateIdle,
	}, states)
}
