package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nxank4/zerog/pkg/agent"
	"github.com/nxank4/zerog/pkg/audit"
	"github.com/nxank4/zerog/pkg/logger"
	"github.com/nxank4/zerog/pkg/metrics"
)

// Executor dispatches one named action at a time against the tool registry
// and returns a normalized result. No error and no panic ever escapes
// Execute; every failure becomes an ActionResult with status error.
type Executor struct {
	registry *Registry
	log      *logger.Logger
	auditLog *audit.Log // optional
	metrics  *metrics.Recorder
	runID    string
}

// NewExecutor creates an executor over the given registry. log must be
// non-nil; auditLog and rec may be nil.
func NewExecutor(registry *Registry, log *logger.Logger, auditLog *audit.Log, rec *metrics.Recorder, runID string) *Executor {
	return &Executor{
		registry: registry,
		log:      log,
		auditLog: auditLog,
		metrics:  rec,
		runID:    runID,
	}
}

// Execute runs one named action and returns its result. Implements
// agent.ToolRunner.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (result agent.ActionResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = agent.ActionResult{
				Output: fmt.Sprintf("tool %s panicked: %v", name, r),
				Status: agent.StatusError,
			}
		}
		e.metrics.ObserveToolExecution(name, string(result.Status), time.Since(start))
		e.record(ctx, name, args, result, time.Since(start))
	}()

	tool, ok := e.registry.Get(name)
	if !ok {
		e.log.Warn("unknown tool requested: %s", name)
		return agent.ActionResult{
			Output: fmt.Sprintf("unknown tool %q: valid tools are read_file, write_file, run_command", name),
			Status: agent.StatusError,
		}
	}

	e.log.Info("executing %s: %s", name, summarizeArgs(args))

	output, err := tool.Execute(ctx, args)
	if err != nil {
		combined := output
		if combined != "" {
			combined += "\n"
		}
		combined += err.Error()
		e.log.Warn("%s failed: %v", name, err)
		return agent.ActionResult{Output: combined, Status: agent.StatusError}
	}

	e.log.Info("%s completed (%d bytes output)", name, len(output))
	return agent.ActionResult{Output: output, Status: agent.StatusSuccess}
}

func (e *Executor) record(ctx context.Context, name string, args map[string]any, result agent.ActionResult, duration time.Duration) {
	if e.auditLog == nil {
		return
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		encoded = []byte("{}")
	}
	rec := audit.Execution{
		RunID:     e.runID,
		Tool:      name,
		Arguments: string(encoded),
		Output:    result.Output,
		Status:    string(result.Status),
		Duration:  duration,
	}
	if err := e.auditLog.Record(ctx, rec); err != nil {
		e.log.Warn("failed to record execution: %v", err)
	}
}

// summarizeArgs renders arguments for the text log, keeping lines short.
func summarizeArgs(args map[string]any) string {
	encoded, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	const limit = 512
	s := string(encoded)
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
