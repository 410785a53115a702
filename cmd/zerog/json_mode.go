package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nxank4/zerog/pkg/agent"
	"github.com/nxank4/zerog/pkg/llm"
	"github.com/nxank4/zerog/pkg/prompt"
)

// runJSON implements -mode json: headless one-shot execution of a goal given
// on the command line. Events are printed to stdout as JSON lines so the
// output is scriptable.
func runJSON(configPath, workspace, debugAddr string, goals []string, autoApprove, debug bool) error {
	if len(goals) == 0 {
		return fmt.Errorf("json mode requires a goal argument")
	}
	goal := strings.Join(goals, " ")

	a, err := buildApp(configPath, workspace, debug)
	if err != nil {
		return err
	}
	defer a.close()

	startDebugServer(debugAddr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	plan, err := buildPlan(ctx, a, goal)
	if err != nil {
		return err
	}

	stream, err := a.orchestrator.Run(ctx, plan, "")
	if err != nil {
		return err
	}

	out := json.NewEncoder(os.Stdout)
	stdin := bufio.NewReader(os.Stdin)

	for ev := range stream.Iterator(ctx) {
		if err := out.Encode(ev.Value); err != nil {
			a.orchestrator.Stop()
			return err
		}
		if ev.Value.Type != agent.EventWaitingForTool {
			continue
		}
		if autoApprove {
			a.orchestrator.Approve()
			continue
		}
		if promptApproval(stdin, ev.Value.Action) {
			a.orchestrator.Approve()
		} else {
			a.orchestrator.Reject()
		}
	}

	result := <-stream.Result()
	return result.Err
}

// buildPlan asks the model to break the goal into tasks. If the response
// carries no plan payload the goal becomes a single task.
func buildPlan(ctx context.Context, a *app, goal string) ([]agent.PlanTask, error) {
	text, err := a.client.Complete(ctx, planCompletionRequest(goal))
	if err != nil {
		a.log.Warn("planning failed, running goal as a single task: %v", err)
		return singleTaskPlan(goal), nil
	}
	plan, ok := agent.ExtractPlan(text)
	if !ok {
		return singleTaskPlan(goal), nil
	}
	return plan, nil
}

func planCompletionRequest(goal string) llm.Request {
	return llm.Request{
		Messages: []llm.Message{{Role: "user", Content: prompt.PlanRequest(goal)}},
	}
}

func singleTaskPlan(goal string) []agent.PlanTask {
	return []agent.PlanTask{{ID: 1, Description: goal, Status: agent.TaskPending}}
}

func promptApproval(stdin *bufio.Reader, action *agent.Action) bool {
	name := "tool"
	if action != nil {
		name = action.Name
	}
	fmt.Fprintf(os.Stderr, "approve %s? [y/N] ", name)
	line, err := stdin.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
