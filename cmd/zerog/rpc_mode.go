package main

import (
	"context"
	"os"

	"github.com/nxank4/zerog/pkg/agent"
	"github.com/nxank4/zerog/pkg/rpc"
)

// runRPC implements -mode rpc: the editor frontend drives the orchestrator
// over stdin/stdout, one JSON object per line.
func runRPC(configPath, workspace, debugAddr string, debug bool) error {
	a, err := buildApp(configPath, workspace, debug)
	if err != nil {
		return err
	}
	defer a.close()

	startDebugServer(debugAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := rpc.NewServer(os.Stdin, os.Stdout)

	server.SetRunHandler(func(message string) error {
		plan, ok := agent.ExtractPlan(message)
		if !ok {
			// No plan payload: treat the whole message as one task.
			plan = []agent.PlanTask{{ID: 1, Description: message, Status: agent.TaskPending}}
		}

		stream, err := a.orchestrator.Run(ctx, plan, "")
		if err != nil {
			return err
		}

		go func() {
			for ev := range stream.Iterator(ctx) {
				server.EmitEvent(ev.Value)
			}
		}()
		return nil
	})

	server.SetApproveHandler(func() error {
		a.orchestrator.Approve()
		return nil
	})

	server.SetRejectHandler(func() error {
		a.orchestrator.Reject()
		return nil
	})

	server.SetAbortHandler(func() error {
		a.orchestrator.Stop()
		return nil
	})

	server.SetGetStateHandler(func() (*rpc.StateInfo, error) {
		state := a.orchestrator.State()
		return &rpc.StateInfo{
			State:   string(state),
			Running: state != agent.StateIdle,
		}, nil
	})

	server.SetGetPlanHandler(func() (any, error) {
		return a.orchestrator.Plan(), nil
	})

	server.SetGetHistoryHandler(func() (any, error) {
		if a.auditLog == nil {
			return nil, nil
		}
		return a.auditLog.Recent(ctx, 50)
	})

	return server.Run()
}
