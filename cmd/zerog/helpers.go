package main

import (
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nxank4/zerog/pkg/agent"
	"github.com/nxank4/zerog/pkg/audit"
	"github.com/nxank4/zerog/pkg/config"
	"github.com/nxank4/zerog/pkg/llm"
	"github.com/nxank4/zerog/pkg/logger"
	"github.com/nxank4/zerog/pkg/metrics"
	"github.com/nxank4/zerog/pkg/prompt"
	"github.com/nxank4/zerog/pkg/tools"
)

// app wires the configured components for one process.
type app struct {
	cfg          *config.Config
	log          *logger.Logger
	client       *llm.Client
	orchestrator *agent.Orchestrator
	auditLog     *audit.Log
}

func buildApp(configPath, workspace string, debug bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if workspace != "" {
		cfg.Workspace = workspace
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	log, err := cfg.Log.CreateLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	var auditLog *audit.Log
	if cfg.AuditPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.AuditPath), 0755); err != nil {
			return nil, err
		}
		auditLog, err = audit.Open(cfg.AuditPath)
		if err != nil {
			// A broken audit store should not stop the assistant.
			log.Warn("audit log disabled: %v", err)
			auditLog = nil
		}
	}

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)
	client := llm.NewClient(cfg.Model, os.Getenv("ZEROG_API_KEY"))

	registry := tools.DefaultRegistry(cfg.Workspace)
	runID := uuid.NewString()
	executor := tools.NewExecutor(registry, log, auditLog, recorder, runID)

	toolInfos := make([]prompt.ToolInfo, 0, len(registry.All()))
	for _, t := range registry.All() {
		toolInfos = append(toolInfos, t)
	}

	orchestrator := agent.New(agent.Config{
		SystemPrompt:  prompt.SystemPrompt(cfg.Workspace, toolInfos),
		Instruction:   prompt.TaskInstruction,
		MaxIterations: cfg.MaxIterations,
		Metrics:       recorder,
	}, client, executor)

	return &app{
		cfg:          cfg,
		log:          log,
		client:       client,
		orchestrator: orchestrator,
		auditLog:     auditLog,
	}, nil
}

func (a *app) close() {
	if a.auditLog != nil {
		a.auditLog.Close()
	}
	a.log.Close()
}

// startDebugServer serves pprof and prometheus metrics when -http is set.
func startDebugServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.DefaultServeMux
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		slog.Info("debug server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("debug server stopped", "error", err)
		}
	}()
}
