package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	commandTimeout  = 30 * time.Second
	maxCaptureBytes = 1 << 20 // 1MB ceiling per captured stream
)

// RunCommandTool executes shell commands in the workspace directory.
type RunCommandTool struct {
	root    string
	timeout time.Duration
}

// NewRunCommandTool creates a run_command tool rooted at root.
func NewRunCommandTool(root string) *RunCommandTool {
	return &RunCommandTool{root: root, timeout: commandTimeout}
}

// Name returns the tool name.
func (t *RunCommandTool) Name() string {
	return "run_command"
}

// Description returns the tool description.
func (t *RunCommandTool) Description() string {
	return "Execute a shell command in the workspace directory."
}

// Parameters returns the JSON Schema for the tool parameters.
func (t *RunCommandTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute",
			},
		},
		"required": []string{"command"},
	}
}

// capBuffer captures up to a fixed number of bytes and flags overflow. It
// never reports a write error, so the child process is not disturbed.
type capBuffer struct {
	buf        bytes.Buffer
	limit      int
	overflowed bool
}

func (b *capBuffer) Write(p []byte) (int, error) {
	remain := b.limit - b.buf.Len()
	if remain <= 0 {
		if len(p) > 0 {
			b.overflowed = true
		}
		return len(p), nil
	}
	if len(p) > remain {
		b.buf.Write(p[:remain])
		b.overflowed = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

// Execute runs the command with a fixed timeout and output ceiling. Standard
// output and error streams are captured separately and concatenated with a
// "stderr:" marker; the exit code is appended on failure. Timeouts and
// overflow are reported as errors, never panics.
func (t *RunCommandTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return "", fmt.Errorf("invalid command argument")
	}

	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "/bin/sh", "-c", command)
	cmd.Dir = t.root

	stdout := &capBuffer{limit: maxCaptureBytes}
	stderr := &capBuffer{limit: maxCaptureBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()

	var out strings.Builder
	out.WriteString(stdout.buf.String())
	if stderr.buf.Len() > 0 {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString("stderr:\n")
		out.WriteString(stderr.buf.String())
	}

	if execCtx.Err() == context.DeadlineExceeded {
		return out.String(), fmt.Errorf("command timed out after %s", t.timeout)
	}
	if stdout.overflowed || stderr.overflowed {
		return out.String(), fmt.Errorf("command output exceeded %d byte limit", maxCaptureBytes)
	}
	if runErr != nil {
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return out.String(), fmt.Errorf("command failed with exit code %d", exitCode)
	}

	return out.String(), nil
}
