package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ReadFileTool reads file contents.
type ReadFileTool struct {
	root string
}

// NewReadFileTool creates a read_file tool rooted at root.
func NewReadFileTool(root string) *ReadFileTool {
	return &ReadFileTool{root: root}
}

// Name returns the tool name.
func (t *ReadFileTool) Name() string {
	return "read_file"
}

// Description returns the tool description.
func (t *ReadFileTool) Description() string {
	return "Read the contents of a file."
}

// Parameters returns the JSON Schema for the tool parameters.
func (t *ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to read (relative to the workspace root)",
			},
		},
		"required": []string{"path"},
	}
}

// Execute reads the file and returns its contents.
func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", fmt.Errorf("invalid path argument")
	}

	path = resolvePath(t.root, path)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return string(data), nil
}

// resolvePath resolves a relative path against the workspace root.
func resolvePath(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
