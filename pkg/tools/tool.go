// Package tools implements the fixed tool registry the orchestrator can
// dispatch approved actions to: read_file, write_file, and run_command.
package tools

import "context"

// Tool executes one named operation against the local environment.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry manages tool registration and lookup.
type Registry struct {
	tools  []Tool
	byName map[string]Tool
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register registers a tool.
func (r *Registry) Register(tool Tool) {
	if _, exists := r.byName[tool.Name()]; !exists {
		r.tools = append(r.tools, tool)
	}
	r.byName[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.byName[name]
	return tool, ok
}

// All returns all registered tools in registration order.
func (r *Registry) All() []Tool {
	return append([]Tool(nil), r.tools...)
}

// DefaultRegistry creates a registry with the standard tools rooted at the
// given workspace directory.
func DefaultRegistry(root string) *Registry {
	r := NewRegistry()
	r.Register(NewReadFileTool(root))
	r.Register(NewWriteFileTool(root))
	r.Register(NewRunCommandTool(root))
	return r
}
