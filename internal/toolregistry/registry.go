package toolregistry

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"rev/internal/agent/ports"
	"rev/internal/jsonx"
)

// Registry implements ports.ToolRegistry. Registration happens at startup;
// the table is effectively immutable afterwards, but a mutex guards the rare
// dynamic registration path.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]ports.ToolExecutor
	schemas map[string]*jsonschema.Schema
	writing map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]ports.ToolExecutor),
		schemas: make(map[string]*jsonschema.Schema),
		writing: make(map[string]bool),
	}
}

// Register adds a tool, compiling its parameter schema for dispatch-time
// argument validation.
func (r *Registry) Register(tool ports.ToolExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Metadata().Name
	if name == "" {
		return fmt.Errorf("tool has empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already exists: %s", name)
	}

	schema, err := compileParameterSchema(tool.Definition().Parameters)
	if err != nil {
		return fmt.Errorf("tool %s: invalid parameter schema: %w", name, err)
	}

	r.tools[name] = tool
	r.schemas[name] = schema
	r.writing[name] = tool.Metadata().Writing
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (ports.ToolExecutor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if tool, ok := r.tools[name]; ok {
		return tool, nil
	}
	return nil, fmt.Errorf("tool not found: %s", name)
}

// List returns all tool definitions.
func (r *Registry) List() []ports.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ports.ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition())
	}
	return defs
}

// IsWriting reports whether the named tool mutates the workspace. Unknown
// tools are treated as non-writing: the verifier then refuses to accept them
// as mutation evidence.
func (r *Registry) IsWriting(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.writing[name]
}

// schema returns the compiled validator for a tool, or nil.
func (r *Registry) schema(name string) *jsonschema.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schemas[name]
}

func compileParameterSchema(params ports.ParameterSchema) (*jsonschema.Schema, error) {
	if params.Type == "" {
		params.Type = "object"
	}
	if params.Properties == nil {
		params.Properties = map[string]ports.Property{}
	}
	raw, err := jsonx.Marshal(params)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool.json", doc); err != nil {
		return nil, err
	}
	return compiler.Compile("tool.json")
}
