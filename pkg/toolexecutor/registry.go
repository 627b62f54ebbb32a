// Package toolexecutor manages tool registration and executes the tool-call
// batches requested by the model each round: in parallel when every call is
// read-only, serially otherwise, with per-tool timeouts and a sticky lane
// for stateful tools.
package toolexecutor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/ouro/pkg/events"
	"github.com/harun/ouro/pkg/llm"
	"github.com/xeipuuv/gojsonschema"
)

// Class is a tool's execution policy, fixed at registration time.
type Class int

const (
	// ClassDefault runs in a fresh single-use slot per call.
	ClassDefault Class = iota
	// ClassReadOnly is eligible for parallel batches.
	ClassReadOnly
	// ClassStateful is pinned to the sticky lane, one call in flight at a
	// time, session state preserved across calls.
	ClassStateful
)

func (c Class) String() string {
	switch c {
	case ClassReadOnly:
		return "read_only"
	case ClassStateful:
		return "stateful"
	default:
		return "default"
	}
}

// Env is the runtime context handed to tool handlers.
type Env struct {
	RepoRoot  string
	DriveRoot string
	TaskID    string
	Sink      *events.Sink
}

// Handler executes one tool call and returns its textual result.
type Handler func(ctx context.Context, env *Env, args map[string]interface{}) (string, error)

// Parameter declares one tool parameter for schema generation.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Definition declares a tool: metadata, schema, handler, and policy.
type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
	Handler     Handler
	Timeout     time.Duration
	IsCodeTool  bool
	Class       Class
}

// Registry holds registered tools and their compiled schemas.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// defaultTimeout applies when a definition declares none.
const defaultTimeout = 60 * time.Second

// Register validates and registers a tool definition.
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	if def.Timeout <= 0 {
		def.Timeout = defaultTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}
	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema
	return nil
}

// Get returns a tool definition by name, or nil.
func (r *Registry) Get(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// schema returns the compiled schema for a tool, or nil.
func (r *Registry) schema(name string) *gojsonschema.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schemas[name]
}

// List returns all registered tool names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Timeout returns the per-call timeout for a tool, defaultTimeout if unknown.
func (r *Registry) Timeout(name string) time.Duration {
	if def := r.Get(name); def != nil {
		return def.Timeout
	}
	return defaultTimeout
}

// ClassOf returns the execution class for a tool, ClassDefault if unknown.
func (r *Registry) ClassOf(name string) Class {
	if def := r.Get(name); def != nil {
		return def.Class
	}
	return ClassDefault
}

// Schemas builds the tool schema list offered to the model.
func (r *Registry) Schemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]llm.ToolSchema, 0, len(r.tools))
	for _, def := range r.tools {
		schemas = append(schemas, llm.ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: inputSchemaMap(*def),
		})
	}
	return schemas
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}
	return nil
}

func inputSchemaMap(def Definition) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func compileSchema(def Definition) (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(inputSchemaMap(def)))
}
