package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"abbas/model"
)

// Mode tells the executor how a tool must be dispatched.
type Mode int

const (
	// Sync tools block; they run on the worker pool.
	Sync Mode = iota
	// Async tools perform their own I/O; they run on a Scheduler.
	Async
)

func (m Mode) String() string {
	if m == Async {
		return "async"
	}
	return "sync"
}

// DefaultDescription is shown for tools registered without a description.
const DefaultDescription = "No description available"

// Func is a tool implementation. Arguments are already bound to the
// declared parameters in declaration order.
type Func func(ctx context.Context, args model.Arguments) (any, error)

// Param is a declared tool parameter.
type Param struct {
	Name     string
	Kind     string // annotation rendered in descriptions, e.g. "str"
	Optional bool
}

// Definition describes one callable tool.
type Definition struct {
	Name        string
	Params      []Param
	Description string
	Mode        Mode
	Invoke      Func
}

// Signature renders name(param: kind, ...) as embedded in the system prompt.
func (d Definition) Signature() string {
	parts := make([]string, len(d.Params))
	for i, p := range d.Params {
		parts[i] = p.Name
		if p.Kind != "" {
			parts[i] += ": " + p.Kind
		}
	}
	return d.Name + "(" + strings.Join(parts, ", ") + ")"
}

// Describe renders the one-line description of the tool.
func (d Definition) Describe() string {
	desc := d.Description
	if desc == "" {
		desc = DefaultDescription
	}
	return d.Signature() + " - " + desc
}

// Registry keeps tool definitions in registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Definition),
	}
}

// Register inserts a tool when its name is not in use.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if def.Invoke == nil {
		return fmt.Errorf("tool %s has no implementation", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}

	r.tools[def.Name] = def
	r.order = append(r.order, def.Name)
	return nil
}

// Get fetches a tool by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	return def, ok
}

// List produces a snapshot of all tools in registration order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name])
	}
	return defs
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// DescribeAll renders one description line per tool, newline separated,
// in registration order.
func (r *Registry) DescribeAll() string {
	defs := r.List()
	lines := make([]string, len(defs))
	for i, def := range defs {
		lines[i] = def.Describe()
	}
	return strings.Join(lines, "\n")
}
