package registry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/relay/pkg/domain"
)

// ErrToolNotFound is returned by Execute for unknown tool names.
var ErrToolNotFound = errors.New("tool not found")

// ToolFunction defines the signature for a tool implementation.
// It receives a context and a map of arguments, and returns a result or error.
type ToolFunction func(ctx context.Context, args map[string]any) (any, error)

type entry struct {
	def domain.Tool
	fn  ToolFunction
}

// Registry is the tool set bound to one sandbox session.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]entry),
	}
}

// Register adds a tool to the registry.
// If a tool with the same name exists, it is overwritten.
func (r *Registry) Register(def domain.Tool, fn ToolFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = entry{def: def, fn: fn}
}

// Execute looks up a tool by name and executes it.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	return e.fn(ctx, args)
}

// Definitions returns the model-facing tool descriptions, sorted by name.
func (r *Registry) Definitions() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]domain.Tool, 0, len(r.tools))
	for _, e := range r.tools {
		defs = append(defs, e.def)
	}
	slices.SortFunc(defs, func(a, b domain.Tool) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return defs
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
