// Package steps is the boundary between callers (engine, HTTP, MCP, CLI) and
// the core. Every step returns a domain.Result; errors and panics never escape.
package steps

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/observability"
	"github.com/mitchellh/mapstructure"
)

// Invocation identifies who runs a step and, inside a workflow, which
// execution it belongs to.
type Invocation struct {
	UserID      string
	ExecutionID string
	WorkflowID  string
}

// Step executes one node type. config is decoded into the step's input type.
type Step interface {
	Name() string
	Execute(ctx context.Context, inv Invocation, config map[string]any) domain.Result
}

// Decode maps a loosely typed config onto out. Numbers given as strings and
// similar JSON/YAML drift are accepted.
func Decode(config map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(config); err != nil {
		return domain.ValidationError("invalid step input").WithCause(err)
	}
	return nil
}

// guard converts a panic inside fn into a failure result and records the
// step duration.
func guard(name string, logger *slog.Logger, metrics *observability.Metrics, fn func() domain.Result) (res domain.Result) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("step panicked", "step", name, "panic", r)
			res = domain.Fail(fmt.Errorf("step %s panicked: %v", name, r))
		}
		metrics.ObserveStep(name, res.Success, started)
	}()
	return fn()
}

// Set looks steps up by node type.
type Set struct {
	steps map[string]Step
}

// NewSet indexes steps by Name.
func NewSet(steps ...Step) *Set {
	s := &Set{steps: make(map[string]Step, len(steps))}
	for _, st := range steps {
		s.steps[st.Name()] = st
	}
	return s
}

// Get returns the step for a node type.
func (s *Set) Get(name string) (Step, bool) {
	st, ok := s.steps[name]
	return st, ok
}

// Names lists the registered node types, sorted.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.steps))
	for name := range s.steps {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Execute runs the step registered for name. Unknown names fail with a
// ValidationError result.
func (s *Set) Execute(ctx context.Context, name string, inv Invocation, config map[string]any) domain.Result {
	st, ok := s.Get(name)
	if !ok {
		return domain.Fail(domain.ValidationError("unknown step type %q", name))
	}
	return st.Execute(ctx, inv, config)
}
