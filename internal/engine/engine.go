// Package engine is the reference ports.ExecutionEngine. It runs a workflow's
// nodes one after another on a goroutine and writes the terminal state of the
// execution record through the Recorder.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"sync"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/aretw0/relay/pkg/records"
	"github.com/aretw0/relay/pkg/steps"
	"golang.org/x/sync/errgroup"
)

// Engine implements ports.ExecutionEngine.
type Engine struct {
	recorder *records.Recorder
	logger   *slog.Logger

	mu    sync.RWMutex
	steps *steps.Set

	group errgroup.Group
}

// Option configures the Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an Engine. Steps are bound later with Bind because the
// run_workflow step itself depends on an engine.
func New(recorder *records.Recorder, opts ...Option) *Engine {
	e := &Engine{recorder: recorder, logger: logging.NewNop(), steps: steps.NewSet()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bind sets the steps used for node types.
func (e *Engine) Bind(set *steps.Set) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steps = set
}

// Start launches the execution on a goroutine. The run is detached from ctx:
// cancelling the caller does not stop it.
func (e *Engine) Start(ctx context.Context, req ports.StartRequest) (ports.ExecutionHandle, error) {
	if req.Workflow == nil {
		return nil, domain.ValidationError("workflow is required")
	}
	nodes, err := Order(req.Workflow)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	set := e.steps
	e.mu.RUnlock()

	h := &handle{done: make(chan struct{})}
	runCtx := context.WithoutCancel(ctx)
	e.group.Go(func() error {
		defer close(h.done)
		h.err = e.run(runCtx, set, req, nodes)
		return nil
	})
	return h, nil
}

// Execute creates a root execution record, runs the workflow and returns the
// terminal record.
func (e *Engine) Execute(ctx context.Context, wf *domain.Workflow, userID string, input map[string]any) (*domain.ExecutionRecord, error) {
	rec, err := e.recorder.Start(ctx, &domain.ExecutionRecord{WorkflowID: wf.ID, UserID: userID, Input: input})
	if err != nil {
		return nil, err
	}
	h, err := e.Start(ctx, ports.StartRequest{ExecutionID: rec.ID, Workflow: wf, UserID: userID, Input: input})
	if err != nil {
		if ferr := e.recorder.Fail(context.WithoutCancel(ctx), rec.ID, err.Error()); ferr != nil {
			e.logger.Warn("failed to close execution record", "execution_id", rec.ID, "err", ferr)
		}
		return nil, err
	}
	if err := h.Wait(ctx); err != nil {
		return nil, err
	}
	return e.recorder.Get(ctx, rec.ID)
}

// Close waits for every running execution.
func (e *Engine) Close() error {
	return e.group.Wait()
}

func (e *Engine) run(ctx context.Context, set *steps.Set, req ports.StartRequest, nodes []domain.Node) error {
	log := e.logger.With("execution_id", req.ExecutionID, "workflow_id", req.Workflow.ID)
	inv := steps.Invocation{UserID: req.UserID, ExecutionID: req.ExecutionID, WorkflowID: req.Workflow.ID}

	outputs := make(map[string]any, len(nodes))
	for _, node := range nodes {
		log.Debug("running node", "node", node.ID, "type", node.Type)
		res := set.Execute(ctx, node.Type, inv, Expand(node.Config, req.Input))
		if !res.Success {
			msg := fmt.Sprintf("node %s failed", node.ID)
			if res.Error != nil && res.Error.Message != "" {
				msg = fmt.Sprintf("node %s: %s", node.ID, res.Error.Message)
			}
			log.Debug("node failed", "node", node.ID, "err", msg)
			return e.finish(ctx, req.ExecutionID, e.recorder.Fail(ctx, req.ExecutionID, msg))
		}
		outputs[node.ID] = res.Data
	}
	return e.finish(ctx, req.ExecutionID, e.recorder.Succeed(ctx, req.ExecutionID, outputs))
}

// finish reports an engine failure only when the terminal write itself failed
// for a reason other than the record already being closed.
func (e *Engine) finish(ctx context.Context, id string, err error) error {
	if err == nil || errors.Is(err, domain.ErrAlreadyTerminal) {
		return nil
	}
	e.logger.Warn("failed to write terminal execution state", "execution_id", id, "err", err)
	return err
}

type handle struct {
	done chan struct{}
	err  error
}

func (h *handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Expand returns a copy of config where ${key} in string values is replaced
// by the workflow input value for key. Unknown keys are left as written, and
// the run-workflow envelope is not addressable.
func Expand(config map[string]any, input map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	lookup := func(ref string) string {
		key := placeholder.FindStringSubmatch(ref)[1]
		v, ok := input[key]
		if !ok || key == domain.RunWorkflowMetaKey {
			return ref
		}
		if v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}
	out := maps.Clone(config)
	for k, v := range out {
		out[k] = expandValue(v, lookup)
	}
	return out
}

func expandValue(v any, lookup func(string) string) any {
	switch t := v.(type) {
	case string:
		return placeholder.ReplaceAllStringFunc(t, lookup)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, sub := range t {
			out[k] = expandValue(sub, lookup)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, sub := range t {
			out[i] = expandValue(sub, lookup)
		}
		return out
	}
	return v
}
