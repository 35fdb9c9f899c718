// Package nested runs a workflow as a child of the current execution and
// waits for its terminal state.
//
// The ancestor path travels by value in the child's input (see
// domain.RunWorkflowMeta); a target already on the path fails with
// CycleDetected and a path longer than domain.MaxPathDepth fails with
// DepthExceeded. Neither creates a record.
package nested

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/observability"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/aretw0/relay/pkg/records"
)

// FallbackErrorMessage is reported when a child ends in error without a
// recorded message.
const FallbackErrorMessage = "child workflow execution failed"

// Request identifies the child to run and the execution that invokes it.
type Request struct {
	WorkflowID string
	UserID     string
	Input      map[string]any

	// ParentExecutionID is the running execution that issued the call. When it
	// is empty or unknown, ParentWorkflowID seeds the path.
	ParentExecutionID string
	ParentWorkflowID  string
}

// Result is a successful child run.
type Result struct {
	WorkflowID  string
	ExecutionID string
	Output      any
}

// Data is the caller-facing payload.
func (r Result) Data() map[string]any {
	return map[string]any{
		"workflowId":  r.WorkflowID,
		"executionId": r.ExecutionID,
		"output":      r.Output,
	}
}

// Controller creates, launches and awaits child executions.
type Controller struct {
	workflows ports.WorkflowStore
	validator ports.IntegrationValidator
	engine    ports.ExecutionEngine
	recorder  *records.Recorder
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// Option configures the Controller.
type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController wires the collaborators. validator may be nil, in which case
// every workflow passes validation.
func NewController(workflows ports.WorkflowStore, validator ports.IntegrationValidator, engine ports.ExecutionEngine, recorder *records.Recorder, opts ...Option) *Controller {
	c := &Controller{
		workflows: workflows,
		validator: validator,
		engine:    engine,
		recorder:  recorder,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes the child workflow and blocks until it is terminal. Calls are
// not idempotent: every call creates a new execution record.
//
// Once the child record exists, any failure leaves it in status error. A panic
// from a collaborator closes the record too and is then re-raised.
func (c *Controller) Run(ctx context.Context, req Request) (res Result, err error) {
	wf, path, err := c.prepare(ctx, req)
	if err != nil {
		c.metrics.ChildFinished("rejected")
		return Result{}, err
	}

	input := domain.MergeMeta(req.Input, domain.RunWorkflowMeta{
		Path:              path,
		ParentExecutionID: req.ParentExecutionID,
		ParentWorkflowID:  parentWorkflowID(req, path),
	})
	child, err := c.recorder.Start(ctx, &domain.ExecutionRecord{
		WorkflowID: wf.ID,
		UserID:     req.UserID,
		Input:      input,
	})
	if err != nil {
		return Result{}, err
	}

	log := c.logger.With("workflow_id", wf.ID, "execution_id", child.ID, "depth", path.Len())
	log.Debug("child execution created")

	reconcile := true
	defer func() {
		if r := recover(); r != nil {
			c.reconcile(ctx, log, child.ID, fmt.Errorf("child execution panicked: %v", r))
			panic(r)
		}
		if err == nil || !reconcile {
			return
		}
		c.reconcile(ctx, log, child.ID, err)
	}()

	handle, err := c.engine.Start(ctx, ports.StartRequest{
		ExecutionID: child.ID,
		Workflow:    wf,
		UserID:      req.UserID,
		Input:       input,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to start child execution: %w", err)
	}

	if err := handle.Wait(context.WithoutCancel(ctx)); err != nil {
		return Result{}, fmt.Errorf("child execution failed: %w", err)
	}

	final, err := c.recorder.Get(context.WithoutCancel(ctx), child.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			reconcile = false
			return Result{}, domain.NotFoundError("child execution record %s not found", child.ID)
		}
		return Result{}, fmt.Errorf("failed to read child execution: %w", err)
	}

	switch final.Status {
	case domain.StatusSuccess:
		c.metrics.ChildFinished(string(domain.StatusSuccess))
		log.Debug("child execution succeeded")
		return Result{WorkflowID: wf.ID, ExecutionID: child.ID, Output: final.Output}, nil
	case domain.StatusError:
		msg := final.Error
		if msg == "" {
			msg = FallbackErrorMessage
		}
		return Result{}, domain.ChildExecutionFailed(msg).
			WithDetail("workflowId", wf.ID).
			WithDetail("executionId", child.ID)
	default:
		return Result{}, domain.ChildExecutionFailed(FallbackErrorMessage).
			WithDetail("workflowId", wf.ID).
			WithDetail("executionId", child.ID).
			WithDetail("status", string(final.Status))
	}
}

// prepare runs every check that must pass before a record is created: the
// workflow lookup, integration validation and path extension, in that order.
func (c *Controller) prepare(ctx context.Context, req Request) (*domain.Workflow, domain.ExecutionPath, error) {
	wf, err := c.workflows.Find(ctx, req.WorkflowID, req.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ExecutionPath{}, domain.NotFoundError("workflow %s not found", req.WorkflowID)
		}
		return nil, domain.ExecutionPath{}, fmt.Errorf("failed to load workflow %s: %w", req.WorkflowID, err)
	}

	if c.validator != nil {
		if err := c.validator.Validate(ctx, wf.Nodes, req.UserID); err != nil {
			if errors.Is(err, domain.ErrValidation) {
				return nil, domain.ExecutionPath{}, err
			}
			return nil, domain.ExecutionPath{}, domain.ValidationError("workflow %s failed validation", wf.ID).WithCause(err)
		}
	}

	parent, err := c.parentPath(ctx, req)
	if err != nil {
		return nil, domain.ExecutionPath{}, err
	}
	path, err := ChildPath(parent, wf.ID)
	if err != nil {
		return nil, domain.ExecutionPath{}, err
	}
	return wf, path, nil
}

func (c *Controller) parentPath(ctx context.Context, req Request) (domain.ExecutionPath, error) {
	if req.ParentExecutionID != "" {
		parent, err := c.recorder.Get(ctx, req.ParentExecutionID)
		switch {
		case err == nil && parent.UserID == req.UserID:
			return ParentPath(parent), nil
		case err == nil:
			// Another user's record never seeds this user's ancestry.
			c.logger.Debug("parent execution belongs to another user, seeding path from workflow id",
				"parent_execution_id", req.ParentExecutionID)
		case !errors.Is(err, domain.ErrNotFound):
			return domain.ExecutionPath{}, fmt.Errorf("failed to read parent execution: %w", err)
		default:
			c.logger.Debug("parent execution not found, seeding path from workflow id",
				"parent_execution_id", req.ParentExecutionID)
		}
	}
	if req.ParentWorkflowID == "" {
		return domain.NewExecutionPath(), nil
	}
	return domain.NewExecutionPath(req.ParentWorkflowID), nil
}

// parentWorkflowID is the caller's workflow: the explicit id, else the entry
// before the child on the extended path.
func parentWorkflowID(req Request, path domain.ExecutionPath) string {
	if req.ParentWorkflowID != "" {
		return req.ParentWorkflowID
	}
	ids := path.IDs()
	if len(ids) < 2 {
		return ""
	}
	return ids[len(ids)-2]
}

// reconcile moves the child record to error after a controller-side failure.
// It runs detached from ctx so a cancelled caller still closes the record.
func (c *Controller) reconcile(ctx context.Context, log *slog.Logger, id string, cause error) {
	c.metrics.ChildFinished(string(domain.StatusError))
	err := c.recorder.Fail(context.WithoutCancel(ctx), id, cause.Error())
	switch {
	case err == nil:
		log.Debug("child execution reconciled to error", "cause", cause)
	case records.IsAlreadyTerminal(err):
	default:
		log.Warn("failed to reconcile child execution", "err", err, "cause", cause)
	}
}
