package steps

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/nested"
	"github.com/aretw0/relay/pkg/observability"
)

// RunWorkflowInput names the child workflow and its input.
type RunWorkflowInput struct {
	WorkflowID string         `mapstructure:"workflowId" json:"workflowId"`
	Input      map[string]any `mapstructure:"input" json:"input,omitempty"`
}

// RunWorkflowStep runs a workflow as a child of the invoking execution.
type RunWorkflowStep struct {
	controller *nested.Controller
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewRunWorkflowStep creates a RunWorkflowStep.
func NewRunWorkflowStep(controller *nested.Controller, opts ...Option) *RunWorkflowStep {
	o := newOptions(opts)
	return &RunWorkflowStep{controller: controller, logger: o.logger, metrics: o.metrics}
}

func (s *RunWorkflowStep) Name() string { return domain.NodeRunWorkflow }

func (s *RunWorkflowStep) Execute(ctx context.Context, inv Invocation, config map[string]any) domain.Result {
	return guard(s.Name(), s.logger, s.metrics, func() domain.Result {
		var in RunWorkflowInput
		if err := Decode(config, &in); err != nil {
			return domain.Fail(err)
		}
		return s.run(ctx, inv, in)
	})
}

// Run blocks until the child is terminal. The caller's execution and workflow
// seed the ancestor path.
func (s *RunWorkflowStep) Run(ctx context.Context, inv Invocation, in RunWorkflowInput) domain.Result {
	return guard(s.Name(), s.logger, s.metrics, func() domain.Result {
		return s.run(ctx, inv, in)
	})
}

func (s *RunWorkflowStep) run(ctx context.Context, inv Invocation, in RunWorkflowInput) domain.Result {
	if strings.TrimSpace(in.WorkflowID) == "" {
		return domain.Fail(domain.ValidationError("workflowId is required"))
	}
	res, err := s.controller.Run(ctx, nested.Request{
		WorkflowID:        in.WorkflowID,
		UserID:            inv.UserID,
		Input:             in.Input,
		ParentExecutionID: inv.ExecutionID,
		ParentWorkflowID:  inv.WorkflowID,
	})
	if err != nil {
		return domain.Fail(err)
	}
	return domain.Succeed(res.Data())
}
