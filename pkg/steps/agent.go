package steps

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/observability"
	"github.com/aretw0/relay/pkg/sandbox"
	"github.com/aretw0/relay/pkg/toolloop"
)

// AgentInput drives a tool loop in a fresh sandbox.
type AgentInput struct {
	Prompt       string `mapstructure:"prompt" json:"prompt"`
	Instructions string `mapstructure:"instructions" json:"instructions,omitempty"`
	Model        string `mapstructure:"model" json:"model,omitempty"`
	MaxSteps     int    `mapstructure:"maxSteps" json:"maxSteps,omitempty"`
	SandboxType  string `mapstructure:"sandboxType" json:"sandboxType,omitempty"`
	Token        string `mapstructure:"token" json:"-"`
}

// AgentStep runs a model-driven tool loop.
type AgentStep struct {
	sandboxes *sandbox.Manager
	runner    *toolloop.Runner
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewAgentStep creates an AgentStep.
func NewAgentStep(sandboxes *sandbox.Manager, runner *toolloop.Runner, opts ...Option) *AgentStep {
	o := newOptions(opts)
	return &AgentStep{sandboxes: sandboxes, runner: runner, logger: o.logger, metrics: o.metrics}
}

func (s *AgentStep) Name() string { return domain.NodeAgent }

func (s *AgentStep) Execute(ctx context.Context, inv Invocation, config map[string]any) domain.Result {
	return guard(s.Name(), s.logger, s.metrics, func() domain.Result {
		var in AgentInput
		if err := Decode(config, &in); err != nil {
			return domain.Fail(err)
		}
		return s.run(ctx, in)
	})
}

// Run checks the input, acquires a session, runs the loop and releases the
// session on every path.
func (s *AgentStep) Run(ctx context.Context, in AgentInput) domain.Result {
	return guard(s.Name(), s.logger, s.metrics, func() domain.Result {
		return s.run(ctx, in)
	})
}

func (s *AgentStep) run(ctx context.Context, in AgentInput) domain.Result {
	if strings.TrimSpace(in.Prompt) == "" {
		return domain.Fail(domain.ToolLoopError(errors.New("prompt is required")))
	}
	kind, ok := sandbox.ParseKind(in.SandboxType)
	if !ok {
		return domain.Fail(domain.ValidationError("unknown sandbox type %q", in.SandboxType))
	}

	sess, err := s.sandboxes.Acquire(ctx, sandbox.Request{Kind: kind, Token: in.Token})
	if err != nil {
		return domain.Fail(err)
	}
	defer sess.Release()

	res, err := s.runner.Run(ctx, toolloop.Request{
		ModelID:      in.Model,
		Instructions: in.Instructions,
		Prompt:       in.Prompt,
		Tools:        sess.Tools,
		MaxSteps:     in.MaxSteps,
	})
	if err != nil {
		return domain.Fail(err)
	}
	s.logger.Debug("agent step finished", "session", sess.ID, "steps", res.StepsUsed)
	return domain.Succeed(res.Data())
}
