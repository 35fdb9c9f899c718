package steps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/observability"
	"github.com/aretw0/relay/pkg/sandbox"
)

// CommandInput runs one shell command in a fresh sandbox.
type CommandInput struct {
	Command     string `mapstructure:"command" json:"command"`
	SandboxType string `mapstructure:"sandboxType" json:"sandboxType,omitempty"`
	Token       string `mapstructure:"token" json:"-"`
}

// CommandStep is the direct-command step.
type CommandStep struct {
	sandboxes *sandbox.Manager
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewCommandStep creates a CommandStep.
func NewCommandStep(sandboxes *sandbox.Manager, opts ...Option) *CommandStep {
	o := newOptions(opts)
	return &CommandStep{sandboxes: sandboxes, logger: o.logger, metrics: o.metrics}
}

func (s *CommandStep) Name() string { return domain.NodeCommand }

func (s *CommandStep) Execute(ctx context.Context, inv Invocation, config map[string]any) domain.Result {
	return guard(s.Name(), s.logger, s.metrics, func() domain.Result {
		var in CommandInput
		if err := Decode(config, &in); err != nil {
			return domain.Fail(err)
		}
		return s.run(ctx, in)
	})
}

// Run acquires a session, runs the command through the bash tool and releases
// the session. A non-zero exit is a failure carrying the command output.
func (s *CommandStep) Run(ctx context.Context, in CommandInput) domain.Result {
	return guard(s.Name(), s.logger, s.metrics, func() domain.Result {
		return s.run(ctx, in)
	})
}

func (s *CommandStep) run(ctx context.Context, in CommandInput) domain.Result {
	kind, ok := sandbox.ParseKind(in.SandboxType)
	if !ok {
		return domain.Fail(&domain.CommandError{
			Command:     in.Command,
			SandboxType: in.SandboxType,
			Err:         domain.ValidationError("unknown sandbox type %q", in.SandboxType),
		})
	}
	if strings.TrimSpace(in.Command) == "" {
		return domain.Fail(&domain.CommandError{
			SandboxType: string(kind),
			Err:         domain.ValidationError("command is required"),
		})
	}

	sess, err := s.sandboxes.Acquire(ctx, sandbox.Request{Kind: kind, Token: in.Token})
	if err != nil {
		return domain.Fail(&domain.CommandError{Command: in.Command, SandboxType: string(kind), Err: err})
	}
	defer sess.Release()

	out, err := sess.Tools.Execute(ctx, sandbox.ToolBash, map[string]any{"command": in.Command})
	if err != nil {
		return domain.Fail(&domain.CommandError{Command: in.Command, SandboxType: string(kind), Err: err})
	}
	res, ok := out.(domain.CommandResult)
	if !ok {
		return domain.Fail(&domain.CommandError{
			Command:     in.Command,
			SandboxType: string(kind),
			Err:         fmt.Errorf("unexpected bash result %T", out),
		})
	}

	if res.ExitCode != 0 {
		code := res.ExitCode
		s.logger.Debug("command failed", "command", in.Command, "exit_code", code)
		return domain.Fail(&domain.CommandError{
			Command:     in.Command,
			SandboxType: string(kind),
			Stdout:      res.Stdout,
			Stderr:      res.Stderr,
			ExitCode:    &code,
		})
	}

	return domain.Succeed(map[string]any{
		"stdout":           res.Stdout,
		"stderr":           res.Stderr,
		"exitCode":         res.ExitCode,
		"sandboxType":      string(kind),
		"workingDirectory": sess.WorkingDir,
	})
}

// Option configures a step.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

func newOptions(opts []Option) options {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}
