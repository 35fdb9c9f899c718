// Package toolloop drives a bounded model/tool conversation against a sandbox
// tool set and post-processes the final answer.
package toolloop

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/observability"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/aretw0/relay/pkg/registry"
)

// Step ceiling bounds.
const (
	MinSteps     = 1
	MaxSteps     = 50
	DefaultSteps = 10
)

// DefaultInstructions is used when a request carries none.
const DefaultInstructions = `You are an automation agent working inside a sandboxed shell session.
Use the available tools to inspect and change files and to run commands.
Work in small verifiable steps and stop as soon as the task is done.
When the task asks for data, reply with a single JSON object or array and nothing else.
Otherwise reply with a short plain-text summary of what you did.`

var errPromptRequired = errors.New("prompt is required")

// ClampSteps maps a requested ceiling into [MinSteps, MaxSteps]. Zero means
// DefaultSteps.
func ClampSteps(n int) int {
	switch {
	case n == 0:
		return DefaultSteps
	case n < MinSteps:
		return MinSteps
	case n > MaxSteps:
		return MaxSteps
	}
	return n
}

// Request is one loop run.
type Request struct {
	ModelID      string
	Instructions string
	Prompt       string
	Tools        *registry.Registry
	MaxSteps     int
}

// Result is the outcome of a successful run.
type Result struct {
	Text      string
	Steps     []domain.LoopStep
	StepsUsed int
	Output    domain.Output
}

// Data is the caller-facing payload: the parsed JSON answer, or
// {text, stepsUsed} when the answer is plain text.
func (r Result) Data() any {
	if r.Output.Kind == domain.OutputParsed {
		return r.Output.Value
	}
	return map[string]any{"text": r.Output.Text, "stepsUsed": r.StepsUsed}
}

// Runner runs tool loops through a ModelClient.
type Runner struct {
	client       ports.ModelClient
	modelID      string
	instructions string
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// Option configures the Runner.
type Option func(*Runner)

// WithModelID sets the model used when a request names none.
func WithModelID(id string) Option {
	return func(r *Runner) { r.modelID = id }
}

// WithInstructions replaces DefaultInstructions.
func WithInstructions(text string) Option {
	return func(r *Runner) { r.instructions = text }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a Runner.
func NewRunner(client ports.ModelClient, opts ...Option) *Runner {
	r := &Runner{
		client:       client,
		instructions: DefaultInstructions,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the loop once. Every failure is returned as a ToolLoopError;
// nothing is retried.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Result{}, domain.ToolLoopError(errPromptRequired)
	}

	instructions := strings.TrimSpace(req.Instructions)
	if instructions == "" {
		instructions = r.instructions
	}
	modelID := req.ModelID
	if modelID == "" {
		modelID = r.modelID
	}
	tools := req.Tools
	if tools == nil {
		tools = registry.NewRegistry()
	}
	limit := ClampSteps(req.MaxSteps)

	resp, err := r.client.Invoke(ctx, ports.ModelRequest{
		ModelID:      modelID,
		Instructions: instructions,
		Prompt:       prompt,
		Tools:        tools,
		StepLimit:    limit,
	})
	if err != nil {
		r.logger.Debug("tool loop failed", "model", modelID, "error", err)
		return Result{}, domain.ToolLoopError(err)
	}

	steps := resp.Steps
	if len(steps) > limit {
		steps = steps[:limit]
	}
	out := domain.ParseOutput(resp.Text)
	r.metrics.LoopFinished(len(steps))
	r.logger.Debug("tool loop finished", "model", modelID, "steps", len(steps), "parsed", out.Kind == domain.OutputParsed)

	return Result{
		Text:      out.Text,
		Steps:     steps,
		StepsUsed: len(steps),
		Output:    out,
	}, nil
}
