package toolloop

import (
	"context"
	"log/slog"

	"github.com/aretw0/relay/internal/logging"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/google/uuid"
)

// StepLoop implements ports.ModelClient on top of a single-turn LanguageModel.
// Each step is one Generate call followed by the tool calls it requested; the
// loop ends when the model answers without tool calls or StepLimit is reached.
//
// Tool failures are returned to the model as error results so it can recover;
// only model failures abort the loop.
type StepLoop struct {
	model  ports.LanguageModel
	logger *slog.Logger
}

// StepLoopOption configures a StepLoop.
type StepLoopOption func(*StepLoop)

func WithStepLogger(logger *slog.Logger) StepLoopOption {
	return func(l *StepLoop) { l.logger = logger }
}

// NewStepLoop wraps model.
func NewStepLoop(model ports.LanguageModel, opts ...StepLoopOption) *StepLoop {
	l := &StepLoop{model: model, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *StepLoop) Invoke(ctx context.Context, req ports.ModelRequest) (ports.ModelResponse, error) {
	var tools []domain.Tool
	if req.Tools != nil {
		tools = req.Tools.Definitions()
	}
	limit := ClampSteps(req.StepLimit)

	messages := []ports.Message{{Role: ports.RoleUser, Text: req.Prompt}}
	steps := make([]domain.LoopStep, 0, limit)

	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return ports.ModelResponse{Steps: steps}, err
		}

		turn, err := l.model.Generate(ctx, ports.TurnRequest{
			ModelID:  req.ModelID,
			System:   req.Instructions,
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			return ports.ModelResponse{Steps: steps}, err
		}

		step := domain.LoopStep{Index: i, Text: turn.Text, FinishReason: turn.FinishReason}
		if len(turn.ToolCalls) == 0 {
			steps = append(steps, step)
			return ports.ModelResponse{Text: turn.Text, Steps: steps}, nil
		}

		calls := make([]domain.ToolCall, len(turn.ToolCalls))
		for j, call := range turn.ToolCalls {
			if call.ID == "" {
				call.ID = uuid.NewString()
			}
			calls[j] = call
		}
		step.ToolCalls = calls
		messages = append(messages, ports.Message{Role: ports.RoleAssistant, Text: turn.Text, ToolCalls: calls})

		for _, call := range calls {
			res := l.execute(ctx, req, call)
			step.ToolResults = append(step.ToolResults, res)
			messages = append(messages, ports.Message{Role: ports.RoleTool, ToolResult: &res})
		}
		steps = append(steps, step)
	}

	l.logger.Debug("tool loop hit step limit", "limit", limit)
	return ports.ModelResponse{Text: lastText(steps), Steps: steps}, nil
}

func (l *StepLoop) execute(ctx context.Context, req ports.ModelRequest, call domain.ToolCall) domain.ToolResult {
	res := domain.ToolResult{ID: call.ID, Name: call.Name}
	if req.Tools == nil {
		res.IsError = true
		res.Error = "no tools are available"
		return res
	}
	out, err := req.Tools.Execute(ctx, call.Name, call.Args)
	if err != nil {
		l.logger.Debug("tool call failed", "tool", call.Name, "error", err)
		res.IsError = true
		res.Error = err.Error()
		return res
	}
	res.Result = out
	return res
}

func lastText(steps []domain.LoopStep) string {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Text != "" {
			return steps[i].Text
		}
	}
	return ""
}
