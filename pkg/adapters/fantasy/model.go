// Package fantasy implements ports.LanguageModel over charm.land/fantasy, which
// speaks to Anthropic, OpenAI, Google and OpenAI-compatible endpoints.
package fantasy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"charm.land/fantasy"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
)

// DefaultMaxTokens caps the output of a single turn.
const DefaultMaxTokens = 4096

// ModelSource opens a language model by id. fantasy.Provider satisfies it.
type ModelSource interface {
	LanguageModel(ctx context.Context, modelID string) (fantasy.LanguageModel, error)
}

// Model implements ports.LanguageModel. Models are opened on first use and
// cached by id.
type Model struct {
	source       ModelSource
	defaultModel string
	maxTokens    int64

	mu     sync.Mutex
	models map[string]fantasy.LanguageModel
}

// Option configures a Model.
type Option func(*Model)

// WithMaxTokens overrides DefaultMaxTokens.
func WithMaxTokens(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.maxTokens = int64(n)
		}
	}
}

// NewModel serves turns from source. defaultModel is used when a request names
// no model.
func NewModel(source ModelSource, defaultModel string, opts ...Option) *Model {
	m := &Model{
		source:       source,
		defaultModel: defaultModel,
		maxTokens:    DefaultMaxTokens,
		models:       make(map[string]fantasy.LanguageModel),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Generate(ctx context.Context, req ports.TurnRequest) (ports.TurnResponse, error) {
	lm, err := m.open(ctx, req.ModelID)
	if err != nil {
		return ports.TurnResponse{}, err
	}

	maxTokens := m.maxTokens
	resp, err := lm.Generate(ctx, fantasy.Call{
		Prompt:          buildPrompt(req.System, req.Messages),
		Tools:           buildTools(req.Tools),
		MaxOutputTokens: &maxTokens,
	})
	if err != nil {
		return ports.TurnResponse{}, fmt.Errorf("%s: %w", lm.Model(), err)
	}

	out := ports.TurnResponse{FinishReason: string(resp.FinishReason)}
	for _, c := range resp.Content {
		appendContent(&out, c)
	}
	return out, nil
}

func (m *Model) open(ctx context.Context, id string) (fantasy.LanguageModel, error) {
	if id == "" {
		id = m.defaultModel
	}
	if id == "" {
		return nil, domain.ConfigurationError("no model configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if lm, ok := m.models[id]; ok {
		return lm, nil
	}
	lm, err := m.source.LanguageModel(ctx, id)
	if err != nil {
		return nil, domain.ConfigurationError("failed to open model %s", id).WithCause(err)
	}
	m.models[id] = lm
	return lm, nil
}

func buildPrompt(system string, messages []ports.Message) fantasy.Prompt {
	prompt := make(fantasy.Prompt, 0, len(messages)+1)
	if system != "" {
		prompt = append(prompt, fantasy.NewSystemMessage(system))
	}
	for _, msg := range messages {
		switch msg.Role {
		case ports.RoleUser:
			prompt = append(prompt, fantasy.NewUserMessage(msg.Text))
		case ports.RoleAssistant:
			var parts []fantasy.MessagePart
			if msg.Text != "" {
				parts = append(parts, fantasy.TextPart{Text: msg.Text})
			}
			for _, call := range msg.ToolCalls {
				args, _ := json.Marshal(call.Args)
				if call.Args == nil {
					args = []byte("{}")
				}
				parts = append(parts, fantasy.ToolCallPart{
					ToolCallID: call.ID,
					ToolName:   call.Name,
					Input:      string(args),
				})
			}
			prompt = append(prompt, fantasy.Message{Role: fantasy.MessageRoleAssistant, Content: parts})
		case ports.RoleTool:
			if msg.ToolResult == nil {
				continue
			}
			prompt = append(prompt, fantasy.Message{
				Role: fantasy.MessageRoleTool,
				Content: []fantasy.MessagePart{
					fantasy.ToolResultPart{
						ToolCallID: msg.ToolResult.ID,
						Output:     fantasy.ToolResultOutputContentText{Text: resultText(*msg.ToolResult)},
					},
				},
			})
		}
	}
	return prompt
}

func buildTools(defs []domain.Tool) []fantasy.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]fantasy.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, fantasy.FunctionTool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.Parameters,
		})
	}
	return tools
}

// resultText renders a tool result for the model. Strings pass through;
// anything else is JSON.
func resultText(res domain.ToolResult) string {
	if res.IsError {
		return "error: " + res.Error
	}
	switch v := res.Result.(type) {
	case nil:
		return ""
	case string:
		return v
	}
	data, err := json.Marshal(res.Result)
	if err != nil {
		return fmt.Sprint(res.Result)
	}
	return string(data)
}

func appendContent(out *ports.TurnResponse, content any) {
	switch c := content.(type) {
	case *fantasy.TextContent:
		out.Text += c.Text
	case fantasy.TextContent:
		out.Text += c.Text
	case *fantasy.ToolCallContent:
		out.ToolCalls = append(out.ToolCalls, toolCall(c.ToolCallID, c.ToolName, c.Input))
	case fantasy.ToolCallContent:
		out.ToolCalls = append(out.ToolCalls, toolCall(c.ToolCallID, c.ToolName, c.Input))
	}
}

// toolCall decodes the JSON arguments. Undecodable input becomes an empty
// argument map so the tool reports the missing fields.
func toolCall(id, name, input string) domain.ToolCall {
	args := map[string]any{}
	if input != "" {
		_ = json.Unmarshal([]byte(input), &args)
	}
	return domain.ToolCall{ID: id, Name: name, Args: args}
}
