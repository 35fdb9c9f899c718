package fantasy

import (
	"context"
	"errors"
	"testing"

	"charm.land/fantasy"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.LanguageModel = (*Model)(nil)

func TestBuildPrompt(t *testing.T) {
	result := domain.ToolResult{ID: "c1", Name: "bash", Result: domain.CommandResult{Stdout: "a\n"}}
	prompt := buildPrompt("be brief", []ports.Message{
		{Role: ports.RoleUser, Text: "list files"},
		{Role: ports.RoleAssistant, Text: "checking", ToolCalls: []domain.ToolCall{
			{ID: "c1", Name: "bash", Args: map[string]any{"command": "ls"}},
			{ID: "c2", Name: "listFiles"},
		}},
		{Role: ports.RoleTool, ToolResult: &result},
		{Role: ports.RoleTool},
	})

	require.Len(t, prompt, 4)

	assistant := prompt[2]
	assert.Equal(t, fantasy.MessageRoleAssistant, assistant.Role)
	require.Len(t, assistant.Content, 3)
	assert.Equal(t, fantasy.TextPart{Text: "checking"}, assistant.Content[0])
	assert.Equal(t, fantasy.ToolCallPart{ToolCallID: "c1", ToolName: "bash", Input: `{"command":"ls"}`}, assistant.Content[1])
	assert.Equal(t, fantasy.ToolCallPart{ToolCallID: "c2", ToolName: "listFiles", Input: `{}`}, assistant.Content[2])

	tool := prompt[3]
	assert.Equal(t, fantasy.MessageRoleTool, tool.Role)
	require.Len(t, tool.Content, 1)
	part, ok := tool.Content[0].(fantasy.ToolResultPart)
	require.True(t, ok)
	assert.Equal(t, "c1", part.ToolCallID)
	assert.Equal(t, fantasy.ToolResultOutputContentText{Text: `{"exitCode":0,"stdout":"a\n","stderr":""}`}, part.Output)
}

func TestBuildPrompt_NoSystem(t *testing.T) {
	prompt := buildPrompt("", []ports.Message{{Role: ports.RoleUser, Text: "hi"}})
	assert.Len(t, prompt, 1)
}

func TestBuildTools(t *testing.T) {
	assert.Nil(t, buildTools(nil))

	schema := map[string]any{"type": "object"}
	tools := buildTools([]domain.Tool{{Name: "bash", Description: "run", Parameters: schema}})
	require.Len(t, tools, 1)
	assert.Equal(t, fantasy.FunctionTool{Name: "bash", Description: "run", InputSchema: schema}, tools[0])
}

func TestResultText(t *testing.T) {
	tests := []struct {
		name string
		in   domain.ToolResult
		want string
	}{
		{"string", domain.ToolResult{Result: "file contents"}, "file contents"},
		{"nil", domain.ToolResult{}, ""},
		{"object", domain.ToolResult{Result: map[string]any{"bytes": 3}}, `{"bytes":3}`},
		{"error", domain.ToolResult{IsError: true, Error: "tool not found"}, "error: tool not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resultText(tt.in))
		})
	}
}

func TestAppendContent(t *testing.T) {
	var out ports.TurnResponse
	appendContent(&out, fantasy.TextContent{Text: "Hello, "})
	appendContent(&out, &fantasy.TextContent{Text: "world"})
	appendContent(&out, fantasy.ToolCallContent{ToolCallID: "c1", ToolName: "readFile", Input: `{"path":"go.mod"}`})
	appendContent(&out, &fantasy.ToolCallContent{ToolCallID: "c2", ToolName: "bash", Input: `not json`})

	assert.Equal(t, "Hello, world", out.Text)
	assert.Equal(t, []domain.ToolCall{
		{ID: "c1", Name: "readFile", Args: map[string]any{"path": "go.mod"}},
		{ID: "c2", Name: "bash", Args: map[string]any{}},
	}, out.ToolCalls)
}

type failingSource struct{ calls int }

func (s *failingSource) LanguageModel(ctx context.Context, id string) (fantasy.LanguageModel, error) {
	s.calls++
	return nil, errors.New("unknown model " + id)
}

func TestModel_OpenErrors(t *testing.T) {
	t.Run("no model", func(t *testing.T) {
		src := &failingSource{}
		_, err := NewModel(src, "").Generate(context.Background(), ports.TurnRequest{})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
		assert.Zero(t, src.calls)
	})

	t.Run("source failure", func(t *testing.T) {
		src := &failingSource{}
		_, err := NewModel(src, "claude-x").Generate(context.Background(), ports.TurnRequest{ModelID: "gpt-y"})
		assert.ErrorIs(t, err, domain.ErrConfiguration)
		assert.ErrorContains(t, err, "unknown model gpt-y")
		assert.Equal(t, 1, src.calls)
	})
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider("", "key", "")
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewProvider("ollama", "", "")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.ErrorContains(t, err, "base_url is required")
}

func TestInferProvider(t *testing.T) {
	assert.Equal(t, "anthropic", InferProvider("claude-sonnet"))
	assert.Equal(t, "openai", InferProvider("gpt-4o"))
	assert.Equal(t, "google", InferProvider("gemini-2.0-flash"))
	assert.Equal(t, "", InferProvider("llama3"))
}
