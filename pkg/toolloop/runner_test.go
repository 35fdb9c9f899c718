package toolloop_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/relay/pkg/adapters/simshell"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/aretw0/relay/pkg/sandbox"
	"github.com/aretw0/relay/pkg/toolloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// scriptedModel replays turns in order and records every request.
type scriptedModel struct {
	mu       sync.Mutex
	turns    []ports.TurnResponse
	err      error
	requests []ports.TurnRequest
}

func (m *scriptedModel) Generate(ctx context.Context, req ports.TurnRequest) (ports.TurnResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return ports.TurnResponse{}, m.err
	}
	if len(m.requests) > len(m.turns) {
		// Keep calling tools forever once the script runs out.
		return ports.TurnResponse{ToolCalls: []domain.ToolCall{{Name: sandbox.ToolBash, Args: map[string]any{"command": "pwd"}}}}, nil
	}
	return m.turns[len(m.requests)-1], nil
}

func bash(cmd string) ports.TurnResponse {
	return ports.TurnResponse{
		ToolCalls:    []domain.ToolCall{{ID: "call-" + cmd, Name: sandbox.ToolBash, Args: map[string]any{"command": cmd}}},
		FinishReason: "tool-calls",
	}
}

func localTools(t *testing.T) *simshell.Provider {
	t.Helper()
	return simshell.New(simshell.WithFiles(map[string]string{"main.go": "package main\n", "go.mod": "module demo\n"}))
}

func TestRunner_ListFilesScenario(t *testing.T) {
	tools, err := localTools(t).Create(context.Background())
	require.NoError(t, err)

	model := &scriptedModel{turns: []ports.TurnResponse{
		bash("ls"),
		{Text: "The directory contains go.mod and main.go.", FinishReason: "stop"},
	}}
	runner := toolloop.NewRunner(toolloop.NewStepLoop(model))

	res, err := runner.Run(context.Background(), toolloop.Request{Prompt: "list files", Tools: tools, MaxSteps: 3})
	require.NoError(t, err)

	assert.LessOrEqual(t, res.StepsUsed, 3)
	assert.Equal(t, 2, res.StepsUsed)
	assert.Equal(t, map[string]any{"text": "The directory contains go.mod and main.go.", "stepsUsed": 2}, res.Data())

	require.Len(t, res.Steps[0].ToolResults, 1)
	assert.Equal(t, domain.CommandResult{Stdout: "go.mod\nmain.go\n"}, res.Steps[0].ToolResults[0].Result)

	// The tool result is fed back on the second turn.
	require.Len(t, model.requests, 2)
	second := model.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, ports.RoleTool, second[2].Role)
	assert.Equal(t, "call-ls", second[2].ToolResult.ID)
	assert.Equal(t, toolloop.DefaultInstructions, model.requests[0].System)
	assert.Len(t, model.requests[0].Tools, 4)
}

func TestRunner_StopsAtCeiling(t *testing.T) {
	tools, err := localTools(t).Create(context.Background())
	require.NoError(t, err)
	model := &scriptedModel{}

	res, err := toolloop.NewRunner(toolloop.NewStepLoop(model)).Run(context.Background(), toolloop.Request{
		Prompt: "loop forever", Tools: tools, MaxSteps: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.StepsUsed)
	assert.Len(t, model.requests, 3)
	assert.Equal(t, map[string]any{"text": "", "stepsUsed": 3}, res.Data())
}

func TestRunner_ParsesJSONAnswer(t *testing.T) {
	tests := []struct {
		name string
		text string
		want any
	}{
		{"object", "  {\"files\": [\"a\", \"b\"]}\n", map[string]any{"files": []any{"a", "b"}}},
		{"array", "[1, 2]", []any{float64(1), float64(2)}},
		{"malformed", "{not json}", map[string]any{"text": "{not json}", "stepsUsed": 1}},
		{"prose around json", "Here: {\"a\":1}", map[string]any{"text": "Here: {\"a\":1}", "stepsUsed": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedModel{turns: []ports.TurnResponse{{Text: tt.text}}}
			res, err := toolloop.NewRunner(toolloop.NewStepLoop(model)).Run(context.Background(), toolloop.Request{Prompt: "go"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Data())
		})
	}
}

func TestRunner_Errors(t *testing.T) {
	t.Run("blank prompt", func(t *testing.T) {
		client := new(mockClient)
		_, err := toolloop.NewRunner(client).Run(context.Background(), toolloop.Request{Prompt: "  "})
		assert.ErrorIs(t, err, domain.ErrToolLoop)
		assert.Contains(t, err.Error(), "prompt is required")
		client.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
	})

	t.Run("model failure is not retried", func(t *testing.T) {
		model := &scriptedModel{err: errors.New("rate limited")}
		_, err := toolloop.NewRunner(toolloop.NewStepLoop(model)).Run(context.Background(), toolloop.Request{Prompt: "go"})
		assert.ErrorIs(t, err, domain.ErrToolLoop)
		assert.Equal(t, "rate limited", err.Error())
		assert.Len(t, model.requests, 1)
	})
}

func TestRunner_ForwardsRequest(t *testing.T) {
	client := new(mockClient)
	client.On("Invoke", mock.Anything, mock.MatchedBy(func(req ports.ModelRequest) bool {
		return req.ModelID == "claude-test" && req.Instructions == "be brief" && req.StepLimit == toolloop.MaxSteps && req.Tools != nil
	})).Return(ports.ModelResponse{Text: "done", Steps: []domain.LoopStep{{Index: 0, Text: "done"}}}, nil)

	runner := toolloop.NewRunner(client, toolloop.WithModelID("claude-test"))
	res, err := runner.Run(context.Background(), toolloop.Request{Prompt: "go", Instructions: "be brief", MaxSteps: 500})
	require.NoError(t, err)
	assert.Equal(t, "done", res.Text)
	client.AssertExpectations(t)
}

func TestStepLoop_ToolErrorsAreFedBack(t *testing.T) {
	tools, err := localTools(t).Create(context.Background())
	require.NoError(t, err)
	model := &scriptedModel{turns: []ports.TurnResponse{
		{ToolCalls: []domain.ToolCall{{Name: "deploy"}}},
		{Text: "cannot deploy"},
	}}

	resp, err := toolloop.NewStepLoop(model).Invoke(context.Background(), ports.ModelRequest{Prompt: "deploy", Tools: tools, StepLimit: 5})
	require.NoError(t, err)
	assert.Equal(t, "cannot deploy", resp.Text)
	res := resp.Steps[0].ToolResults[0]
	assert.True(t, res.IsError)
	assert.Contains(t, res.Error, "tool not found")
	assert.NotEmpty(t, res.ID, "missing call ids are generated")
}

func TestClampSteps(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 10}, {-4, 1}, {1, 1}, {3, 3}, {50, 50}, {51, 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toolloop.ClampSteps(tt.in), "ClampSteps(%d)", tt.in)
	}
}

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Invoke(ctx context.Context, req ports.ModelRequest) (ports.ModelResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ports.ModelResponse), args.Error(1)
}
