package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/steps"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	result  domain.Result
	command steps.CommandInput
	agent   steps.AgentInput
	inv     steps.Invocation
	runWf   steps.RunWorkflowInput
	records []*domain.ExecutionRecord
}

func (f *fakeService) RunCommand(ctx context.Context, in steps.CommandInput) domain.Result {
	f.command = in
	return f.result
}

func (f *fakeService) RunAgent(ctx context.Context, in steps.AgentInput) domain.Result {
	f.agent = in
	return f.result
}

func (f *fakeService) RunWorkflow(ctx context.Context, inv steps.Invocation, in steps.RunWorkflowInput) domain.Result {
	f.inv, f.runWf = inv, in
	return f.result
}

func (f *fakeService) Execution(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, domain.ErrExecutionNotFound
}

func (f *fakeService) ListExecutions(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionRecord, error) {
	return f.records, nil
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func TestRunCommand(t *testing.T) {
	svc := &fakeService{result: domain.Succeed(map[string]any{"stdout": "hi\n"})}
	s := NewServer(svc)

	res, err := s.handleRunCommand(context.Background(), call("run_command", map[string]any{"command": "echo hi", "sandboxType": "local"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, steps.CommandInput{Command: "echo hi", SandboxType: "local"}, svc.command)
	assert.JSONEq(t, `{"success":true,"data":{"stdout":"hi\n"}}`, text(t, res))
}

func TestRunAgent_FailureIsToolError(t *testing.T) {
	svc := &fakeService{result: domain.Fail(domain.ToolLoopError(assert.AnError))}
	s := NewServer(svc)

	res, err := s.handleRunAgent(context.Background(), call("run_agent", map[string]any{"prompt": "go", "maxSteps": float64(4)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, 4, svc.agent.MaxSteps)

	var out domain.Result
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	assert.Equal(t, "ToolLoopError", out.Error.Kind)
}

func TestRunWorkflow(t *testing.T) {
	svc := &fakeService{result: domain.Succeed(map[string]any{"executionId": "e2"})}
	s := NewServer(svc)
	ctx := context.Background()

	res, err := s.handleRunWorkflow(ctx, call("run_workflow", map[string]any{
		"workflowId":        "child",
		"userId":            "ada",
		"input":             map[string]any{"n": 1},
		"parentExecutionId": "e1",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, steps.Invocation{UserID: "ada", ExecutionID: "e1"}, svc.inv)
	assert.Equal(t, steps.RunWorkflowInput{WorkflowID: "child", Input: map[string]any{"n": 1}}, svc.runWf)

	res, err = s.handleRunWorkflow(ctx, call("run_workflow", map[string]any{"workflowId": "child"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "userId is required", text(t, res))
}

func TestGetExecution(t *testing.T) {
	svc := &fakeService{records: []*domain.ExecutionRecord{{ID: "e1", WorkflowID: "wf", Status: domain.StatusRunning}}}
	s := NewServer(svc)
	ctx := context.Background()

	res, err := s.handleGetExecution(ctx, call("get_execution", map[string]any{"id": "e1"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, res), `"status":"running"`)

	res, err = s.handleGetExecution(ctx, call("get_execution", map[string]any{"id": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "execution nope not found", text(t, res))

	res, err = s.handleGetExecution(ctx, call("get_execution", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestExecutionsResource(t *testing.T) {
	s := NewServer(&fakeService{})

	contents, err := s.handleExecutionsResource(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Equal(t, "[]", contents[0].(mcp.TextResourceContents).Text)
}

func TestTools(t *testing.T) {
	names := func(s *Server) []string {
		var out []string
		for name := range s.MCPServer().ListTools() {
			out = append(out, name)
		}
		return out
	}
	assert.ElementsMatch(t, []string{"run_command", "run_agent", "run_workflow", "get_execution"}, names(NewServer(&fakeService{})))
	assert.ElementsMatch(t, []string{"run_command", "run_workflow", "get_execution"}, names(NewServer(&fakeService{}, WithoutAgent())))
}
