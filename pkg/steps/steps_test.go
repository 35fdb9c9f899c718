package steps_test

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/aretw0/relay/internal/testutils"
	"github.com/aretw0/relay/pkg/adapters/memory"
	"github.com/aretw0/relay/pkg/adapters/simshell"
	"github.com/aretw0/relay/pkg/credentials"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/nested"
	"github.com/aretw0/relay/pkg/observability"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/aretw0/relay/pkg/records"
	"github.com/aretw0/relay/pkg/sandbox"
	"github.com/aretw0/relay/pkg/steps"
	"github.com/aretw0/relay/pkg/toolloop"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var claimsToken = "h." + base64.RawURLEncoding.EncodeToString([]byte(`{"owner_id":"team","project_id":"prj"}`)) + ".s"

// scriptedHandle answers the destination probe first and then every command
// with result.
func scriptedHandle(result domain.CommandResult) *testutils.FakeHandle {
	var mu sync.Mutex
	calls := 0
	return &testutils.FakeHandle{HandleID: "sb-1", Run: func(cmd string, args []string) (domain.CommandResult, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return domain.CommandResult{Stdout: "/home/user/workspace\n"}, nil
		}
		return result, nil
	}}
}

func newManager(handle *testutils.FakeHandle) (*sandbox.Manager, *testutils.FakeRemoteProvider) {
	provider := &testutils.FakeRemoteProvider{Handle: handle}
	mgr := sandbox.NewManager(
		sandbox.WithLocalProvider(simshell.New(simshell.WithFiles(map[string]string{"README.md": "# demo\n"}))),
		sandbox.WithRemoteProvider(provider),
		sandbox.WithResolver(credentials.NewResolver(credentials.WithEnv(func(string) (string, bool) { return "", false }))),
	)
	return mgr, provider
}

func TestCommandStep_Local(t *testing.T) {
	mgr, _ := newManager(nil)
	metrics := observability.NewMetrics(nil)
	step := steps.NewCommandStep(mgr, steps.WithMetrics(metrics))

	res := step.Execute(context.Background(), steps.Invocation{UserID: "alice"}, map[string]any{"command": "cat README.md"})
	require.True(t, res.Success, "%+v", res.Error)
	assert.Equal(t, map[string]any{
		"stdout":           "# demo\n",
		"stderr":           "",
		"exitCode":         0,
		"sandboxType":      "local-simulated",
		"workingDirectory": "/",
	}, res.Data)
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.StepDuration))
}

func TestCommandStep_Failures(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]any
		message string
		kind    string
		check   func(t *testing.T, f *domain.Failure)
	}{
		{
			name:    "non-zero exit carries context",
			config:  map[string]any{"command": "cat missing"},
			message: "command exited with code 1",
			check: func(t *testing.T, f *domain.Failure) {
				assert.Equal(t, "cat missing", f.Command)
				assert.Equal(t, "local-simulated", f.SandboxType)
				assert.Equal(t, "cat: missing: No such file or directory\n", f.Stderr)
				require.NotNil(t, f.ExitCode)
				assert.Equal(t, 1, *f.ExitCode)
			},
		},
		{
			name:    "blank command",
			config:  map[string]any{"command": " "},
			message: "command is required",
			kind:    "ValidationError",
		},
		{
			name:    "unknown sandbox",
			config:  map[string]any{"command": "ls", "sandboxType": "vm"},
			message: `unknown sandbox type "vm"`,
			kind:    "ValidationError",
		},
		{
			name:    "remote without token",
			config:  map[string]any{"command": "ls", "sandboxType": "remote"},
			message: "an access token is required for the remote-full sandbox",
			kind:    "ConfigurationError",
			check: func(t *testing.T, f *domain.Failure) {
				assert.Equal(t, "remote-full", f.SandboxType)
				assert.Nil(t, f.ExitCode)
			},
		},
		{
			name:    "undecodable input",
			config:  map[string]any{"command": map[string]any{"argv": "ls"}},
			message: "invalid step input",
			kind:    "ValidationError",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, provider := newManager(nil)
			res := steps.NewCommandStep(mgr).Execute(context.Background(), steps.Invocation{}, tt.config)

			require.False(t, res.Success)
			require.NotNil(t, res.Error)
			assert.Nil(t, res.Data)
			assert.Contains(t, res.Error.Message, tt.message)
			assert.Equal(t, tt.kind, res.Error.Kind)
			assert.Zero(t, provider.CallCount())
			if tt.check != nil {
				tt.check(t, res.Error)
			}
		})
	}
}

func TestCommandStep_RemoteReleasesOnce(t *testing.T) {
	handle := scriptedHandle(domain.CommandResult{ExitCode: 2, Stderr: "make: *** no rule\n"})
	mgr, provider := newManager(handle)

	res := steps.NewCommandStep(mgr).Run(context.Background(), steps.CommandInput{
		Command: "make test", SandboxType: "remote-full", Token: claimsToken,
	})
	require.False(t, res.Success)
	assert.Equal(t, "make: *** no rule\n", res.Error.Stderr)
	assert.Equal(t, "remote-full", res.Error.SandboxType)
	assert.Equal(t, 1, provider.CallCount())
	assert.Equal(t, 1, handle.Stops())
}

// panickingClient blows up mid-loop.
type panickingClient struct{}

func (panickingClient) Invoke(ctx context.Context, req ports.ModelRequest) (ports.ModelResponse, error) {
	panic("model client exploded")
}

type textModel struct{ text string }

func (m textModel) Generate(ctx context.Context, req ports.TurnRequest) (ports.TurnResponse, error) {
	return ports.TurnResponse{Text: m.text}, nil
}

func TestAgentStep(t *testing.T) {
	t.Run("plain text answer", func(t *testing.T) {
		mgr, _ := newManager(nil)
		runner := toolloop.NewRunner(toolloop.NewStepLoop(textModel{"  all done \n"}))

		res := steps.NewAgentStep(mgr, runner).Execute(context.Background(), steps.Invocation{}, map[string]any{
			"prompt": "list files", "maxSteps": "3",
		})
		require.True(t, res.Success)
		assert.Equal(t, map[string]any{"text": "all done", "stepsUsed": 1}, res.Data)
	})

	t.Run("json answer", func(t *testing.T) {
		mgr, _ := newManager(nil)
		runner := toolloop.NewRunner(toolloop.NewStepLoop(textModel{`{"files":["README.md"]}`}))

		res := steps.NewAgentStep(mgr, runner).Run(context.Background(), steps.AgentInput{Prompt: "list files"})
		require.True(t, res.Success)
		assert.Equal(t, map[string]any{"files": []any{"README.md"}}, res.Data)
	})

	t.Run("blank prompt provisions nothing", func(t *testing.T) {
		handle := scriptedHandle(domain.CommandResult{})
		mgr, provider := newManager(handle)
		runner := toolloop.NewRunner(panickingClient{})

		res := steps.NewAgentStep(mgr, runner).Run(context.Background(), steps.AgentInput{SandboxType: "remote", Token: claimsToken})
		require.False(t, res.Success)
		assert.Equal(t, "ToolLoopError", res.Error.Kind)
		assert.Equal(t, "prompt is required", res.Error.Message)
		assert.Zero(t, provider.CallCount())
	})

	t.Run("panic still releases the session", func(t *testing.T) {
		handle := scriptedHandle(domain.CommandResult{})
		mgr, _ := newManager(handle)
		logger, logs := testutils.CaptureLogger()
		runner := toolloop.NewRunner(panickingClient{})

		res := steps.NewAgentStep(mgr, runner, steps.WithLogger(logger)).Run(context.Background(), steps.AgentInput{
			Prompt: "go", SandboxType: "remote", Token: claimsToken,
		})
		require.False(t, res.Success)
		assert.Contains(t, res.Error.Message, "model client exploded")
		assert.Equal(t, 1, handle.Stops())
		assert.Contains(t, logs.String(), "step panicked")
	})
}

type syncEngine struct{ recorder *records.Recorder }

func (e syncEngine) Start(ctx context.Context, req ports.StartRequest) (ports.ExecutionHandle, error) {
	return e, e.recorder.Succeed(ctx, req.ExecutionID, map[string]any{"echo": req.Input["msg"]})
}

func (e syncEngine) Wait(ctx context.Context) error { return nil }

func TestRunWorkflowStep(t *testing.T) {
	workflows, err := memory.NewWorkflowStore(
		&domain.Workflow{ID: "child", OwnerID: "alice"},
		&domain.Workflow{ID: "loop", OwnerID: "alice"},
	)
	require.NoError(t, err)
	recorder := records.NewRecorder(memory.NewStore())
	ctrl := nested.NewController(workflows, nil, syncEngine{recorder}, recorder)
	step := steps.NewRunWorkflowStep(ctrl)
	inv := steps.Invocation{UserID: "alice", WorkflowID: "loop"}

	t.Run("success", func(t *testing.T) {
		res := step.Execute(context.Background(), inv, map[string]any{"workflowId": "child", "input": map[string]any{"msg": "hi"}})
		require.True(t, res.Success, "%+v", res.Error)
		data := res.Data.(map[string]any)
		assert.Equal(t, "child", data["workflowId"])
		assert.NotEmpty(t, data["executionId"])
		assert.Equal(t, map[string]any{"echo": "hi"}, data["output"])
	})

	t.Run("cycle", func(t *testing.T) {
		res := step.Execute(context.Background(), inv, map[string]any{"workflowId": "loop"})
		require.False(t, res.Success)
		assert.Equal(t, "CycleDetected", res.Error.Kind)
	})

	t.Run("missing id", func(t *testing.T) {
		res := step.Execute(context.Background(), inv, map[string]any{})
		require.False(t, res.Success)
		assert.Equal(t, "workflowId is required", res.Error.Message)
	})
}

func TestSet(t *testing.T) {
	mgr, _ := newManager(nil)
	set := steps.NewSet(steps.NewCommandStep(mgr))
	assert.Equal(t, []string{domain.NodeCommand}, set.Names())

	res := set.Execute(context.Background(), "deploy", steps.Invocation{}, nil)
	require.False(t, res.Success)
	assert.Equal(t, "ValidationError", res.Error.Kind)
}

func TestSteps_DecodeFailuresAreObserved(t *testing.T) {
	mgr, _ := newManager(nil)
	bad := map[string]any{"nested": true}

	tests := []struct {
		name   string
		step   func(m *observability.Metrics) steps.Step
		config map[string]any
	}{
		{"command", func(m *observability.Metrics) steps.Step {
			return steps.NewCommandStep(mgr, steps.WithMetrics(m))
		}, map[string]any{"command": bad}},
		{"agent", func(m *observability.Metrics) steps.Step {
			return steps.NewAgentStep(mgr, nil, steps.WithMetrics(m))
		}, map[string]any{"prompt": bad}},
		{"run_workflow", func(m *observability.Metrics) steps.Step {
			return steps.NewRunWorkflowStep(nil, steps.WithMetrics(m))
		}, map[string]any{"workflowId": bad}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := observability.NewMetrics(nil)
			res := tt.step(metrics).Execute(context.Background(), steps.Invocation{UserID: "alice"}, tt.config)
			require.False(t, res.Success)
			assert.Equal(t, "ValidationError", res.Error.Kind)
			assert.Equal(t, 1, testutil.CollectAndCount(metrics.StepDuration), "decode failure must be observed")
		})
	}
}

type panicEngine struct{}

func (panicEngine) Start(ctx context.Context, req ports.StartRequest) (ports.ExecutionHandle, error) {
	panic("engine blew up")
}

func TestRunWorkflowStep_PanicClosesChildRecord(t *testing.T) {
	workflows, err := memory.NewWorkflowStore(&domain.Workflow{ID: "child", OwnerID: "alice"})
	require.NoError(t, err)
	store := memory.NewStore()
	recorder := records.NewRecorder(store)
	step := steps.NewRunWorkflowStep(nested.NewController(workflows, nil, panicEngine{}, recorder))

	res := step.Execute(context.Background(), steps.Invocation{UserID: "alice"}, map[string]any{"workflowId": "child"})
	require.False(t, res.Success)
	assert.Equal(t, "step run_workflow panicked: engine blew up", res.Error.Message)

	running, err := store.List(context.Background(), domain.ExecutionFilter{Status: domain.StatusRunning})
	require.NoError(t, err)
	assert.Empty(t, running)

	failed, err := store.List(context.Background(), domain.ExecutionFilter{Status: domain.StatusError})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "child execution panicked: engine blew up", failed[0].Error)
}
