package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeMeta_DoesNotMutatePayload(t *testing.T) {
	payload := map[string]any{"name": "report"}
	meta := RunWorkflowMeta{
		Path:              NewExecutionPath("parent", "child"),
		ParentExecutionID: "exec-1",
		ParentWorkflowID:  "parent",
	}

	input := MergeMeta(payload, meta)

	assert.NotContains(t, payload, RunWorkflowMetaKey)
	assert.Equal(t, "report", input["name"])
	assert.Contains(t, input, RunWorkflowMetaKey)
}

func TestMetaFromInput(t *testing.T) {
	meta := RunWorkflowMeta{
		Path:              NewExecutionPath("a", "b"),
		ParentExecutionID: "exec-1",
		ParentWorkflowID:  "a",
	}

	t.Run("in-memory envelope", func(t *testing.T) {
		got, ok := MetaFromInput(MergeMeta(nil, meta))
		require.True(t, ok)
		assert.Equal(t, []string{"a", "b"}, got.Path.IDs())
		assert.Equal(t, "exec-1", got.ParentExecutionID)
	})

	t.Run("after JSON round trip", func(t *testing.T) {
		data, err := json.Marshal(MergeMeta(map[string]any{"x": 1}, meta))
		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))

		got, ok := MetaFromInput(decoded)
		require.True(t, ok)
		assert.Equal(t, []string{"a", "b"}, got.Path.IDs())
		assert.Equal(t, "a", got.ParentWorkflowID)
	})

	t.Run("struct value", func(t *testing.T) {
		got, ok := MetaFromInput(map[string]any{RunWorkflowMetaKey: meta})
		require.True(t, ok)
		assert.Equal(t, meta.Path.IDs(), got.Path.IDs())
	})

	t.Run("absent or malformed", func(t *testing.T) {
		for _, input := range []map[string]any{
			nil,
			{},
			{RunWorkflowMetaKey: "garbage"},
			{RunWorkflowMetaKey: map[string]any{"path": []any{}}},
		} {
			_, ok := MetaFromInput(input)
			assert.False(t, ok, "input %v", input)
		}
	})
}

func TestExecutionUpdate_Apply(t *testing.T) {
	rec := &ExecutionRecord{ID: "1", Status: StatusRunning, Output: "keep"}
	msg := "boom"
	now := time.Now()

	ExecutionUpdate{Status: StatusError, Error: &msg, CompletedAt: &now}.Apply(rec)

	assert.Equal(t, StatusError, rec.Status)
	assert.Equal(t, "boom", rec.Error)
	assert.Equal(t, "keep", rec.Output)
	require.NotNil(t, rec.CompletedAt)
	assert.True(t, rec.Status.Terminal())
}

func TestError_KindMatching(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ConfigurationError("token is required"))

	assert.ErrorIs(t, err, ErrConfiguration)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, "ConfigurationError", KindName(err))
	assert.ErrorIs(t, ErrWorkflowNotFound, ErrNotFound)
	assert.Equal(t, "NotFoundError", KindName(ErrExecutionNotFound))
	assert.Equal(t, "", KindName(errors.New("plain")))
}

func TestFail_CommandContext(t *testing.T) {
	code := 2
	res := Fail(&CommandError{
		Command:     "ls /missing",
		SandboxType: "local-simulated",
		Stderr:      "no such file",
		ExitCode:    &code,
	})

	require.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, "command exited with code 2", res.Error.Message)
	assert.Equal(t, "ls /missing", res.Error.Command)
	assert.Equal(t, 2, *res.Error.ExitCode)
	assert.Nil(t, res.Data)
}
