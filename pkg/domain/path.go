package domain

import (
	"encoding/json"
	"slices"
)

// MaxPathDepth is the hard ceiling on the length of an execution path.
const MaxPathDepth = 10

// ExecutionPath is the ordered chain of workflow ids from the root invocation to
// the current one. It is immutable: Extend returns a new path.
type ExecutionPath struct {
	ids []string
}

// DeepCopy lets record clones keep a path stored by value in an input map.
func (p ExecutionPath) DeepCopy() interface{} {
	return NewExecutionPath(p.ids...)
}

// NewExecutionPath builds a path from ids. The input slice is copied.
func NewExecutionPath(ids ...string) ExecutionPath {
	return ExecutionPath{ids: slices.Clone(ids)}
}

// IDs returns a copy of the workflow ids, root first.
func (p ExecutionPath) IDs() []string {
	return slices.Clone(p.ids)
}

func (p ExecutionPath) Len() int {
	return len(p.ids)
}

func (p ExecutionPath) Contains(workflowID string) bool {
	return slices.Contains(p.ids, workflowID)
}

// Last returns the innermost workflow id, or "" for an empty path.
func (p ExecutionPath) Last() string {
	if len(p.ids) == 0 {
		return ""
	}
	return p.ids[len(p.ids)-1]
}

// Extend appends target and validates the result. It fails with CycleDetected
// when target is already on the path and DepthExceeded when the new path would
// be longer than MaxPathDepth.
func (p ExecutionPath) Extend(target string) (ExecutionPath, error) {
	if p.Contains(target) {
		return ExecutionPath{}, CycleDetected(target)
	}
	if len(p.ids)+1 > MaxPathDepth {
		return ExecutionPath{}, DepthExceeded(MaxPathDepth)
	}
	next := make([]string, len(p.ids), len(p.ids)+1)
	copy(next, p.ids)
	return ExecutionPath{ids: append(next, target)}, nil
}

func (p ExecutionPath) MarshalJSON() ([]byte, error) {
	if p.ids == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.ids)
}

func (p *ExecutionPath) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	p.ids = ids
	return nil
}
