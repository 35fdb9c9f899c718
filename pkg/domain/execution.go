package domain

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/mohae/deepcopy"
)

// ExecutionStatus is the lifecycle state of an execution record.
type ExecutionStatus string

const (
	StatusRunning ExecutionStatus = "running"
	StatusSuccess ExecutionStatus = "success"
	StatusError   ExecutionStatus = "error"
)

// Terminal reports whether no further transition is allowed from s.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// ExecutionRecord is the persisted audit row of one workflow run.
type ExecutionRecord struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflowId"`
	UserID      string          `json:"userId"`
	Status      ExecutionStatus `json:"status"`
	Input       map[string]any  `json:"input,omitempty"`
	Output      any             `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Clone returns a deep copy: nested input maps, the meta envelope and the
// output share nothing with r.
func (r *ExecutionRecord) Clone() *ExecutionRecord {
	cp := *r
	if r.Input != nil {
		cp.Input = deepcopy.Copy(r.Input).(map[string]any)
	}
	cp.Output = deepcopy.Copy(r.Output)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// ExecutionUpdate is the partial write applied by ExecutionStore.Update.
// Nil fields are left untouched.
type ExecutionUpdate struct {
	Status      ExecutionStatus `json:"status"`
	Output      any             `json:"output,omitempty"`
	Error       *string         `json:"error,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Apply writes u onto r.
func (u ExecutionUpdate) Apply(r *ExecutionRecord) {
	if u.Status != "" {
		r.Status = u.Status
	}
	if u.Output != nil {
		r.Output = u.Output
	}
	if u.Error != nil {
		r.Error = *u.Error
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		r.CompletedAt = &t
	}
}

// ExecutionFilter narrows ExecutionStore.List. Zero values match everything.
type ExecutionFilter struct {
	WorkflowID string
	Status     ExecutionStatus
	Limit      int
}

// Match reports whether r satisfies the filter (Limit is not considered).
func (f ExecutionFilter) Match(r *ExecutionRecord) bool {
	if f.WorkflowID != "" && r.WorkflowID != f.WorkflowID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// RunWorkflowMetaKey is the input key under which a child run carries its
// RunWorkflowMeta envelope.
const RunWorkflowMetaKey = "_runWorkflowMeta"

// RunWorkflowMeta travels by value inside a child execution's input and carries
// the ancestor path used for cycle detection.
type RunWorkflowMeta struct {
	Path              ExecutionPath `json:"path"`
	ParentExecutionID string        `json:"parentExecutionId"`
	ParentWorkflowID  string        `json:"parentWorkflowId"`
}

// Envelope renders the meta as a plain map so every store round-trips it the
// same way.
func (m RunWorkflowMeta) Envelope() map[string]any {
	return map[string]any{
		"path":              m.Path.IDs(),
		"parentExecutionId": m.ParentExecutionID,
		"parentWorkflowId":  m.ParentWorkflowID,
	}
}

// MergeMeta returns a copy of payload with the meta envelope attached.
func MergeMeta(payload map[string]any, meta RunWorkflowMeta) map[string]any {
	out := make(map[string]any, len(payload)+1)
	maps.Copy(out, payload)
	out[RunWorkflowMetaKey] = meta.Envelope()
	return out
}

// MetaFromInput recovers the envelope from a record input. ok is false when no
// well-formed envelope is present.
func MetaFromInput(input map[string]any) (meta RunWorkflowMeta, ok bool) {
	raw, found := input[RunWorkflowMetaKey]
	if !found || raw == nil {
		return RunWorkflowMeta{}, false
	}
	if m, isMeta := raw.(RunWorkflowMeta); isMeta {
		return m, true
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return RunWorkflowMeta{}, false
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return RunWorkflowMeta{}, false
	}
	if meta.Path.Len() == 0 {
		return RunWorkflowMeta{}, false
	}
	return meta, true
}
