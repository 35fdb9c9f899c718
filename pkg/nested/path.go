package nested

import "github.com/aretw0/relay/pkg/domain"

// ParentPath recovers the ancestor path of a running execution. It prefers
// the envelope stored in the record input and falls back to a single-entry
// path holding the record's own workflow id.
func ParentPath(parent *domain.ExecutionRecord) domain.ExecutionPath {
	if parent == nil {
		return domain.NewExecutionPath()
	}
	if meta, ok := domain.MetaFromInput(parent.Input); ok {
		return meta.Path
	}
	if parent.WorkflowID == "" {
		return domain.NewExecutionPath()
	}
	return domain.NewExecutionPath(parent.WorkflowID)
}

// ChildPath extends the parent path with target.
func ChildPath(parent domain.ExecutionPath, target string) (domain.ExecutionPath, error) {
	return parent.Extend(target)
}
