package domain

// Node types understood by the step executors.
const (
	NodeCommand     = "command"
	NodeAgent       = "agent"
	NodeRunWorkflow = "run_workflow"
)

// Workflow is a user-owned definition made of nodes and edges.
type Workflow struct {
	ID          string `json:"id" yaml:"id" mapstructure:"id"`
	OwnerID     string `json:"ownerId" yaml:"owner_id" mapstructure:"owner_id"`
	Name        string `json:"name" yaml:"name" mapstructure:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Nodes       []Node `json:"nodes" yaml:"nodes" mapstructure:"nodes"`
	Edges       []Edge `json:"edges,omitempty" yaml:"edges,omitempty" mapstructure:"edges"`
}

// Node is one step of a workflow. Config holds the step input and is decoded by
// the executor for Type. Integration names an external service the node needs
// credentials for.
type Node struct {
	ID          string         `json:"id" yaml:"id" mapstructure:"id"`
	Type        string         `json:"type" yaml:"type" mapstructure:"type"`
	Name        string         `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	Integration string         `json:"integration,omitempty" yaml:"integration,omitempty" mapstructure:"integration"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty" mapstructure:"config"`
}

type Edge struct {
	From string `json:"from" yaml:"from" mapstructure:"from"`
	To   string `json:"to" yaml:"to" mapstructure:"to"`
}
