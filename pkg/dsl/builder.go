package dsl

import (
	"github.com/aretw0/relay/pkg/adapters/memory"
	"github.com/aretw0/relay/pkg/domain"
)

// Builder manages the workflow construction. Nodes keep the order in which
// they were first added.
type Builder struct {
	wf    domain.Workflow
	nodes []*NodeBuilder
	index map[string]*NodeBuilder
}

// New creates a builder for workflow id owned by ownerID.
func New(id, ownerID string) *Builder {
	return &Builder{
		wf:    domain.Workflow{ID: id, OwnerID: ownerID},
		index: make(map[string]*NodeBuilder),
	}
}

// Name sets the display name.
func (b *Builder) Name(name string) *Builder {
	b.wf.Name = name
	return b
}

// Description sets the description.
func (b *Builder) Description(text string) *Builder {
	b.wf.Description = text
	return b
}

// Add creates a node of type typ. If the node already exists, it returns the
// existing builder with its type replaced.
func (b *Builder) Add(id, typ string) *NodeBuilder {
	if nb, ok := b.index[id]; ok {
		nb.node.Type = typ
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.Node{ID: id, Type: typ, Config: map[string]any{}},
		builder: b,
	}
	b.nodes = append(b.nodes, nb)
	b.index[id] = nb
	return nb
}

// Command adds a command node running cmd.
func (b *Builder) Command(id, cmd string) *NodeBuilder {
	return b.Add(id, domain.NodeCommand).Set("command", cmd)
}

// Agent adds an agent node working on prompt.
func (b *Builder) Agent(id, prompt string) *NodeBuilder {
	return b.Add(id, domain.NodeAgent).Set("prompt", prompt)
}

// RunWorkflow adds a node running workflowID as a child execution.
func (b *Builder) RunWorkflow(id, workflowID string) *NodeBuilder {
	return b.Add(id, domain.NodeRunWorkflow).Set("workflowId", workflowID)
}

// Build returns the workflow. Edges must connect nodes that were added.
func (b *Builder) Build() (*domain.Workflow, error) {
	if b.wf.ID == "" {
		return nil, domain.ValidationError("workflow id is required")
	}

	wf := b.wf
	wf.Nodes = make([]domain.Node, 0, len(b.nodes))
	wf.Edges = nil
	for _, nb := range b.nodes {
		wf.Nodes = append(wf.Nodes, nb.node)
		for _, to := range nb.next {
			if _, ok := b.index[to]; !ok {
				return nil, domain.ValidationError("edge %s -> %s points to an unknown node", nb.node.ID, to)
			}
			wf.Edges = append(wf.Edges, domain.Edge{From: nb.node.ID, To: to})
		}
	}
	return &wf, nil
}

// Store builds the workflow into a fresh in-memory store.
func (b *Builder) Store() (*memory.WorkflowStore, error) {
	wf, err := b.Build()
	if err != nil {
		return nil, err
	}
	return memory.NewWorkflowStore(wf)
}
