package loam

import (
	"github.com/aretw0/relay/pkg/domain"
)

// WorkflowMetadata is the frontmatter of a workflow document. The document
// body is used as the description when none is set explicitly.
type WorkflowMetadata struct {
	ID          string         `json:"id" mapstructure:"id"`
	OwnerID     string         `json:"owner_id" mapstructure:"owner_id"`
	Name        string         `json:"name" mapstructure:"name"`
	Description string         `json:"description,omitempty" mapstructure:"description"`
	Nodes       []NodeMetadata `json:"nodes" mapstructure:"nodes"`
	Edges       []EdgeMetadata `json:"edges,omitempty" mapstructure:"edges"`
}

type NodeMetadata struct {
	ID          string         `json:"id" mapstructure:"id"`
	Type        string         `json:"type" mapstructure:"type"`
	Name        string         `json:"name,omitempty" mapstructure:"name"`
	Integration string         `json:"integration,omitempty" mapstructure:"integration"`
	Config      map[string]any `json:"config,omitempty" mapstructure:"config"`
}

type EdgeMetadata struct {
	From string `json:"from" mapstructure:"from"`
	To   string `json:"to" mapstructure:"to"`
}

func (m WorkflowMetadata) toDomain(docID, content string) *domain.Workflow {
	wf := &domain.Workflow{
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		Name:        m.Name,
		Description: m.Description,
		Nodes:       make([]domain.Node, 0, len(m.Nodes)),
		Edges:       make([]domain.Edge, 0, len(m.Edges)),
	}
	if wf.ID == "" {
		wf.ID = trimExtension(docID)
	}
	if wf.Description == "" {
		wf.Description = content
	}
	for _, n := range m.Nodes {
		wf.Nodes = append(wf.Nodes, domain.Node{
			ID:          n.ID,
			Type:        n.Type,
			Name:        n.Name,
			Integration: n.Integration,
			Config:      n.Config,
		})
	}
	for _, e := range m.Edges {
		wf.Edges = append(wf.Edges, domain.Edge{From: e.From, To: e.To})
	}
	return wf
}

func fromDomain(wf *domain.Workflow) WorkflowMetadata {
	m := WorkflowMetadata{
		ID:      wf.ID,
		OwnerID: wf.OwnerID,
		Name:    wf.Name,
		Nodes:   make([]NodeMetadata, 0, len(wf.Nodes)),
	}
	for _, n := range wf.Nodes {
		m.Nodes = append(m.Nodes, NodeMetadata{
			ID:          n.ID,
			Type:        n.Type,
			Name:        n.Name,
			Integration: n.Integration,
			Config:      n.Config,
		})
	}
	for _, e := range wf.Edges {
		m.Edges = append(m.Edges, EdgeMetadata{From: e.From, To: e.To})
	}
	return m
}
