package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/relay/pkg/domain"
)

// Overlay marks the nodes of one execution on the graph.
type Overlay struct {
	Completed []string
	Failed    string
}

// GenerateMermaid produces a Mermaid flowchart for a workflow.
// Node shapes follow the step type:
// - command: [Rectangle]
// - agent: [[Subroutine]]
// - run_workflow: [/Parallelogram/], with a dotted link to the child workflow
// Unknown types are drawn as rectangles.
func GenerateMermaid(wf *domain.Workflow, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	var children []string
	for _, node := range wf.Nodes {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch node.Type {
		case domain.NodeAgent:
			opener, closer = "[[", "]]"
		case domain.NodeRunWorkflow:
			opener, closer = "[/", "/]"
		}

		label := node.ID
		if node.Integration != "" {
			label = fmt.Sprintf("%s <br/> %s", node.ID, node.Integration)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, escape(label), closer)

		if node.Type == domain.NodeRunWorkflow {
			if target, _ := node.Config["workflowId"].(string); target != "" {
				childID := "wf_" + sanitizeMermaidID(target)
				if !slices.Contains(children, childID) {
					children = append(children, childID)
					fmt.Fprintf(&sb, "    %s((\"%s\"))\n", childID, escape(target))
				}
				fmt.Fprintf(&sb, "    %s -.-> %s\n", safeID, childID)
			}
		}
	}

	for _, e := range wf.Edges {
		fmt.Fprintf(&sb, "    %s --> %s\n", sanitizeMermaidID(e.From), sanitizeMermaidID(e.To))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef completed fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffebee,stroke:#c62828,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Completed {
			safeID := sanitizeMermaidID(id)
			if safeID != "" && !seen[safeID] {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s completed;\n", safeID)
			}
		}
		if overlay.Failed != "" {
			fmt.Fprintf(&sb, "    class %s failed;\n", sanitizeMermaidID(overlay.Failed))
		}
	}

	return sb.String()
}

// OverlayFor derives an overlay from a terminal record of wf. Completed nodes
// are the keys of a successful output; a failed record marks the node named
// in its "node <id>: ..." message.
func OverlayFor(wf *domain.Workflow, rec *domain.ExecutionRecord) *Overlay {
	o := &Overlay{}
	if out, ok := rec.Output.(map[string]any); ok {
		for _, n := range wf.Nodes {
			if _, done := out[n.ID]; done {
				o.Completed = append(o.Completed, n.ID)
			}
		}
	}
	if rec.Status == domain.StatusError {
		rest, ok := strings.CutPrefix(rec.Error, "node ")
		if id, _, found := strings.Cut(rest, ":"); ok && found {
			o.Failed = id
			for _, n := range wf.Nodes {
				if n.ID == id {
					break
				}
				o.Completed = append(o.Completed, n.ID)
			}
		}
	}
	return o
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
}
