package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/relay/internal/presentation/graph"
	"github.com/aretw0/relay/pkg/domain"
)

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name        string
		wf          *domain.Workflow
		overlay     *graph.Overlay
		contains    []string
		notContains []string
	}{
		{
			name: "Shapes By Step Type",
			wf: &domain.Workflow{Nodes: []domain.Node{
				{ID: "build", Type: domain.NodeCommand},
				{ID: "review", Type: domain.NodeAgent, Integration: "github"},
				{ID: "ship-it", Type: domain.NodeRunWorkflow, Config: map[string]any{"workflowId": "release"}},
			}},
			contains: []string{
				"build[\"build\"]",
				"review[[\"review <br/> github\"]]",
				"ship_it[/\"ship-it\"/]",
				"wf_release((\"release\"))",
				"ship_it -.-> wf_release",
			},
		},
		{
			name: "Edges",
			wf: &domain.Workflow{
				Nodes: []domain.Node{{ID: "a.b", Type: domain.NodeCommand}, {ID: "c", Type: domain.NodeCommand}},
				Edges: []domain.Edge{{From: "a.b", To: "c"}},
			},
			contains:    []string{"a_b --> c"},
			notContains: []string{"classDef"},
		},
		{
			name: "Shared Child Drawn Once",
			wf: &domain.Workflow{Nodes: []domain.Node{
				{ID: "one", Type: domain.NodeRunWorkflow, Config: map[string]any{"workflowId": "x"}},
				{ID: "two", Type: domain.NodeRunWorkflow, Config: map[string]any{"workflowId": "x"}},
			}},
			contains: []string{"one -.-> wf_x", "two -.-> wf_x"},
		},
		{
			name: "Overlay",
			wf: &domain.Workflow{Nodes: []domain.Node{
				{ID: "a", Type: domain.NodeCommand}, {ID: "b", Type: domain.NodeCommand},
			}},
			overlay: &graph.Overlay{Completed: []string{"a", "a"}, Failed: "b"},
			contains: []string{
				"classDef completed",
				"class a completed;",
				"class b failed;",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := graph.GenerateMermaid(tt.wf, tt.overlay)
			if !strings.HasPrefix(got, "graph TD\n") {
				t.Errorf("Expected 'graph TD' header, got:\n%s", got)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Expected output to contain %q, got:\n%s", want, got)
				}
			}
			for _, unwanted := range tt.notContains {
				if strings.Contains(got, unwanted) {
					t.Errorf("Expected output NOT to contain %q, got:\n%s", unwanted, got)
				}
			}
			if strings.Count(got, "class a completed;") > 1 {
				t.Errorf("Expected completed nodes to be deduplicated, got:\n%s", got)
			}
			if strings.Count(got, "wf_x((") > 1 {
				t.Errorf("Expected shared child to be drawn once, got:\n%s", got)
			}
		})
	}
}

func TestOverlayFor(t *testing.T) {
	wf := &domain.Workflow{Nodes: []domain.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}}}

	ok := graph.OverlayFor(wf, &domain.ExecutionRecord{
		Status: domain.StatusSuccess,
		Output: map[string]any{"a": 1, "b": 2, "c": 3},
	})
	if strings.Join(ok.Completed, ",") != "a,b,c" || ok.Failed != "" {
		t.Errorf("Unexpected overlay for success: %+v", ok)
	}

	failed := graph.OverlayFor(wf, &domain.ExecutionRecord{
		Status: domain.StatusError,
		Error:  "node b: command exited with code 1",
	})
	if strings.Join(failed.Completed, ",") != "a" || failed.Failed != "b" {
		t.Errorf("Unexpected overlay for failure: %+v", failed)
	}

	running := graph.OverlayFor(wf, &domain.ExecutionRecord{Status: domain.StatusRunning})
	if len(running.Completed) != 0 || running.Failed != "" {
		t.Errorf("Unexpected overlay for running record: %+v", running)
	}
}
