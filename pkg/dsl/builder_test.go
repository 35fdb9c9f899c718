package dsl

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/relay/pkg/domain"
)

func TestBuilder_Workflow(t *testing.T) {
	b := New("release", "ada").Name("Release")

	b.Command("build", "make").Go("review")

	b.Agent("review", "list risky changes").
		MaxSteps(4).
		Sandbox("remote").
		Token("${token}").
		Go("notify")

	b.RunWorkflow("notify", "announce").
		Input(map[string]any{"channel": "releases"}).
		Integration("slack")

	wf, err := b.Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if wf.ID != "release" || wf.OwnerID != "ada" || wf.Name != "Release" {
		t.Errorf("Unexpected header: %+v", wf)
	}
	if len(wf.Nodes) != 3 {
		t.Fatalf("Expected 3 nodes, got %d", len(wf.Nodes))
	}

	wantTypes := []string{domain.NodeCommand, domain.NodeAgent, domain.NodeRunWorkflow}
	for i, n := range wf.Nodes {
		if n.Type != wantTypes[i] {
			t.Errorf("Node %d: expected type %s, got %s", i, wantTypes[i], n.Type)
		}
	}

	review := wf.Nodes[1]
	if review.Config["prompt"] != "list risky changes" || review.Config["maxSteps"] != 4 || review.Config["token"] != "${token}" {
		t.Errorf("Unexpected agent config: %v", review.Config)
	}
	if wf.Nodes[2].Integration != "slack" {
		t.Errorf("Expected integration slack, got %q", wf.Nodes[2].Integration)
	}

	wantEdges := []domain.Edge{{From: "build", To: "review"}, {From: "review", To: "notify"}}
	if len(wf.Edges) != len(wantEdges) {
		t.Fatalf("Expected edges %v, got %v", wantEdges, wf.Edges)
	}
	for i, e := range wantEdges {
		if wf.Edges[i] != e {
			t.Errorf("Edge %d: expected %v, got %v", i, e, wf.Edges[i])
		}
	}
}

func TestBuilder_AddReusesNode(t *testing.T) {
	b := New("wf", "ada")
	b.Add("x", domain.NodeCommand).Set("command", "true")
	b.Add("x", domain.NodeAgent).Set("prompt", "go")

	wf, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if len(wf.Nodes) != 1 {
		t.Fatalf("Expected 1 node, got %d", len(wf.Nodes))
	}
	if wf.Nodes[0].Type != domain.NodeAgent || wf.Nodes[0].Config["command"] != "true" {
		t.Errorf("Unexpected node: %+v", wf.Nodes[0])
	}
}

func TestBuilder_Errors(t *testing.T) {
	b := New("wf", "ada")
	b.Command("a", "true").Go("ghost")
	if _, err := b.Build(); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Expected a validation error for the dangling edge, got %v", err)
	}

	if _, err := New("", "ada").Build(); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Expected a validation error for the missing id, got %v", err)
	}
}

func TestBuilder_Store(t *testing.T) {
	b := New("hello", "ada")
	b.Command("say", "echo hi")

	store, err := b.Store()
	if err != nil {
		t.Fatalf("Store() failed: %v", err)
	}
	wf, err := store.Find(context.Background(), "hello", "ada")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if wf.Nodes[0].Config["command"] != "echo hi" {
		t.Errorf("Unexpected node config: %v", wf.Nodes[0].Config)
	}
}
