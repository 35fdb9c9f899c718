package dsl

import "github.com/aretw0/relay/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.Node
	next    []string
	builder *Builder
}

// Set stores one config value.
func (n *NodeBuilder) Set(key string, value any) *NodeBuilder {
	n.node.Config[key] = value
	return n
}

// Name sets the display name.
func (n *NodeBuilder) Name(name string) *NodeBuilder {
	n.node.Name = name
	return n
}

// Integration names the external service the node needs to be connected.
func (n *NodeBuilder) Integration(name string) *NodeBuilder {
	n.node.Integration = name
	return n
}

// Sandbox picks the sandbox kind for command and agent nodes.
func (n *NodeBuilder) Sandbox(kind string) *NodeBuilder {
	return n.Set("sandboxType", kind)
}

// Token sets the bearer token for remote sandboxes. It usually is a
// ${placeholder} resolved from the execution input.
func (n *NodeBuilder) Token(token string) *NodeBuilder {
	return n.Set("token", token)
}

// MaxSteps sets the agent step ceiling.
func (n *NodeBuilder) MaxSteps(steps int) *NodeBuilder {
	return n.Set("maxSteps", steps)
}

// Instructions sets the agent system instructions.
func (n *NodeBuilder) Instructions(text string) *NodeBuilder {
	return n.Set("instructions", text)
}

// Model selects the agent model.
func (n *NodeBuilder) Model(id string) *NodeBuilder {
	return n.Set("model", id)
}

// Input sets the input passed to a child workflow.
func (n *NodeBuilder) Input(input map[string]any) *NodeBuilder {
	return n.Set("input", input)
}

// Go adds an edge to target. The target may be added later.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	n.next = append(n.next, target)
	return n
}

// Build returns the underlying domain.Node.
func (n *NodeBuilder) Build() domain.Node {
	return n.node
}
