/*
Package dsl builds workflows in Go instead of Markdown documents.

It is useful for tests, for workflows generated at runtime and for embedding
relay as a library:

	b := dsl.New("release", "ada").Name("Release")

	b.Command("build", "go build ./...").Go("review")

	b.Agent("review", "Read the diff and list risky changes as JSON.").
		MaxSteps(8).
		Go("notify")

	b.RunWorkflow("notify", "announce").
		Input(map[string]any{"channel": "releases"}).
		Integration("slack")

	wf, err := b.Build()
	// ... or b.Store() for a ready ports.WorkflowStore
*/
package dsl
