/*
Package relay runs workflow steps inside sandboxed shell sessions.

It provides three step executors:

  - command: runs a single shell command in a local or remote sandbox session.
  - agent: drives a bounded tool-calling conversation with a language model
    whose tools operate on a sandbox session.
  - run_workflow: runs another workflow as a child of the current execution
    and waits for its terminal state.

Nested invocations carry their ancestor path inside the child's input, so a
workflow that would call itself (directly or through other workflows) fails
with CycleDetected and overly deep chains fail with DepthExceeded, before any
execution record is created.

# Usage

	r, err := relay.New(
		relay.WithWorkflowStore(workflows),
		relay.WithModel(model, "claude-sonnet-4"),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()

	res := r.RunCommand(ctx, steps.CommandInput{Command: "ls -la"})
	if !res.Success {
		log.Printf("%s: %s", res.Error.Kind, res.Error.Message)
	}

Step executors never return Go errors: every outcome is a domain.Result with
either Data or a structured Failure. Lower layers return errors that match the
domain.Err* kinds through errors.Is.

# Persistence

Execution records live behind ports.ExecutionStore. Adapters exist for memory,
JSON files, SQLite and Redis; pkg/persistence/middleware adds secret masking
and envelope encryption on top of any of them. Workflow definitions are read
through ports.WorkflowStore, usually a directory of Markdown files with YAML
frontmatter (pkg/adapters/loam).
*/
package relay
