/*
Package domain contains the core models of relay.

It defines the entities shared by the nested-workflow controller and the sandbox
session manager. The package is pure: no I/O, no persistence.

# Key Entities

  - ExecutionPath: immutable ancestor chain of workflow ids, capped at MaxPathDepth.
  - ExecutionRecord: audit row of one workflow run (running, then success or error).
  - RunWorkflowMeta: envelope carried inside a child's input with the ancestor path.
  - BearerCredential: team/project identity for remote sandboxes.
  - Result: tagged success/failure union returned by every step.
  - Error: classified failure (ConfigurationError, CycleDetected, ToolLoopError, ...).
*/
package domain
