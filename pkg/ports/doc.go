/*
Package ports defines the driven ports (interfaces) of relay.

These interfaces decouple the controller and the sandbox manager from the
storage backends, execution engines, sandbox providers and model clients they
consume.

# Key Interfaces

  - ExecutionStore: create/find/update of execution records.
  - WorkflowStore: owner-scoped lookup of workflow definitions.
  - IntegrationValidator: pre-flight check of a workflow's integrations.
  - ExecutionEngine: asynchronous launch with an awaitable handle.
  - RemoteProvider / LocalProvider: sandbox provisioning.
  - ModelClient / LanguageModel: tool-calling conversations.
  - DistributedLocker: cross-replica locking for record writes.
*/
package ports
