/*
Package observability exposes Prometheus metrics for sandbox sessions, tool
loops, child executions and step invocations.

All recording methods are safe on a nil *Metrics, so components can take an
optional metrics sink without guarding every call.
*/
package observability
