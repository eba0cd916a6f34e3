// Package tasks runs ingest and index jobs on a bounded worker pool with
// durable state.
//
// Every job transition is persisted before and after execution, so a crashed
// worker can be recovered by requeueing the jobs it left behind. Handlers
// re-derive their work from storage, which makes the resulting at-least-once
// execution safe. Transient failures are retried with a per-type policy;
// input errors fail immediately.
package tasks
