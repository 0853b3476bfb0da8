// Package services defines shared utilities consumed by the batch
// orchestrator and the external profiler integrations.
//
// Key responsibilities:
//   - Context helpers that stamp work-item IDs, stage names, and run
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent batch outcomes (fatal abort vs item-level failure).
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error classification, observability, restart semantics) stays uniform
// across the pipeline.
package services
