// Package tasks migrates user-manager users between RouterOS devices with real-time progress reporting.
//
// # Building blocks
//
//  1. [ImportUsers] : one read of the source collection, all or nothing
//  2. [Replicate] : sequential per-record create on the target with per-item failure isolation
//
// Record construction between the two is [models.RecordsFromEntries]; the CSV artifact is written by
// the formatter package.
//
// # Migration Engine
//
// [MigrationEngine] composes the building blocks:
//
//  1. [MigrationEngine.Run] : source -> import -> export (best effort) -> target -> replicate
//     - Each session is closed as soon as its phase ends, and on every failure path
//     - Session and import failures stop the run; export failures do not
//     - With [RunOptions.Records] set, the source is not contacted (replay of an artifact)
//
//  2. [MigrationEngine.Export] : source -> import -> CSV artifact
//
//  3. [MigrationEngine.List] : read-only listing of either device
//
// # Progress Reporting
//
// All operations report progress over a channel that the caller must drain until the operation returns.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and an [ItemOutcome] per
// replicated record. Every update is delivered in order; a send only gives up when the context is done.
//
// # History and Metrics
//
// The optional [RunStore] (repositories.RunRepository) records each run and its per-item failures;
// history errors are logged, never returned. The optional [Recorder] (metrics.Collector) receives counts
// and create latencies.
package tasks
