// Package models defines the migration domain types and persistence interfaces.
//
// The package contains two categories of types:
//
// 1. Migration values: in-memory, discarded after the batch
//   - [Entry] : one raw item of a device collection, keyed by device field name
//   - [Schema] : a resource path plus a declarative canonical-to-device field table
//   - [UserRecord] : a user-manager account in canonical form
//   - [BatchResult] : the outcome of replicating a batch, with per-item [ItemFailure]s
//
// 2. Persistent Entities: database-backed run history
//   - [Run] : one migration run with counters and status
//   - [RunFailure] : a per-item failure of a run (usernames only)
//
// Persistent entities implement the [Model] interface and are stored through a [Repository].
// Passwords are never part of a persistent entity.
package models
