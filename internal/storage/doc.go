// Package storage persists task records.
//
// Drivers:
//   - "sqlite": one database file, WAL mode, a single connection
//   - "file": JSON snapshot plus an append-only journal, no external deps
//
// Records are never deleted. The only updates are MarkFired's compare-and-set
// on last_fired_at and active.
package storage
