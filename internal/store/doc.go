// Package store provides SQLite-backed history of load runs.
//
// Two tables:
//   - runs: one row per run, stamped with verdict and JSON summary on finish
//   - calls: every HTTP request a run made, with the statuses it accepted
//
// # Ordering
//
// Calls from concurrent virtual users interleave. Each call gets a seq
// from a logical clock; trace output and ReadCalls order by seq, never by
// timestamps.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
