// Package store provides SQLite-backed history of view generation runs.
//
// Each run records the mapping it read, its configuration and metrics, and
// every view and error record it produced:
//   - Runs: one row per generation, identified by a UUID
//   - Views: generated views with their tree, CQL text and content hash
//   - Errors: the run's error log, in logging order
//
// # Ordering
//
// All listings order by seq INTEGER (a logical counter), never by
// timestamps, so two stores holding the same runs list them identically.
// View and error rows keep the order the run produced them in.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// View hashes come from internal/ir (RFC 8785 canonical JSON and SHA-256
// with domain separation), so equal hashes across runs mean equal views.
package store
