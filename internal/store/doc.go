// Package store archives test runs in SQLite.
//
// The CSV run log is the primary artifact of a run; the archive keeps a
// queryable copy of every run so past results can be listed, filtered and
// exported again later. It holds:
//   - Runs: one row per execution of a script, with its final counts
//   - Entries: every run log entry, in the order it was written
//   - Screenshots: the files a run produced
//
// # Ordering
//
// Entries are keyed by (run_id, seq) where seq is assigned by the
// Recorder as entries arrive. Queries order by seq, never by timestamp, so
// two entries logged within the same millisecond keep their order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
