// Package store provides SQLite-backed run history for conform.
//
// The store is append-mostly:
//   - runs: one row per invocation of the runner, updated once at the end
//   - case_results: one row per executed or missing case, keyed by
//     (run_id, seq) where seq is the case's position in load order
//
// Captured stdout and stderr are kept only for failing cases and are
// stored zstd-compressed; passing cases store NULL.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads while a run is being recorded
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: case rows must reference a run
//
// Timestamps are stored as fixed-width UTC text so lexical order matches
// chronological order.
package store
