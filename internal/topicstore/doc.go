// Package topicstore provides SQLite-backed durable storage for sink topics.
//
// The reference runtime writes every record a query sinks with into() here,
// and the CLI reads topics back for inspection.
//
// # Log model
//
//   - Topics are created on first append.
//   - Offsets are assigned densely per (topic, partition) starting at 0,
//     inside the same transaction as the insert.
//   - A nil value is stored as NULL and read back as nil (a tombstone).
//   - Reads return records ordered by partition, then offset.
//
// # Compression
//
// Values may be zstd-compressed (WithCompression). The codec is recorded
// per row, so a store written with one setting reads back under any other.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package topicstore
