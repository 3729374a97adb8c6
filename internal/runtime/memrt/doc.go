// Package memrt is the in-process reference implementation of the runtime
// contract.
//
// It executes relation pipelines synchronously, one input record at a
// time, and sinks into a TopicWriter (the SQLite topicstore or a
// MemoryLog). The CLI's run command and the relation tests use it.
//
// # Record flow
//
//   - Source rows are [ROWTIME, ROWKEY, value columns...]; ROWTIME is the
//     record timestamp (or the runtime clock when unset), ROWKEY the key.
//   - Streams push every record through their operators in order. A null
//     stream value is dropped at the source.
//   - Tables keep the latest value per key at every node. A null value is
//     a delete; a filter that stops matching a key emits a delete for it.
//   - A table group-by emits a subtraction of the old row before the
//     addition of the new one; a stream group-by only adds.
//
// # Failures
//
// Row-level failures (planerr.IsRowError) are located with
// planerr.WithRecord and handled per OnError: fail, skip or dead-letter.
// Any other failure, such as a sink write error, is always returned.
//
// # Concurrency
//
// Process is serialized by a single lock. Enqueue may be called from any
// goroutine; Run must be called from exactly one.
package memrt
