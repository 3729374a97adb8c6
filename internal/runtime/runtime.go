// Package runtime defines the contract between relation operators and the
// continuous dataflow runtime that executes them.
//
// Relation operators never touch partitions, offsets or storage. They hand
// the runtime pure per-record functions (value mappers, predicates, key
// mappers) and receive opaque handles back. Every function passed in may be
// invoked concurrently and more than once for the same record.
package runtime

import (
	"github.com/roach88/streamsql/internal/schema"
	"github.com/roach88/streamsql/internal/serde"
)

// ValueMapper derives a new value row from a record's value row.
type ValueMapper func(value schema.Row) (schema.Row, error)

// Predicate decides whether a record is retained.
type Predicate func(value schema.Row) (bool, error)

// KeyMapper re-keys a record.
type KeyMapper func(key string, value schema.Row) (string, schema.Row, error)

// Stream is a handle to an append-only record flow.
type Stream interface {
	MapValues(fn ValueMapper) Stream
	Filter(fn Predicate) Stream
	GroupBy(fn KeyMapper, keySerde serde.KeySerde, valueSerde serde.Serde) Grouped
	To(topic string, keySerde serde.KeySerde, valueSerde serde.Serde) error
}

// Table is a handle to a keyed, continuously updated relation.
//
// Mappers and predicates only ever see live values. Deletes (tombstones)
// are propagated by the runtime itself.
type Table interface {
	MapValues(fn ValueMapper) Table
	Filter(fn Predicate) Table
	GroupBy(fn KeyMapper, keySerde serde.KeySerde, valueSerde serde.Serde) Grouped
	To(topic string, keySerde serde.KeySerde, valueSerde serde.Serde) error
}

// Op tells whether a grouped change adds or retracts a row.
type Op int

const (
	OpAdd Op = iota + 1
	OpSubtract
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "ADD"
	case OpSubtract:
		return "SUBTRACT"
	}
	return "UNKNOWN"
}

// Change is one record delivered to a grouped handle.
type Change struct {
	Key   string
	Value schema.Row
	Op    Op
}

// ChangeHandler consumes grouped changes. Aggregations attach here.
type ChangeHandler func(Change) error

// Grouped is a handle to re-partitioned records awaiting aggregation.
// Stream groupings only ever deliver OpAdd; table groupings deliver an
// OpSubtract for the previous row before the OpAdd for its replacement.
type Grouped interface {
	KeySerde() serde.KeySerde
	ValueSerde() serde.Serde
	ForEach(fn ChangeHandler)
}

// Builder creates source handles over topics.
//
// valueSerde decodes the declared value columns. The runtime prepends the
// implicit ROWTIME and ROWKEY columns, so source rows are
// [ROWTIME, ROWKEY, value columns...].
type Builder interface {
	Stream(topic string, valueSerde serde.Serde) (Stream, error)
	Table(topic string, valueSerde serde.Serde) (Table, error)
}
