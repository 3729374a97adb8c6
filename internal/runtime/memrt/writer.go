package memrt

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/streamsql/internal/topicstore"
)

// TopicWriter appends sink records to a topic log.
// *topicstore.Store satisfies it.
type TopicWriter interface {
	Append(ctx context.Context, topic string, partition int32, key, value []byte, timestamp int64) (int64, error)
}

// MemoryLog is an in-memory TopicWriter with the same offset rules as
// topicstore: dense per (topic, partition), starting at 0.
type MemoryLog struct {
	mu     sync.Mutex
	topics map[string][]topicstore.Record
}

// NewMemoryLog returns an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{topics: make(map[string][]topicstore.Record)}
}

// Append implements TopicWriter.
func (l *MemoryLog) Append(ctx context.Context, topic string, partition int32, key, value []byte, timestamp int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if topic == "" {
		return 0, fmt.Errorf("append: empty topic name")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var offset int64
	for _, r := range l.topics[topic] {
		if r.Partition == partition {
			offset++
		}
	}
	l.topics[topic] = append(l.topics[topic], topicstore.Record{
		Topic:     topic,
		Partition: partition,
		Offset:    offset,
		Timestamp: timestamp,
		Key:       clone(key),
		Value:     clone(value),
	})
	return offset, nil
}

// Records returns a copy of topic's records in append order.
func (l *MemoryLog) Records(topic string) []topicstore.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]topicstore.Record, len(l.topics[topic]))
	copy(out, l.topics[topic])
	return out
}

// Topics returns every topic name, sorted.
func (l *MemoryLog) Topics() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.topics))
	for name := range l.topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
