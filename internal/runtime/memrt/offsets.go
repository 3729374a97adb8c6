package memrt

import "sync"

type partitionKey struct {
	topic     string
	partition int32
}

// offsetClock stamps input records with dense per-partition offsets.
//
// Offsets start at 0 and strictly increase within a (topic, partition),
// so a replay of the same input assigns the same offsets.
type offsetClock struct {
	mu   sync.Mutex
	next map[partitionKey]int64
}

func newOffsetClock() *offsetClock {
	return &offsetClock{next: make(map[partitionKey]int64)}
}

// Next returns the offset for the next record of topic/partition.
func (c *offsetClock) Next(topic string, partition int32) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := partitionKey{topic, partition}
	off := c.next[k]
	c.next[k] = off + 1
	return off
}

// Current returns the offset the next record of topic/partition will get.
func (c *offsetClock) Current(topic string, partition int32) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next[partitionKey{topic, partition}]
}
