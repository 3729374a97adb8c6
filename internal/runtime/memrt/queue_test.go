package memrt

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordQueue_FIFO(t *testing.T) {
	q := newRecordQueue()

	for _, topic := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(Record{Topic: topic}))
	}

	for _, want := range []string{"A", "B", "C"} {
		r, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, r.Topic)
	}
}

func TestRecordQueue_TryDequeue_Empty(t *testing.T) {
	q := newRecordQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestRecordQueue_Enqueue_AfterClose(t *testing.T) {
	q := newRecordQueue()
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(Record{Topic: "A"}), "enqueue after close should fail")
}

func TestRecordQueue_Drained(t *testing.T) {
	q := newRecordQueue()
	q.Enqueue(Record{Topic: "A"})

	assert.False(t, q.Drained(), "open queue is never drained")
	q.Close()
	assert.False(t, q.Drained(), "closed queue with records is not drained")

	_, ok := q.TryDequeue()
	require.True(t, ok)
	assert.True(t, q.Drained())
}

func TestRecordQueue_WaitSignals(t *testing.T) {
	q := newRecordQueue()
	q.Enqueue(Record{Topic: "A"})

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("no signal after enqueue")
	}
}

func TestRecordQueue_Len(t *testing.T) {
	q := newRecordQueue()
	assert.Equal(t, 0, q.Len())

	q.Enqueue(Record{})
	q.Enqueue(Record{})
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())
}

func TestRecordQueue_ThreadSafe(t *testing.T) {
	q := newRecordQueue()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int32) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(Record{Topic: "T", Partition: id})
			}
		}(int32(p))
	}
	wg.Wait()

	received := 0
	for {
		if _, ok := q.TryDequeue(); !ok {
			break
		}
		received++
	}
	assert.Equal(t, producers*perProducer, received)
}

func TestOffsetClock(t *testing.T) {
	c := newOffsetClock()

	assert.Equal(t, int64(0), c.Next("A", 0))
	assert.Equal(t, int64(1), c.Next("A", 0))
	assert.Equal(t, int64(0), c.Next("A", 1), "offsets are per partition")
	assert.Equal(t, int64(0), c.Next("B", 0), "offsets are per topic")
	assert.Equal(t, int64(2), c.Current("A", 0))
}
