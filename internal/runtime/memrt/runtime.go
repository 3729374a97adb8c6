package memrt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/streamsql/internal/planerr"
	"github.com/roach88/streamsql/internal/runtime"
	"github.com/roach88/streamsql/internal/schema"
	"github.com/roach88/streamsql/internal/serde"
)

// OnError selects what happens to a record whose processing fails.
type OnError string

const (
	// OnErrorFail returns the failure to the caller and stops Run.
	OnErrorFail OnError = "fail"
	// OnErrorSkip logs the failure and moves on.
	OnErrorSkip OnError = "skip"
	// OnErrorDeadLetter writes the raw input record to the dead-letter topic.
	OnErrorDeadLetter OnError = "dead-letter"
)

// ParseOnError parses an OnError name. Empty means OnErrorFail.
func ParseOnError(s string) (OnError, error) {
	switch OnError(s) {
	case "", OnErrorFail:
		return OnErrorFail, nil
	case OnErrorSkip:
		return OnErrorSkip, nil
	case OnErrorDeadLetter:
		return OnErrorDeadLetter, nil
	}
	return "", fmt.Errorf("unknown on-error policy %q (want fail, skip or dead-letter)", s)
}

// Clock supplies timestamps for records sent without one.
type Clock interface {
	Now() int64
}

type wallClock struct{}

func (wallClock) Now() int64 { return time.Now().UnixMilli() }

// Record is an input record.
type Record struct {
	Topic     string
	Partition int32
	Key       []byte
	Value     []byte // nil is a tombstone
	Timestamp int64  // 0 stamps the record with the runtime clock
}

// Stats counts processed records.
type Stats struct {
	Processed    int64
	Failed       int64
	Skipped      int64
	DeadLettered int64
	Written      int64
}

// Runtime is the in-process reference runtime.
//
// CRITICAL: records are processed one at a time under a single lock, so
// table state and sink order are deterministic for a given input order.
type Runtime struct {
	mu              sync.Mutex
	writer          TopicWriter
	clock           Clock
	keySerde        serde.KeySerde
	onError         OnError
	deadLetterTopic string
	logger          *slog.Logger
	sources         map[string][]*source
	offsets         *offsetClock
	queue           *recordQueue
	stats           Stats
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithClock sets the clock used for records without a timestamp.
// Default: wall clock in milliseconds.
func WithClock(c Clock) Option {
	return func(r *Runtime) {
		r.clock = c
	}
}

// WithOnError sets the failure policy. deadLetterTopic is required for
// OnErrorDeadLetter and ignored otherwise.
func WithOnError(policy OnError, deadLetterTopic string) Option {
	return func(r *Runtime) {
		r.onError = policy
		r.deadLetterTopic = deadLetterTopic
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// WithKeySerde sets the codec for source record keys.
// Default: serde.StringSerde.
func WithKeySerde(ks serde.KeySerde) Option {
	return func(r *Runtime) {
		r.keySerde = ks
	}
}

// New creates a runtime that sinks into w. A nil w uses a fresh MemoryLog.
func New(w TopicWriter, opts ...Option) (*Runtime, error) {
	if w == nil {
		w = NewMemoryLog()
	}
	r := &Runtime{
		writer:   w,
		clock:    wallClock{},
		keySerde: serde.StringSerde{},
		onError:  OnErrorFail,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sources:  make(map[string][]*source),
		offsets:  newOffsetClock(),
		queue:    newRecordQueue(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if _, err := ParseOnError(string(r.onError)); err != nil {
		return nil, err
	}
	if r.onError == OnErrorDeadLetter && r.deadLetterTopic == "" {
		return nil, fmt.Errorf("on-error %s requires a dead-letter topic", OnErrorDeadLetter)
	}
	return r, nil
}

// Writer returns the sink writer.
func (r *Runtime) Writer() TopicWriter {
	return r.writer
}

// Stats returns a snapshot of the record counters.
func (r *Runtime) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Stream implements runtime.Builder.
func (r *Runtime) Stream(topic string, valueSerde serde.Serde) (runtime.Stream, error) {
	src, err := r.addSource(topic, valueSerde)
	if err != nil {
		return nil, err
	}
	src.stream = &stream{rt: r}
	return src.stream, nil
}

// Table implements runtime.Builder.
func (r *Runtime) Table(topic string, valueSerde serde.Serde) (runtime.Table, error) {
	src, err := r.addSource(topic, valueSerde)
	if err != nil {
		return nil, err
	}
	src.table = newTable(r, nil)
	return src.table, nil
}

func (r *Runtime) addSource(topic string, valueSerde serde.Serde) (*source, error) {
	if topic == "" {
		return nil, fmt.Errorf("source: empty topic name")
	}
	if valueSerde == nil {
		return nil, fmt.Errorf("source %s: nil value serde", topic)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	src := &source{rt: r, topic: topic, valueSerde: valueSerde}
	r.sources[topic] = append(r.sources[topic], src)
	r.logger.Debug("source registered", "topic", topic, "format", valueSerde.Format())
	return src, nil
}

// Process pushes one record through every pipeline reading its topic.
//
// Row-level failures are located with the record's topic, partition and
// offset and then handled per the OnError policy. Failures of the sink
// writer are returned regardless of policy.
func (r *Runtime) Process(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.Timestamp == 0 {
		rec.Timestamp = r.clock.Now()
	}
	d := &delivery{
		ctx: ctx,
		rc: planerr.RecordContext{
			Topic:     rec.Topic,
			Partition: rec.Partition,
			Offset:    r.offsets.Next(rec.Topic, rec.Partition),
		},
		timestamp: rec.Timestamp,
	}
	r.stats.Processed++

	sources := r.sources[rec.Topic]
	if len(sources) == 0 {
		r.logger.Debug("no source for topic", "record", d.rc.String())
		return nil
	}

	handled := false
	for _, src := range sources {
		err := src.deliver(d, rec)
		if err == nil {
			continue
		}
		if !planerr.IsRowError(err) {
			return fmt.Errorf("process %s: %w", d.rc, err)
		}
		if handled {
			r.logger.Warn("additional failure for record", "record", d.rc.String(), "error", err)
			continue
		}
		handled = true
		if err := r.handleFailure(ctx, rec, d.rc, err); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) handleFailure(ctx context.Context, rec Record, rc planerr.RecordContext, cause error) error {
	err := planerr.WithRecord(cause, rc)
	r.stats.Failed++

	switch r.onError {
	case OnErrorSkip:
		r.stats.Skipped++
		r.logger.Warn("skipping failed record", "record", rc.String(), "error", err)
		return nil

	case OnErrorDeadLetter:
		if _, werr := r.writer.Append(ctx, r.deadLetterTopic, rec.Partition, rec.Key, rec.Value, rec.Timestamp); werr != nil {
			return fmt.Errorf("dead-letter %s: %w", rc, werr)
		}
		r.stats.DeadLettered++
		r.logger.Warn("dead-lettered failed record",
			"record", rc.String(),
			"topic", r.deadLetterTopic,
			"error", err,
		)
		return nil

	default:
		r.logger.Error("record processing failed", "record", rc.String(), "error", err)
		return err
	}
}

// Enqueue submits a record for the Run loop.
// Thread-safe: may be called from any goroutine.
// Returns false once the runtime has been stopped.
func (r *Runtime) Enqueue(rec Record) bool {
	return r.queue.Enqueue(rec)
}

// Run processes enqueued records until ctx is cancelled or Stop is called
// and the queue has drained. Under OnErrorFail the first failure stops the
// loop and is returned.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("runtime starting")

	for {
		rec, ok := r.queue.TryDequeue()
		if ok {
			if err := r.Process(ctx, rec); err != nil {
				r.queue.Close()
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			r.logger.Info("runtime stopping: context cancelled")
			r.queue.Close()
			return ctx.Err()

		case <-r.queue.Wait():
			// The signal channel closes on Stop, so this fires at once
			// from then on; return only after the queue has drained.
			if r.queue.Drained() {
				r.logger.Info("runtime stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the input queue. Run returns after the queue drains.
func (r *Runtime) Stop() {
	r.queue.Close()
}

// delivery carries one input record's context through a pipeline.
type delivery struct {
	ctx       context.Context
	rc        planerr.RecordContext
	timestamp int64
}

type source struct {
	rt         *Runtime
	topic      string
	valueSerde serde.Serde
	stream     *stream
	table      *table
}

func (s *source) deliver(d *delivery, rec Record) error {
	key, err := s.rt.keySerde.Deserialize(rec.Key)
	if err != nil {
		return decodeFailure(schema.RowKey, err)
	}

	if rec.Value == nil {
		if s.table != nil {
			return s.table.update(d, key, nil)
		}
		s.rt.logger.Debug("dropping null stream value", "record", d.rc.String())
		return nil
	}

	values, err := s.valueSerde.Deserialize(rec.Value)
	if err != nil {
		return decodeFailure(s.topic, err)
	}

	cols := make([]any, 0, values.Len()+2)
	cols = append(cols, d.timestamp, key)
	cols = append(cols, values.Columns...)
	row := schema.Row{Columns: cols}

	if s.table != nil {
		return s.table.update(d, key, &row)
	}
	return s.stream.push(d, key, row)
}

// decodeFailure turns a codec error into a record failure.
func decodeFailure(what string, err error) error {
	if planerr.IsRowError(err) {
		return err
	}
	return &planerr.Error{
		Code:    planerr.CodeTypeCoercion,
		Message: fmt.Sprintf("cannot decode %s", what),
		Err:     err,
	}
}

// encodeFailure turns a sink or repartition codec error into a record failure.
func encodeFailure(topic string, row schema.Row, err error) error {
	if planerr.IsRowError(err) {
		return err
	}
	return &planerr.Error{
		Code:    planerr.CodeTypeCoercion,
		Message: fmt.Sprintf("cannot encode record for %s", topic),
		Row:     row.String(),
		Err:     err,
	}
}
