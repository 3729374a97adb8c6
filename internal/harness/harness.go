package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/streamsql/internal/catalog"
	"github.com/roach88/streamsql/internal/codegen"
	"github.com/roach88/streamsql/internal/planerr"
	"github.com/roach88/streamsql/internal/planner"
	"github.com/roach88/streamsql/internal/runtime"
	"github.com/roach88/streamsql/internal/runtime/memrt"
	"github.com/roach88/streamsql/internal/testutil"
	"github.com/roach88/streamsql/internal/topicstore"
)

// ClockStart is the first timestamp the scenario clock hands to input
// records sent without one. Each further record gets the next millisecond.
const ClockStart int64 = 1_000_000

// traceWriter records every sink append as a trace event before passing it
// on to the scenario's topic store.
type traceWriter struct {
	store           *topicstore.Store
	result          *Result
	deadLetterTopic string
}

// Append implements memrt.TopicWriter.
func (w *traceWriter) Append(ctx context.Context, topic string, partition int32, key, value []byte, timestamp int64) (int64, error) {
	offset, err := w.store.Append(ctx, topic, partition, key, value, timestamp)
	if err != nil {
		return 0, err
	}

	typ := EventSink
	if w.deadLetterTopic != "" && topic == w.deadLetterTopic {
		typ = EventDeadLetter
	}
	w.result.addEvent(TraceEvent{
		Type:      typ,
		Topic:     topic,
		Partition: partition,
		Offset:    &offset,
		Timestamp: timestamp,
		Key:       string(key),
		Value:     optionalString(value),
	})
	return offset, nil
}

func optionalString(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory topic store, a deterministic
// clock and fixed query IDs, so the trace is identical on every run.
//
// Execution flow:
//  1. Load the catalog and build the query onto the reference runtime
//  2. Process input records in order
//  3. Check the failure, if any, against expect_error
//  4. Evaluate assertions
//
// A returned error means the scenario could not be set up. Planning
// failures are results, so scenarios can expect them.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with a caller-supplied logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	cat, err := catalog.Load(scenario.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	plan, err := scenario.Query.Plan()
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}
	errorPolicy, err := codegen.ParseErrorPolicy(scenario.ErrorPolicy)
	if err != nil {
		return nil, err
	}
	onError, err := memrt.ParseOnError(scenario.OnError)
	if err != nil {
		return nil, err
	}

	st, err := topicstore.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	result := NewResult()
	writer := &traceWriter{store: st, result: result}
	if onError == memrt.OnErrorDeadLetter {
		writer.deadLetterTopic = scenario.DeadLetterTopic
	}

	rt, err := memrt.New(writer,
		memrt.WithClock(testutil.NewDeterministicClock(ClockStart, 1)),
		memrt.WithOnError(onError, scenario.DeadLetterTopic),
		memrt.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}

	builder := planner.NewBuilder(cat, rt,
		planner.WithCompiler(codegen.New(codegen.WithErrorPolicy(errorPolicy), codegen.WithLogger(logger))),
		planner.WithIDGenerator(testutil.NewFixedIDGenerator("")),
		planner.WithLogger(logger),
	)
	q, err := builder.Build(plan)
	if err != nil {
		result.Failure = err
		checkFailure(scenario, result)
		return result, nil
	}
	result.QueryID = q.ID

	if q.Grouped != nil {
		vs := q.Grouped.Handle().ValueSerde()
		q.Grouped.Handle().ForEach(func(c runtime.Change) error {
			value, err := vs.Serialize(c.Value)
			if err != nil {
				return err
			}
			result.addEvent(TraceEvent{
				Type:  EventChange,
				Op:    c.Op.String(),
				Key:   c.Key,
				Value: optionalString(value),
			})
			return nil
		})
	}

	ctx := context.Background()
	for i, in := range scenario.Input {
		rec, err := in.Record()
		if err != nil {
			return nil, fmt.Errorf("input[%d]: %w", i, err)
		}
		if err := rt.Process(ctx, rec); err != nil {
			// Under on_error: fail the first failed record stops the run.
			result.Failure = err
			logger.Debug("scenario stopped", "input", i, "error", err)
			break
		}
	}
	result.Stats = rt.Stats()

	checkFailure(scenario, result)

	actx := &AssertionContext{Stats: result.Stats}
	if q.Sink != nil {
		actx.SinkTopic = q.Sink.Topic
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

// checkFailure compares the run's failure with the scenario's expect_error.
func checkFailure(scenario *Scenario, result *Result) {
	switch {
	case scenario.ExpectError == "" && result.Failure != nil:
		result.AddError(fmt.Sprintf("unexpected failure: %v", result.Failure))
	case scenario.ExpectError != "" && result.Failure == nil:
		result.AddError(fmt.Sprintf("expected error %s, run succeeded", scenario.ExpectError))
	case scenario.ExpectError != "":
		if got := planerr.CodeOf(result.Failure); string(got) != scenario.ExpectError {
			result.AddError(fmt.Sprintf("expected error %s, got %v", scenario.ExpectError, result.Failure))
		}
	}
}
