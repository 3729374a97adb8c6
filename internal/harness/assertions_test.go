package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamsql/internal/runtime/memrt"
)

func strPtr(s string) *string { return &s }

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Type: EventSink, Topic: "OUT", Key: "a", Value: strPtr(`{"COL0":200,"TRIPLE":4.5,"NAME":"x"}`)},
		{Seq: 2, Type: EventDeadLetter, Topic: "errors", Key: "x", Value: strPtr("raw")},
		{Seq: 3, Type: EventChange, Op: "ADD", Key: "eu", Value: strPtr(`{"USERS.REGION":"eu","USERS.BALANCE":10.5}`)},
		{Seq: 4, Type: EventSink, Topic: "OUT", Key: "b"},
		{Seq: 5, Type: EventChange, Op: "SUBTRACT", Key: "eu", Value: strPtr(`{"USERS.REGION":"eu","USERS.BALANCE":10.5}`)},
	}
}

var sinkContext = &AssertionContext{SinkTopic: "OUT"}

func TestAssertSinkContains(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   bool
	}{
		{"key only", Assertion{Key: strPtr("a")}, false},
		{"value subset", Assertion{Key: strPtr("a"), Value: map[string]any{"COL0": 200, "TRIPLE": 4.5}}, false},
		{"value mismatch", Assertion{Key: strPtr("a"), Value: map[string]any{"COL0": 201}}, true},
		{"missing field", Assertion{Value: map[string]any{"COL9": 1}}, true},
		{"raw", Assertion{Raw: strPtr(`{"COL0":200,"TRIPLE":4.5,"NAME":"x"}`)}, false},
		{"tombstone", Assertion{Key: strPtr("b"), Tombstone: true}, false},
		{"tombstone on live record", Assertion{Key: strPtr("a"), Tombstone: true}, true},
		{"other topic", Assertion{Topic: "errors", Key: strPtr("x"), Raw: strPtr("raw")}, false},
		{"change is not a sink record", Assertion{Key: strPtr("eu")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertSinkContains
			err := assertSinkContains(sampleTrace(), tt.assertion, sinkContext)
			if tt.wantErr {
				require.Error(t, err)
				var ae *AssertionError
				require.ErrorAs(t, err, &ae)
				assert.Equal(t, AssertSinkContains, ae.Type)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAssertSinkCount(t *testing.T) {
	assert.NoError(t, assertSinkCount(sampleTrace(), Assertion{Count: 2}, sinkContext))
	assert.NoError(t, assertSinkCount(sampleTrace(), Assertion{Topic: "errors", Count: 1}, sinkContext))
	assert.NoError(t, assertSinkCount(sampleTrace(), Assertion{Topic: "nope", Count: 0}, sinkContext))

	err := assertSinkCount(sampleTrace(), Assertion{Count: 3}, sinkContext)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 3 records on OUT")
	assert.Contains(t, err.Error(), "Actual: 2 records")
}

func TestAssertSinkOrder(t *testing.T) {
	assert.NoError(t, assertSinkOrder(sampleTrace(), Assertion{Keys: []string{"a", "b"}}, sinkContext))

	err := assertSinkOrder(sampleTrace(), Assertion{Keys: []string{"b", "a"}}, sinkContext)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keys: [a b]")

	err = assertSinkOrder(sampleTrace(), Assertion{Keys: []string{"a"}}, sinkContext)
	require.Error(t, err, "extra records fail the order check")
}

func TestAssertChangeContains(t *testing.T) {
	assert.NoError(t, assertChangeContains(sampleTrace(), Assertion{Op: "ADD", Key: strPtr("eu")}))
	assert.NoError(t, assertChangeContains(sampleTrace(), Assertion{
		Op:    "SUBTRACT",
		Value: map[string]any{"USERS.REGION": "eu", "USERS.BALANCE": 10.5},
	}))

	err := assertChangeContains(sampleTrace(), Assertion{Op: "ADD", Key: strPtr("us")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "change ADD key=us")
}

func TestAssertChangeCount(t *testing.T) {
	assert.NoError(t, assertChangeCount(sampleTrace(), Assertion{Count: 2}))
	assert.NoError(t, assertChangeCount(sampleTrace(), Assertion{Op: "SUBTRACT", Count: 1}))

	err := assertChangeCount(sampleTrace(), Assertion{Op: "ADD", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: 1 ADD changes")
}

func TestAssertStats(t *testing.T) {
	stats := memrt.Stats{Processed: 3, Failed: 1, Skipped: 1, Written: 2}

	assert.NoError(t, assertStats(stats, Assertion{Stats: map[string]int64{"processed": 3, "written": 2}}))

	err := assertStats(stats, Assertion{Stats: map[string]int64{"written": 3, "failed": 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed=1 (want 0), written=2 (want 3)")
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		actual   any
		expected any
		want     bool
	}{
		{"both nil", nil, nil, true},
		{"nil actual", nil, "x", false},
		{"int", json.Number("200"), 200, true},
		{"int mismatch", json.Number("200"), 201, false},
		{"float", json.Number("4.5"), 4.5, true},
		{"decimal text", json.Number("10.50"), "10.50", true},
		{"string", "eu", "eu", true},
		{"bool", true, true, true},
		{"nested map", map[string]any{"A": json.Number("1")}, map[string]any{"A": 1}, true},
		{"nested map extra key", map[string]any{"A": json.Number("1"), "B": "x"}, map[string]any{"A": 1}, false},
		{"slice", []any{json.Number("1"), "x"}, []any{1, "x"}, true},
		{"slice length", []any{json.Number("1")}, []any{1, 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valuesEqual(tt.actual, tt.expected))
		})
	}
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	result.Stats = memrt.Stats{Processed: 3, Written: 2}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertSinkCount, Count: 2},
		{Type: AssertSinkOrder, Keys: []string{"a", "b"}},
		{Type: AssertChangeCount, Count: 2},
		{Type: AssertStats, Stats: map[string]int64{"written": 2}},
	}, &AssertionContext{SinkTopic: "OUT", Stats: result.Stats})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_SomeFail(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertSinkCount, Count: 2},
		{Type: AssertChangeCount, Count: 5},
		{Type: "final_state"},
	}, sinkContext)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "change_count")
	assert.Contains(t, errs[1], `unknown assertion type "final_state"`)
}

func TestEvaluateAssertions_NilContextUsesResultStats(t *testing.T) {
	result := NewResult()
	result.Stats = memrt.Stats{Processed: 7}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertStats, Stats: map[string]int64{"processed": 7}},
	}, nil)
	assert.Empty(t, errs)
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertSinkCount,
		Expected: "3 records on OUT",
		Actual:   "2 records",
		Trace:    sampleTrace()[:3],
	}

	want := "Assertion failed: sink_count\n" +
		"  Expected: 3 records on OUT\n" +
		"  Actual: 2 records\n" +
		"\nFull trace:\n" +
		`  [1] sink OUT key=a value={"COL0":200,"TRIPLE":4.5,"NAME":"x"}` + "\n" +
		"  [2] dead_letter errors key=x value=raw\n" +
		`  [3] change ADD key=eu value={"USERS.REGION":"eu","USERS.BALANCE":10.5}` + "\n"
	assert.Equal(t, want, err.Error())
}
