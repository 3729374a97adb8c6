package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamsql/internal/planerr"
	"github.com/roach88/streamsql/internal/runtime/memrt"
)

func loadAndRun(t *testing.T, name string) *Result {
	t.Helper()
	scenario, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
	require.NoError(t, err)
	result, err := Run(scenario)
	require.NoError(t, err)
	return result
}

func TestRun_ExampleScenariosPass(t *testing.T) {
	for _, name := range []string{
		"high_value",
		"grouped_users",
		"dead_letter",
		"skip_bad_record",
		"fail_bad_record",
		"unresolved_column",
		"null_policy",
	} {
		t.Run(name, func(t *testing.T) {
			result := loadAndRun(t, name)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRun_SinkTrace(t *testing.T) {
	result := loadAndRun(t, "high_value")

	assert.Equal(t, "query-1", result.QueryID)
	assert.Equal(t, memrt.Stats{Processed: 4, Written: 2}, result.Stats)

	sinks := result.Events(EventSink)
	require.Len(t, sinks, 2)
	assert.Equal(t, "a", sinks[0].Key)
	assert.Equal(t, int64(1700000000000), sinks[0].Timestamp)
	// d had no timestamp and was stamped by the scenario clock
	assert.Equal(t, "d", sinks[1].Key)
	assert.Equal(t, ClockStart, sinks[1].Timestamp)
	require.NotNil(t, sinks[1].Offset)
	assert.Equal(t, int64(1), *sinks[1].Offset)
}

func TestRun_GroupedChanges(t *testing.T) {
	result := loadAndRun(t, "grouped_users")

	var got []string
	for _, e := range result.Events(EventChange) {
		got = append(got, e.Op+" "+e.Key)
	}
	assert.Equal(t, []string{"ADD eu", "SUBTRACT eu", "ADD us", "SUBTRACT us"}, got)
	assert.Empty(t, result.Events(EventSink))
	assert.Equal(t, "query-1", result.QueryID)
}

func TestRun_DeadLetterEvents(t *testing.T) {
	result := loadAndRun(t, "dead_letter")

	dead := result.Events(EventDeadLetter)
	require.Len(t, dead, 1)
	assert.Equal(t, "errors", dead[0].Topic)
	assert.Equal(t, "x", dead[0].Key)
	require.NotNil(t, dead[0].Value)
	assert.Equal(t, `{"COL0":"not a number"}`, *dead[0].Value)
	assert.Equal(t, int64(2), dead[0].Seq)
}

func TestRun_ExpectedFailure(t *testing.T) {
	result := loadAndRun(t, "fail_bad_record")

	require.Error(t, result.Failure)
	assert.True(t, planerr.IsTypeCoercion(result.Failure))
	assert.Contains(t, result.Failure.Error(), "record=test2/0@1")
	// the third record never ran
	assert.Equal(t, int64(2), result.Stats.Processed)
}

func TestRun_PlanFailure(t *testing.T) {
	result := loadAndRun(t, "unresolved_column")

	assert.True(t, result.Pass)
	assert.True(t, planerr.IsUnresolvedColumn(result.Failure))
	assert.Empty(t, result.QueryID)
	assert.Empty(t, result.Trace)
}

func TestRun_UnexpectedFailure(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/fail_bad_record.yaml")
	require.NoError(t, err)
	scenario.ExpectError = ""
	scenario.Assertions = nil

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected failure")
	assert.Contains(t, result.Errors[0], "TYPE_COERCION")
}

func TestRun_ExpectedErrorMissing(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/high_value.yaml")
	require.NoError(t, err)
	scenario.ExpectError = string(planerr.CodeEvaluation)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors, "expected error EXPRESSION_EVALUATION, run succeeded")
}

func TestRun_WrongErrorCode(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/fail_bad_record.yaml")
	require.NoError(t, err)
	scenario.ExpectError = string(planerr.CodeUnknownFunction)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "expected error UNKNOWN_FUNCTION")
}

func TestRun_FailingAssertion(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/high_value.yaml")
	require.NoError(t, err)
	scenario.Assertions = []Assertion{{Type: AssertSinkCount, Count: 3}}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: sink_count")
	assert.Contains(t, result.Errors[0], "2 records")
}

func TestRun_Deterministic(t *testing.T) {
	first := loadAndRun(t, "dead_letter")
	second := loadAndRun(t, "dead_letter")
	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.QueryID, second.QueryID)
}

func TestRun_SetupErrors(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/high_value.yaml")
	require.NoError(t, err)

	broken := *scenario
	broken.Catalog = "testdata/missing.cue"
	_, err = Run(&broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load catalog")

	broken = *scenario
	broken.OnError = "retry"
	_, err = Run(&broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown on-error policy")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestResult_Events(t *testing.T) {
	r := NewResult()
	r.addEvent(TraceEvent{Type: EventSink, Key: "a"})
	r.addEvent(TraceEvent{Type: EventChange, Op: "ADD", Key: "eu"})
	r.addEvent(TraceEvent{Type: EventSink, Key: "b"})

	sinks := r.Events(EventSink)
	require.Len(t, sinks, 2)
	assert.Equal(t, int64(1), sinks[0].Seq)
	assert.Equal(t, int64(3), sinks[1].Seq)
	assert.Nil(t, r.Events(EventDeadLetter))
}
