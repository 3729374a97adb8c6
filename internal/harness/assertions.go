package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/streamsql/internal/runtime/memrt"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, describeEvent(event))
		}
	}

	return buf.String()
}

func describeEvent(e TraceEvent) string {
	value := "<tombstone>"
	if e.Value != nil {
		value = *e.Value
	}
	if e.Type == EventChange {
		return fmt.Sprintf("change %s key=%s value=%s", e.Op, e.Key, value)
	}
	return fmt.Sprintf("%s %s key=%s value=%s", e.Type, e.Topic, e.Key, value)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	// SinkTopic is the default topic for sink assertions.
	SinkTopic string

	// Stats are the runtime counters after the run.
	Stats memrt.Stats
}

// sinkEvents returns sink and dead-letter events written to topic.
func sinkEvents(trace []TraceEvent, topic string) []TraceEvent {
	var out []TraceEvent
	for _, e := range trace {
		if e.Type != EventChange && e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

func changeEvents(trace []TraceEvent, op string) []TraceEvent {
	var out []TraceEvent
	for _, e := range trace {
		if e.Type == EventChange && (op == "" || e.Op == op) {
			out = append(out, e)
		}
	}
	return out
}

func topicOf(assertion Assertion, actx *AssertionContext) string {
	if assertion.Topic != "" {
		return assertion.Topic
	}
	return actx.SinkTopic
}

// matchEvent checks key, raw bytes, tombstone and value subset.
func matchEvent(e TraceEvent, assertion Assertion) bool {
	if assertion.Key != nil && e.Key != *assertion.Key {
		return false
	}
	if assertion.Tombstone {
		return e.Value == nil
	}
	if assertion.Raw != nil {
		if e.Value == nil || *e.Value != *assertion.Raw {
			return false
		}
	}
	if len(assertion.Value) > 0 {
		if e.Value == nil {
			return false
		}
		actual, ok := decodeValue(*e.Value)
		if !ok {
			return false
		}
		return matchArgs(actual, assertion.Value)
	}
	return true
}

func describeExpected(assertion Assertion) string {
	var parts []string
	if assertion.Op != "" {
		parts = append(parts, assertion.Op)
	}
	if assertion.Key != nil {
		parts = append(parts, "key="+*assertion.Key)
	}
	switch {
	case assertion.Tombstone:
		parts = append(parts, "tombstone")
	case assertion.Raw != nil:
		parts = append(parts, "raw="+*assertion.Raw)
	case len(assertion.Value) > 0:
		parts = append(parts, fmt.Sprintf("value %v", assertion.Value))
	}
	return strings.Join(parts, " ")
}

// assertSinkContains checks that a record written to the topic matches.
func assertSinkContains(trace []TraceEvent, assertion Assertion, actx *AssertionContext) error {
	topic := topicOf(assertion, actx)
	for _, event := range sinkEvents(trace, topic) {
		if matchEvent(event, assertion) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertSinkContains,
		Expected: fmt.Sprintf("record on %s with %s", topic, describeExpected(assertion)),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertSinkCount checks the number of records written to the topic.
func assertSinkCount(trace []TraceEvent, assertion Assertion, actx *AssertionContext) error {
	topic := topicOf(assertion, actx)
	count := len(sinkEvents(trace, topic))
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertSinkCount,
			Expected: fmt.Sprintf("%d records on %s", assertion.Count, topic),
			Actual:   fmt.Sprintf("%d records", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertSinkOrder checks that the topic's record keys are exactly Keys.
func assertSinkOrder(trace []TraceEvent, assertion Assertion, actx *AssertionContext) error {
	topic := topicOf(assertion, actx)
	var keys []string
	for _, event := range sinkEvents(trace, topic) {
		keys = append(keys, event.Key)
	}
	if !reflect.DeepEqual(keys, assertion.Keys) {
		return &AssertionError{
			Type:     AssertSinkOrder,
			Expected: fmt.Sprintf("keys on %s in order: %v", topic, assertion.Keys),
			Actual:   fmt.Sprintf("keys: %v", keys),
			Trace:    trace,
		}
	}
	return nil
}

// assertChangeContains checks that a grouped change matches.
func assertChangeContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range changeEvents(trace, assertion.Op) {
		if matchEvent(event, assertion) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertChangeContains,
		Expected: "change " + describeExpected(assertion),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertChangeCount checks the number of grouped changes, optionally of
// one op.
func assertChangeCount(trace []TraceEvent, assertion Assertion) error {
	count := len(changeEvents(trace, assertion.Op))
	if count != assertion.Count {
		what := "changes"
		if assertion.Op != "" {
			what = assertion.Op + " changes"
		}
		return &AssertionError{
			Type:     AssertChangeCount,
			Expected: fmt.Sprintf("%d %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d %s", count, what),
			Trace:    trace,
		}
	}
	return nil
}

// assertStats checks the named runtime counters.
func assertStats(stats memrt.Stats, assertion Assertion) error {
	actual := map[string]int64{
		"processed":     stats.Processed,
		"failed":        stats.Failed,
		"skipped":       stats.Skipped,
		"dead_lettered": stats.DeadLettered,
		"written":       stats.Written,
	}

	names := make([]string, 0, len(assertion.Stats))
	for name := range assertion.Stats {
		names = append(names, name)
	}
	sort.Strings(names)

	var mismatches []string
	for _, name := range names {
		if actual[name] != assertion.Stats[name] {
			mismatches = append(mismatches, fmt.Sprintf("%s=%d (want %d)", name, actual[name], assertion.Stats[name]))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertStats,
			Expected: fmt.Sprintf("counters %v", assertion.Stats),
			Actual:   strings.Join(mismatches, ", "),
		}
	}
	return nil
}

// decodeValue parses a JSON object value. Numbers stay json.Number so
// integers and decimals compare without float rounding.
func decodeValue(s string) (map[string]any, bool) {
	decoder := json.NewDecoder(bytes.NewReader([]byte(s)))
	decoder.UseNumber()
	var m map[string]any
	if err := decoder.Decode(&m); err != nil {
		return nil, false
	}
	return m, true
}

// matchArgs checks if actual contains all expected fields (subset match).
// Extra keys in actual are ignored.
func matchArgs(actual map[string]any, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false // Required key missing
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares a decoded JSON value with a YAML-decoded expectation.
// Numbers compare by their decimal text.
func valuesEqual(actual, expected any) bool {
	if actual == nil && expected == nil {
		return true
	}
	if actual == nil || expected == nil {
		return false
	}

	if n, ok := actual.(json.Number); ok {
		return numbersEqual(n, expected)
	}

	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		return matchArgs(act, exp)
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(act[i], exp[i]) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(actual, expected)
}

func numbersEqual(actual json.Number, expected any) bool {
	switch exp := expected.(type) {
	case int:
		i, err := actual.Int64()
		return err == nil && i == int64(exp)
	case int64:
		i, err := actual.Int64()
		return err == nil && i == exp
	case float64:
		f, err := actual.Float64()
		return err == nil && f == exp
	case string:
		return actual.String() == exp
	}
	return false
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	if actx == nil {
		actx = &AssertionContext{Stats: result.Stats}
	}

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertSinkContains:
			err = assertSinkContains(result.Trace, assertion, actx)
		case AssertSinkCount:
			err = assertSinkCount(result.Trace, assertion, actx)
		case AssertSinkOrder:
			err = assertSinkOrder(result.Trace, assertion, actx)
		case AssertChangeContains:
			err = assertChangeContains(result.Trace, assertion)
		case AssertChangeCount:
			err = assertChangeCount(result.Trace, assertion)
		case AssertStats:
			err = assertStats(actx.Stats, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
