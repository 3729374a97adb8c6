package harness

import "github.com/roach88/streamsql/internal/runtime/memrt"

// Trace event types.
const (
	EventSink       = "sink"
	EventDeadLetter = "dead_letter"
	EventChange     = "change"
)

// TraceEvent is one observable output of a scenario run: a record written
// to the sink or dead-letter topic, or a grouped change.
type TraceEvent struct {
	Seq       int64   `json:"seq"`
	Type      string  `json:"type"`
	Topic     string  `json:"topic,omitempty"`
	Partition int32   `json:"partition,omitempty"`
	Offset    *int64  `json:"offset,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
	Op        string  `json:"op,omitempty"`
	Key       string  `json:"key"`
	Value     *string `json:"value"` // nil is a tombstone
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when the run met every expectation and assertion.
	Pass bool `json:"pass"`

	// QueryID is the ID the built query received.
	QueryID string `json:"query_id,omitempty"`

	// Trace holds sink writes and grouped changes in the order they
	// happened.
	Trace []TraceEvent `json:"trace"`

	// Stats are the runtime counters after the last input record.
	Stats memrt.Stats `json:"stats"`

	// Failure is the planning or record failure that stopped the run.
	Failure error `json:"-"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addEvent appends e with the next sequence number.
func (r *Result) addEvent(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}

// Events returns the trace events of type typ, in order.
func (r *Result) Events(typ string) []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
