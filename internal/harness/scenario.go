package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/streamsql/internal/codegen"
	"github.com/roach88/streamsql/internal/planerr"
	"github.com/roach88/streamsql/internal/plandoc"
	"github.com/roach88/streamsql/internal/runtime/memrt"
	"github.com/roach88/streamsql/internal/serde"
)

// Scenario defines a query conformance scenario: a catalog, one query and
// the records pushed through it, with assertions on what comes out.
type Scenario struct {
	// Name uniquely identifies this scenario; it also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is the CUE catalog file or directory. Relative paths are
	// resolved against the scenario file's directory.
	Catalog string `yaml:"catalog"`

	// Query is the plan under test.
	Query plandoc.Document `yaml:"query"`

	// ErrorPolicy is the evaluation error policy: fail (default) or null.
	ErrorPolicy string `yaml:"error_policy,omitempty"`

	// OnError is the runtime failure policy: fail (default), skip or
	// dead-letter.
	OnError string `yaml:"on_error,omitempty"`

	// DeadLetterTopic receives failed records under on_error: dead-letter.
	DeadLetterTopic string `yaml:"dead_letter_topic,omitempty"`

	// Input records, processed in order.
	Input []InputRecord `yaml:"input"`

	// ExpectError is the planerr code the run must stop with, if any.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the trace and the runtime counters.
	Assertions []Assertion `yaml:"assertions"`
}

// InputRecord is one record sent to the runtime.
type InputRecord struct {
	Topic     string `yaml:"topic"`
	Partition int32  `yaml:"partition,omitempty"`
	Key       string `yaml:"key,omitempty"`

	// Value is sent as JSON when it is a mapping or a sequence and as raw
	// bytes when it is a string. A missing or null value is a tombstone.
	Value any `yaml:"value"`

	// Timestamp is epoch milliseconds or a date string. Unset records are
	// stamped by the scenario clock.
	Timestamp any `yaml:"timestamp,omitempty"`
}

// Record converts the input to a runtime record.
func (in InputRecord) Record() (memrt.Record, error) {
	rec := memrt.Record{Topic: in.Topic, Partition: in.Partition}
	if in.Key != "" {
		rec.Key = []byte(in.Key)
	}

	switch v := in.Value.(type) {
	case nil:
	case string:
		rec.Value = []byte(v)
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return memrt.Record{}, fmt.Errorf("value: %w", err)
		}
		rec.Value = data
	default:
		return memrt.Record{}, fmt.Errorf("value must be a mapping, sequence or string, got %T", in.Value)
	}

	if in.Timestamp != nil {
		ts, err := serde.ParseTimestamp(in.Timestamp)
		if err != nil {
			return memrt.Record{}, fmt.Errorf("timestamp: %w", err)
		}
		rec.Timestamp = ts
	}
	return rec, nil
}

// Assertion validates the trace or the runtime counters.
type Assertion struct {
	// Type specifies the assertion type:
	// - "sink_contains": a sink record matches key and value
	// - "sink_count": the sink received exactly Count records
	// - "sink_order": sink record keys appear in Keys order
	// - "change_contains": a grouped change matches op, key and value
	// - "change_count": exactly Count grouped changes (of Op, if set)
	// - "stats": runtime counters equal Stats
	Type string `yaml:"type"`

	// Topic selects the topic for sink assertions. Defaults to the query's
	// sink topic.
	Topic string `yaml:"topic,omitempty"`

	// Key is the expected record or change key.
	Key *string `yaml:"key,omitempty"`

	// Value holds expected fields of a JSON value (subset match).
	Value map[string]any `yaml:"value,omitempty"`

	// Raw is the exact expected value bytes.
	Raw *string `yaml:"raw,omitempty"`

	// Tombstone expects a record without a value.
	Tombstone bool `yaml:"tombstone,omitempty"`

	// Op is ADD or SUBTRACT (change assertions).
	Op string `yaml:"op,omitempty"`

	// Count is the expected number of matching events.
	Count int `yaml:"count,omitempty"`

	// Keys is the expected key order (sink_order).
	Keys []string `yaml:"keys,omitempty"`

	// Stats are the expected runtime counters; unset counters are not
	// checked.
	Stats map[string]int64 `yaml:"stats,omitempty"`
}

// Assertion type constants.
const (
	AssertSinkContains   = "sink_contains"
	AssertSinkCount      = "sink_count"
	AssertSinkOrder      = "sink_order"
	AssertChangeContains = "change_contains"
	AssertChangeCount    = "change_count"
	AssertStats          = "stats"
)

var statNames = map[string]bool{
	"processed":     true,
	"failed":        true,
	"skipped":       true,
	"dead_lettered": true,
	"written":       true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict fields catch typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if _, err := os.Stat(s.Catalog); os.IsNotExist(err) {
		return fmt.Errorf("catalog not found: %s", s.Catalog)
	}
	if _, err := s.Query.Plan(); err != nil {
		return fmt.Errorf("query: %w", err)
	}

	if s.ErrorPolicy != "" {
		if _, err := codegen.ParseErrorPolicy(s.ErrorPolicy); err != nil {
			return fmt.Errorf("error_policy: %w", err)
		}
	}
	if s.OnError != "" {
		policy, err := memrt.ParseOnError(s.OnError)
		if err != nil {
			return fmt.Errorf("on_error: %w", err)
		}
		if policy == memrt.OnErrorDeadLetter && s.DeadLetterTopic == "" {
			return fmt.Errorf("dead_letter_topic is required when on_error is dead-letter")
		}
	}
	if s.ExpectError != "" && !knownCode(s.ExpectError) {
		return fmt.Errorf("expect_error: unknown error code %q", s.ExpectError)
	}

	for i, in := range s.Input {
		if in.Topic == "" {
			return fmt.Errorf("input[%d]: topic is required", i)
		}
		if _, err := in.Record(); err != nil {
			return fmt.Errorf("input[%d]: %w", i, err)
		}
	}

	if len(s.Assertions) == 0 && s.ExpectError == "" {
		return fmt.Errorf("assertions list is required unless expect_error is set")
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func knownCode(code string) bool {
	switch planerr.Code(code) {
	case planerr.CodeUnresolvedColumn, planerr.CodeTypeCoercion, planerr.CodeEvaluation,
		planerr.CodeArityMismatch, planerr.CodeTypeMismatch, planerr.CodeUnknownFunction:
		return true
	}
	return false
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSinkContains:
		if a.Key == nil && a.Value == nil && a.Raw == nil && !a.Tombstone {
			return fmt.Errorf("assertions[%d]: sink_contains needs key, value, raw or tombstone", index)
		}
	case AssertSinkCount, AssertChangeCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertSinkOrder:
		if len(a.Keys) == 0 {
			return fmt.Errorf("assertions[%d]: keys list is required for sink_order", index)
		}
	case AssertChangeContains:
		if a.Op == "" && a.Key == nil && a.Value == nil {
			return fmt.Errorf("assertions[%d]: change_contains needs op, key or value", index)
		}
	case AssertStats:
		if len(a.Stats) == 0 {
			return fmt.Errorf("assertions[%d]: stats is required for stats", index)
		}
		for name := range a.Stats {
			if !statNames[name] {
				return fmt.Errorf("assertions[%d]: unknown counter %q", index, name)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Op != "" && a.Op != "ADD" && a.Op != "SUBTRACT" {
		return fmt.Errorf("assertions[%d]: op must be ADD or SUBTRACT", index)
	}
	return nil
}
