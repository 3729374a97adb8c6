package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/roach88/streamsql/internal/runtime/memrt"
	"github.com/roach88/streamsql/internal/serde"
)

// inputLine is one line of a JSON Lines record file:
//
//	{"topic": "test2", "key": "1", "value": {"COL0": 200}, "timestamp": "2024-01-02T03:04:05Z"}
//
// An object or array value is sent as its raw JSON; a string value as its
// bytes (delimited sources). A null or missing value is a tombstone.
type inputLine struct {
	Topic     string          `json:"topic"`
	Partition int32           `json:"partition"`
	Key       *string         `json:"key"`
	Value     json.RawMessage `json:"value"`
	Timestamp any             `json:"timestamp"`
}

// maxInputLine bounds a single record line.
const maxInputLine = 4 << 20

// ReadRecords parses JSON Lines records. Blank lines and lines starting
// with # are skipped.
func ReadRecords(r io.Reader) ([]memrt.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxInputLine)

	var records []memrt.Record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		rec, err := parseInputLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
	}
	return records, nil
}

// ReadRecordsFile reads a JSON Lines record file.
func ReadRecordsFile(path string) ([]memrt.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()
	return ReadRecords(f)
}

func parseInputLine(line []byte) (memrt.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var in inputLine
	if err := dec.Decode(&in); err != nil {
		return memrt.Record{}, fmt.Errorf("invalid record: %w", err)
	}
	if in.Topic == "" {
		return memrt.Record{}, fmt.Errorf("topic is required")
	}

	rec := memrt.Record{Topic: in.Topic, Partition: in.Partition}
	if in.Key != nil {
		rec.Key = []byte(*in.Key)
	}

	value, err := recordValue(in.Value)
	if err != nil {
		return memrt.Record{}, err
	}
	rec.Value = value

	if in.Timestamp != nil {
		ts, err := serde.ParseTimestamp(in.Timestamp)
		if err != nil {
			return memrt.Record{}, fmt.Errorf("timestamp: %w", err)
		}
		rec.Timestamp = ts
	}
	return rec, nil
}

func recordValue(raw json.RawMessage) ([]byte, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
		return nil, nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		return []byte(s), nil
	case trimmed[0] == '{' || trimmed[0] == '[':
		return []byte(trimmed), nil
	}
	return nil, fmt.Errorf("value must be an object, array, string or null, got %s", trimmed)
}
