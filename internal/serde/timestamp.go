package serde

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ParseTimestamp reads a record timestamp as epoch milliseconds.
//
// Numbers (and numeric strings) are taken as milliseconds. Any other
// string is parsed as a date/time, in UTC unless it carries a zone:
// "2017-06-01T10:00:00Z" and "2017-06-01 10:00:00" are the same instant.
func ParseTimestamp(v any) (int64, error) {
	switch ts := v.(type) {
	case nil:
		return 0, fmt.Errorf("missing timestamp")
	case int64:
		return ts, nil
	case int:
		return int64(ts), nil
	case float64:
		if ts != math.Trunc(ts) || math.IsInf(ts, 0) {
			return 0, fmt.Errorf("timestamp %v is not whole milliseconds", ts)
		}
		return int64(ts), nil
	case json.Number:
		return ParseTimestamp(ts.String())
	case string:
		s := strings.TrimSpace(ts)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return 0, fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		return t.UnixMilli(), nil
	}
	return 0, fmt.Errorf("unsupported timestamp %T", v)
}
