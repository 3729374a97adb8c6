package serde

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/streamsql/internal/planerr"
	"github.com/roach88/streamsql/internal/schema"
)

// JSON encodes a row as one object keyed by field name, in schema order.
// DECIMAL values are written as JSON numbers with their exact digits.
//
// Deserialization matches object keys to fields case-insensitively, by full
// name first and then by base name, so {"col0": 1} fills TEST2.COL0.
// Missing keys are NULL; unknown keys are ignored.
type JSON struct {
	schema   *schema.Schema
	enforcer *schema.Enforcer
}

// NewJSON creates a JSON serde for s.
func NewJSON(s *schema.Schema) *JSON {
	return &JSON{schema: s, enforcer: schema.NewEnforcer(s)}
}

func (j *JSON) Format() Format          { return FormatJSON }
func (j *JSON) Schema() *schema.Schema { return j.schema }

// Serialize encodes row as a JSON object.
func (j *JSON) Serialize(row schema.Row) ([]byte, error) {
	if err := j.schema.CheckRow(row); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range j.schema.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(f.Name)
		buf.Write(name)
		buf.WriteByte(':')

		v, err := jsonValue(row.Columns[i])
		if err != nil {
			return nil, fmt.Errorf("serialize %s: %w", f.Name, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func jsonValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case *apd.Decimal:
		if val == nil {
			return []byte("null"), nil
		}
		if val.Form != apd.Finite {
			return nil, fmt.Errorf("non-finite decimal %s", val)
		}
		return []byte(val.Text('f')), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, fmt.Errorf("non-finite double %v", val)
		}
	}
	return json.Marshal(v)
}

// Deserialize decodes a JSON object into a row.
func (j *JSON) Deserialize(data []byte) (schema.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return schema.Row{}, fmt.Errorf("deserialize JSON: %w", err)
	}
	if obj == nil {
		return schema.Row{}, fmt.Errorf("deserialize JSON: expected an object, got null")
	}

	byName := make(map[string]any, len(obj))
	for k, v := range obj {
		byName[strings.ToUpper(k)] = v
	}

	cols := make([]any, j.schema.Len())
	for i, f := range j.schema.Fields() {
		raw, ok := byName[strings.ToUpper(f.Name)]
		if !ok {
			raw = byName[strings.ToUpper(f.BaseName())]
		}
		v, err := fromJSON(f, i, raw)
		if err != nil {
			return schema.Row{}, err
		}
		if cols[i], err = j.enforcer.Enforce(i, v); err != nil {
			return schema.Row{}, err
		}
	}
	return schema.Row{Columns: cols}, nil
}

// fromJSON converts a decoded JSON value to the runtime representation of
// the field's type where the JSON form is lossless; anything else is left
// for the enforcer to reject.
func fromJSON(f schema.Field, index int, raw any) (any, error) {
	fail := func() error {
		err := planerr.NewTypeCoercion(f.Name, index, string(f.Type), raw)
		err.Message = fmt.Sprintf("cannot read JSON value %v as %s", raw, f.Type)
		return err
	}

	switch v := raw.(type) {
	case json.Number:
		switch f.Type {
		case schema.TypeBigInt:
			n, err := strconv.ParseInt(v.String(), 10, 64)
			if err != nil {
				return nil, fail()
			}
			return n, nil
		case schema.TypeInteger:
			n, err := strconv.ParseInt(v.String(), 10, 32)
			if err != nil {
				return nil, fail()
			}
			return int32(n), nil
		case schema.TypeDouble:
			n, err := v.Float64()
			if err != nil {
				return nil, fail()
			}
			return n, nil
		case schema.TypeDecimal:
			d, _, err := apd.NewFromString(v.String())
			if err != nil {
				return nil, fail()
			}
			return d, nil
		}
		return nil, fail()
	case string:
		if f.Type == schema.TypeDecimal {
			d, _, err := apd.NewFromString(v)
			if err != nil {
				return nil, fail()
			}
			return d, nil
		}
	}
	return raw, nil
}
