package serde

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/cockroachdb/apd/v3"

	"github.com/roach88/streamsql/internal/planerr"
	"github.com/roach88/streamsql/internal/schema"
)

// Delimited encodes a row as one comma-separated line in schema order.
// An empty field is NULL. ARRAY and MAP columns are not supported.
type Delimited struct {
	schema   *schema.Schema
	enforcer *schema.Enforcer
}

// NewDelimited creates a DELIMITED serde for s.
func NewDelimited(s *schema.Schema) *Delimited {
	return &Delimited{schema: s, enforcer: schema.NewEnforcer(s)}
}

func (d *Delimited) Format() Format          { return FormatDelimited }
func (d *Delimited) Schema() *schema.Schema { return d.schema }

// Serialize encodes row as a single CSV record without a trailing newline.
func (d *Delimited) Serialize(row schema.Row) ([]byte, error) {
	if err := d.schema.CheckRow(row); err != nil {
		return nil, err
	}

	fields := make([]string, row.Len())
	for i, v := range row.Columns {
		switch val := v.(type) {
		case nil:
		case string:
			fields[i] = val
		case int64:
			fields[i] = strconv.FormatInt(val, 10)
		case int32:
			fields[i] = strconv.FormatInt(int64(val), 10)
		case float64:
			fields[i] = strconv.FormatFloat(val, 'g', -1, 64)
		case bool:
			fields[i] = strconv.FormatBool(val)
		case *apd.Decimal:
			fields[i] = val.Text('f')
		default:
			return nil, fmt.Errorf("serialize %s: DELIMITED cannot encode %T", d.schema.FieldAt(i).Name, v)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, fmt.Errorf("serialize DELIMITED: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("serialize DELIMITED: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Deserialize decodes one CSV record.
func (d *Delimited) Deserialize(data []byte) (schema.Row, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	record, err := r.Read()
	if err != nil {
		return schema.Row{}, fmt.Errorf("deserialize DELIMITED: %w", err)
	}
	if len(record) != d.schema.Len() {
		err := planerr.NewArityMismatch("delimited record", len(record), d.schema.Len())
		err.Schema = d.schema.String()
		return schema.Row{}, err
	}

	cols := make([]any, len(record))
	for i, s := range record {
		f := d.schema.FieldAt(i)
		v, ok := parseDelimited(f.Type, s)
		if !ok {
			err := planerr.NewTypeCoercion(f.Name, i, string(f.Type), s)
			err.Message = fmt.Sprintf("cannot read %q as %s", s, f.Type)
			return schema.Row{}, err
		}
		if cols[i], err = d.enforcer.Enforce(i, v); err != nil {
			return schema.Row{}, err
		}
	}
	return schema.Row{Columns: cols}, nil
}

func parseDelimited(t schema.Type, s string) (any, bool) {
	if s == "" {
		return nil, true
	}
	switch t {
	case schema.TypeVarchar:
		return s, true
	case schema.TypeBigInt:
		n, err := strconv.ParseInt(s, 10, 64)
		return n, err == nil
	case schema.TypeInteger:
		n, err := strconv.ParseInt(s, 10, 32)
		return int32(n), err == nil
	case schema.TypeDouble:
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	case schema.TypeBoolean:
		b, err := strconv.ParseBool(s)
		return b, err == nil
	case schema.TypeDecimal:
		dec, _, err := apd.NewFromString(s)
		return dec, err == nil
	}
	return nil, false
}
