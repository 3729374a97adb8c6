// Package serde defines the codec contract between rows and topic bytes and
// the codecs the reference runtime ships with.
//
// A row Serde is parameterized by the schema it reads and writes; every
// value it deserializes passes through the schema's type enforcer. Keys are
// plain strings encoded as UTF-8 by StringSerde.
//
// A nil payload is a tombstone and never reaches a Serde; callers check for
// it first.
package serde

import (
	"fmt"
	"strings"

	"github.com/roach88/streamsql/internal/schema"
)

// Format names a value encoding.
type Format string

const (
	FormatJSON      Format = "JSON"
	FormatDelimited Format = "DELIMITED"
)

// ParseFormat parses a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToUpper(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatDelimited, "CSV":
		return FormatDelimited, nil
	}
	return "", fmt.Errorf("unknown format %q (want JSON or DELIMITED)", s)
}

// Serde converts rows of one schema to and from bytes.
type Serde interface {
	// Format returns the encoding name.
	Format() Format

	// Schema returns the schema rows are read and written with.
	Schema() *schema.Schema

	// Serialize encodes a row. The row must match Schema.
	Serialize(row schema.Row) ([]byte, error)

	// Deserialize decodes and type-enforces a row.
	Deserialize(data []byte) (schema.Row, error)
}

// KeySerde converts record keys to and from bytes.
type KeySerde interface {
	Serialize(key string) ([]byte, error)
	Deserialize(data []byte) (string, error)
}

// New creates the serde for format over s.
func New(format Format, s *schema.Schema) (Serde, error) {
	if s == nil {
		return nil, fmt.Errorf("serde %s: nil schema", format)
	}
	switch format {
	case FormatJSON:
		return NewJSON(s), nil
	case FormatDelimited:
		return NewDelimited(s), nil
	}
	return nil, fmt.Errorf("unknown format %q", format)
}
