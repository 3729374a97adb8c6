package serde

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// StringSerde encodes keys as UTF-8, byte for byte.
type StringSerde struct{}

// Serialize encodes key.
func (StringSerde) Serialize(key string) ([]byte, error) {
	if !utf8.ValidString(key) {
		return nil, fmt.Errorf("key is not valid UTF-8: %q", key)
	}
	return []byte(key), nil
}

// Deserialize decodes key bytes. A nil payload decodes to the empty key.
func (StringSerde) Deserialize(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("key is not valid UTF-8")
	}
	return string(data), nil
}

// NFCSerde encodes keys as NFC-normalized UTF-8, so canonically equal
// group keys land in the same group. Normalization rewrites key bytes.
type NFCSerde struct{}

// Serialize encodes the normalized key.
func (NFCSerde) Serialize(key string) ([]byte, error) {
	if !utf8.ValidString(key) {
		return nil, fmt.Errorf("key is not valid UTF-8: %q", key)
	}
	return norm.NFC.Bytes([]byte(key)), nil
}

// Deserialize decodes and normalizes key bytes.
func (NFCSerde) Deserialize(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("key is not valid UTF-8")
	}
	return norm.NFC.String(string(data)), nil
}

// KeyEncoding names a key serde.
type KeyEncoding string

const (
	KeyEncodingUTF8 KeyEncoding = "utf8"
	KeyEncodingNFC  KeyEncoding = "nfc"
)

// ParseKeyEncoding parses a key encoding name. The empty string is utf8.
func ParseKeyEncoding(s string) (KeyEncoding, error) {
	switch KeyEncoding(strings.ToLower(s)) {
	case "", KeyEncodingUTF8:
		return KeyEncodingUTF8, nil
	case KeyEncodingNFC:
		return KeyEncodingNFC, nil
	}
	return "", fmt.Errorf("unknown key encoding %q (want utf8 or nfc)", s)
}

// NewKeySerde returns the key serde for enc.
func NewKeySerde(enc KeyEncoding) KeySerde {
	if enc == KeyEncodingNFC {
		return NFCSerde{}
	}
	return StringSerde{}
}
