package testutil

import "fmt"

// FixedIDGenerator hands out predictable query IDs: "query-1", "query-2", ...
//
// Built queries carry UUIDv7 IDs in production; golden explain output needs
// IDs that are identical on every run.
//
// Not safe for concurrent use. Plan builds are single-threaded.
type FixedIDGenerator struct {
	prefix string
	n      int
}

// NewFixedIDGenerator creates a generator. An empty prefix means "query".
func NewFixedIDGenerator(prefix string) *FixedIDGenerator {
	if prefix == "" {
		prefix = "query"
	}
	return &FixedIDGenerator{prefix: prefix}
}

// Generate returns the next ID.
func (g *FixedIDGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
