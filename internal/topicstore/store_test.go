package topicstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "topics.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"topics", "records"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := openTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_MigrationCreatesIndex(t *testing.T) {
	s := openTestStore(t)

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_records_topic_timestamp'",
	).Scan(&name)
	assert.NoError(t, err)
}

func TestOpen_RejectsUnknownCompression(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "test.db"), WithCompression("lz4"))
	assert.Error(t, err)
}

func TestAppend_AssignsDenseOffsets(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		off, err := s.Append(ctx, "OUT", 0, []byte("k"), []byte("v"), int64(i))
		require.NoError(t, err)
		assert.Equal(t, int64(i), off)
	}

	// Offsets are per topic and per partition.
	off, err := s.Append(ctx, "OUT", 1, []byte("k"), []byte("v"), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), off)

	off, err = s.Append(ctx, "OTHER", 0, []byte("k"), []byte("v"), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), off)
}

func TestAppend_EmptyTopic(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Append(context.Background(), "", 0, nil, nil, 0)
	assert.Error(t, err)
}

func TestRead_OrderAndTombstones(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Append(ctx, "T", 1, []byte("b"), []byte("2"), 20)
	require.NoError(t, err)
	_, err = s.Append(ctx, "T", 0, []byte("a"), []byte("1"), 10)
	require.NoError(t, err)
	_, err = s.Append(ctx, "T", 0, []byte("a"), nil, 30)
	require.NoError(t, err)

	records, err := s.Read(ctx, "T")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, Record{Topic: "T", Partition: 0, Offset: 0, Timestamp: 10, Key: []byte("a"), Value: []byte("1")}, records[0])
	assert.Equal(t, int64(1), records[1].Offset)
	assert.Nil(t, records[1].Value, "tombstone")
	assert.Equal(t, int32(1), records[2].Partition)
}

func TestRead_UnknownTopicIsEmpty(t *testing.T) {
	records, err := openTestStore(t).Read(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadRange(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, ts := range []int64{5, 15, 25, 35} {
		_, err := s.Append(ctx, "T", 0, nil, []byte("x"), ts)
		require.NoError(t, err)
	}

	records, err := s.ReadRange(ctx, "T", 10, 30)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(15), records[0].Timestamp)
	assert.Equal(t, int64(25), records[1].Timestamp)
}

func TestTopics(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Append(ctx, "B", 0, nil, []byte("x"), 0)
	require.NoError(t, err)
	_, err = s.Append(ctx, "A", 0, nil, []byte("x"), 0)
	require.NoError(t, err)
	_, err = s.Append(ctx, "A", 0, nil, []byte("y"), 0)
	require.NoError(t, err)

	topics, err := s.Topics(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TopicInfo{{Name: "A", Records: 2}, {Name: "B", Records: 1}}, topics)
}

func TestCompression_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	payload := bytes.Repeat([]byte(`{"COL0":100,"COL1":"foo"}`), 50)

	zs, err := Open(path, WithCompression(CompressionZstd))
	require.NoError(t, err)
	_, err = zs.Append(ctx, "T", 0, []byte("k"), payload, 0)
	require.NoError(t, err)

	var stored []byte
	require.NoError(t, zs.db.QueryRow("SELECT value FROM records").Scan(&stored))
	assert.Less(t, len(stored), len(payload), "value should be stored compressed")
	require.NoError(t, zs.Close())

	// Reopen without compression: the per-row codec still decodes.
	plain, err := Open(path)
	require.NoError(t, err)
	defer plain.Close()

	records, err := plain.Read(ctx, "T")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, payload, records[0].Value)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, c)

	c, err = ParseCompression("zstd")
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, c)

	_, err = ParseCompression("gzip")
	assert.Error(t, err)
}
