package topicstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Record is one stored topic record.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp int64
	Key       []byte
	Value     []byte // nil is a tombstone
}

// TopicInfo summarizes a topic.
type TopicInfo struct {
	Name    string
	Records int64
}

// Append writes one record and returns its offset.
func (s *Store) Append(ctx context.Context, topic string, partition int32, key, value []byte, timestamp int64) (int64, error) {
	if topic == "" {
		return 0, fmt.Errorf("append: empty topic name")
	}

	stored, codec, err := s.encode(value)
	if err != nil {
		return 0, fmt.Errorf("append to %s: %w", topic, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append to %s: begin tx: %w", topic, err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO topics (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, topic); err != nil {
		return 0, fmt.Errorf("append to %s: create topic: %w", topic, err)
	}

	var offset int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(record_offset) + 1, 0)
		FROM records
		WHERE topic = ? AND partition_id = ?
	`, topic, partition).Scan(&offset)
	if err != nil {
		return 0, fmt.Errorf("append to %s: next offset: %w", topic, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records
		(topic, partition_id, record_offset, timestamp, record_key, value, codec)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, topic, partition, offset, timestamp, key, stored, string(codec))
	if err != nil {
		return 0, fmt.Errorf("append to %s: %w", topic, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append to %s: commit: %w", topic, err)
	}
	return offset, nil
}

// Read returns every record of topic, ordered by partition then offset.
// An unknown topic reads as empty.
func (s *Store) Read(ctx context.Context, topic string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT topic, partition_id, record_offset, timestamp, record_key, value, codec
		FROM records
		WHERE topic = ?
		ORDER BY partition_id ASC, record_offset ASC
	`, topic)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", topic, err)
	}
	defer rows.Close()
	return s.scanRecords(rows)
}

// ReadRange returns records of topic with from <= timestamp < to, ordered
// by timestamp, partition and offset.
func (s *Store) ReadRange(ctx context.Context, topic string, from, to int64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT topic, partition_id, record_offset, timestamp, record_key, value, codec
		FROM records
		WHERE topic = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC, partition_id ASC, record_offset ASC
	`, topic, from, to)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", topic, err)
	}
	defer rows.Close()
	return s.scanRecords(rows)
}

// Topics lists every topic with its record count, ordered by name.
func (s *Store) Topics(ctx context.Context) ([]TopicInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name, COUNT(r.record_offset)
		FROM topics t
		LEFT JOIN records r ON r.topic = t.name
		GROUP BY t.name
		ORDER BY t.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var topics []TopicInfo
	for rows.Next() {
		var ti TopicInfo
		if err := rows.Scan(&ti.Name, &ti.Records); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, ti)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return topics, nil
}

func (s *Store) scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var (
			r     Record
			value []byte
			codec string
		)
		if err := rows.Scan(&r.Topic, &r.Partition, &r.Offset, &r.Timestamp, &r.Key, &value, &codec); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		decoded, err := s.decode(value, Compression(codec))
		if err != nil {
			return nil, fmt.Errorf("record %s/%d@%d: %w", r.Topic, r.Partition, r.Offset, err)
		}
		r.Value = decoded
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *Store) encode(value []byte) ([]byte, Compression, error) {
	if value == nil || s.compression == CompressionNone {
		return value, CompressionNone, nil
	}
	return s.encoder.EncodeAll(value, nil), CompressionZstd, nil
}

func (s *Store) decode(value []byte, codec Compression) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	switch codec {
	case CompressionNone:
		return value, nil
	case CompressionZstd:
		out, err := s.decoder.DecodeAll(value, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown codec %q", codec)
}
