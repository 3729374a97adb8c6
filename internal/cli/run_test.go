package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamsql/internal/planerr"
	"github.com/roach88/streamsql/internal/testutil"
	"github.com/roach88/streamsql/internal/topicstore"
)

func executeRun(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: format},
		IDGenerator: testutil.NewFixedIDGenerator(""),
		Clock:       testutil.NewDeterministicClock(5000, 1),
	}
	cmd := newRunCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

type runResponse struct {
	Status string    `json:"status"`
	Data   RunResult `json:"data"`
}

func decodeRun(t *testing.T, out string) RunResult {
	t.Helper()
	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func strPtr(s string) *string { return &s }

func TestRun_FilterProject(t *testing.T) {
	out, err := executeRun(t, "json",
		"--catalog", "testdata/catalog.cue",
		"--input", "testdata/records.jsonl",
		"testdata/high_value.yaml")
	require.NoError(t, err)

	result := decodeRun(t, out)
	assert.Equal(t, "query-1", result.QueryID)
	assert.Equal(t, "HIGH_VALUE", result.Name)
	assert.Equal(t, RunStats{Processed: 4, Written: 2}, result.Stats)
	assert.Equal(t, []OutputRecord{
		{Topic: "OUT", Offset: 0, Timestamp: 1700000000000, Key: "a", Value: strPtr(`{"COL0":200,"TRIPLE":4.5,"KSQL_COL_1":3}`)},
		{Topic: "OUT", Offset: 1, Timestamp: 1704164645000, Key: "d", Value: strPtr(`{"COL0":101,"TRIPLE":1.5,"KSQL_COL_1":5}`)},
	}, result.Records)
	assert.Empty(t, result.Changes)
}

func TestRun_Text(t *testing.T) {
	out, err := executeRun(t, "text",
		"--catalog", "testdata/catalog.cue",
		"--input", "testdata/records.jsonl",
		"testdata/high_value.yaml")
	require.NoError(t, err)

	want := "QUERY query-1 HIGH_VALUE\n" +
		"processed=4 written=2 failed=0 skipped=0 dead_lettered=0\n" +
		`OUT/0@0 ts=1700000000000 key=a value={"COL0":200,"TRIPLE":4.5,"KSQL_COL_1":3}` + "\n" +
		`OUT/0@1 ts=1704164645000 key=d value={"COL0":101,"TRIPLE":1.5,"KSQL_COL_1":5}` + "\n"
	assert.Equal(t, want, out)
}

func TestRun_GroupedTable(t *testing.T) {
	out, err := executeRun(t, "json",
		"--catalog", "testdata/catalog.cue",
		"--input", "testdata/users.jsonl",
		"testdata/by_region.yaml")
	require.NoError(t, err)

	result := decodeRun(t, out)
	assert.Empty(t, result.Records)

	var got []string
	for _, c := range result.Changes {
		got = append(got, c.Op+" "+c.Key)
	}
	// u2 never passes the filter; the u1 tombstone retracts its last row.
	assert.Equal(t, []string{"ADD eu", "SUBTRACT eu", "ADD us", "SUBTRACT us"}, got)
	require.NotEmpty(t, result.Changes)
	assert.Contains(t, result.Changes[0].Value, `"USERS.REGION":"eu"`)
}

func TestRun_FailPolicyStopsAtFirstBadRecord(t *testing.T) {
	_, err := executeRun(t, "json",
		"--catalog", "testdata/catalog.cue",
		"--input", "testdata/bad_records.jsonl",
		"testdata/high_value.yaml")
	require.Error(t, err)

	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, planerr.IsTypeCoercion(err), "unexpected error: %v", err)
	assert.Equal(t, ErrCodeTypeCoercion, ErrorCode(err))
	assert.Contains(t, err.Error(), "record=test2/0@1")
}

func TestRun_SkipPolicy(t *testing.T) {
	out, err := executeRun(t, "json",
		"--catalog", "testdata/catalog.cue",
		"--input", "testdata/bad_records.jsonl",
		"--on-error", "skip",
		"testdata/high_value.yaml")
	require.NoError(t, err)

	result := decodeRun(t, out)
	assert.Equal(t, RunStats{Processed: 3, Failed: 1, Skipped: 1, Written: 2}, result.Stats)
	assert.Len(t, result.Records, 2)
	assert.Empty(t, result.DeadLetters)
}

func TestRun_DeadLetterPolicy(t *testing.T) {
	out, err := executeRun(t, "json",
		"--catalog", "testdata/catalog.cue",
		"--input", "testdata/bad_records.jsonl",
		"--on-error", "dead-letter",
		"--dead-letter-topic", "errors",
		"testdata/high_value.yaml")
	require.NoError(t, err)

	result := decodeRun(t, out)
	assert.Equal(t, int64(1), result.Stats.DeadLettered)
	require.Len(t, result.DeadLetters, 1)
	assert.Equal(t, "errors", result.DeadLetters[0].Topic)
	assert.Equal(t, "x", result.DeadLetters[0].Key)
	require.NotNil(t, result.DeadLetters[0].Value)
	assert.Equal(t, `{"COL0": "not a number"}`, *result.DeadLetters[0].Value)
}

func TestRun_DeadLetterNeedsTopic(t *testing.T) {
	_, err := executeRun(t, "text",
		"--catalog", "testdata/catalog.cue",
		"--input", "testdata/records.jsonl",
		"--on-error", "dead-letter",
		"testdata/high_value.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "dead_letter_topic is required")
}

func TestRun_Store(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.db")
	out, err := executeRun(t, "json",
		"--catalog", "testdata/catalog.cue",
		"--input", "testdata/records.jsonl",
		"--store", dbPath,
		"testdata/high_value.yaml")
	require.NoError(t, err)
	assert.Len(t, decodeRun(t, out).Records, 2)

	st, err := topicstore.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	records, err := st.Read(context.Background(), "OUT")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", string(records[0].Key))
	assert.Equal(t, `{"COL0":101,"TRIPLE":1.5,"KSQL_COL_1":5}`, string(records[1].Value))
}

func TestRun_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "streamsql.yaml")
	dbPath := filepath.Join(dir, "out.db")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
runtime:
  on_error: skip
store:
  path: `+dbPath+`
  compression: zstd
`), 0644))

	buf := &bytes.Buffer{}
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "json", ConfigPath: cfgPath},
		IDGenerator: testutil.NewFixedIDGenerator(""),
	}
	cmd := newRunCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--catalog", "testdata/catalog.cue", "--input", "testdata/bad_records.jsonl", "testdata/high_value.yaml"})
	require.NoError(t, cmd.Execute())

	result := decodeRun(t, buf.String())
	assert.Equal(t, int64(1), result.Stats.Skipped)

	st, err := topicstore.Open(dbPath, topicstore.WithCompression(topicstore.CompressionZstd))
	require.NoError(t, err)
	defer st.Close()
	records, err := st.Read(context.Background(), "OUT")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRun_InputErrors(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(bad, []byte("{\"topic\": \"test2\"}\nnot json\n"), 0644))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing input file", []string{"--catalog", "testdata/catalog.cue", "--input", "testdata/nope.jsonl", "testdata/high_value.yaml"}, "failed to read input"},
		{"malformed line", []string{"--catalog", "testdata/catalog.cue", "--input", bad, "testdata/high_value.yaml"}, "line 2"},
		{"bad on-error", []string{"--catalog", "testdata/catalog.cue", "--input", "testdata/records.jsonl", "--on-error", "retry", "testdata/high_value.yaml"}, "runtime.on_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeRun(t, "text", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_MissingFlags(t *testing.T) {
	_, err := executeRun(t, "text", "testdata/high_value.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}
