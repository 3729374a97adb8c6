package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamsql/internal/topicstore"
)

func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topics.db")
	st, err := topicstore.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	_, err = st.Append(ctx, "OUT", 0, []byte("a"), []byte(`{"COL0":1}`), 1000)
	require.NoError(t, err)
	_, err = st.Append(ctx, "OUT", 0, []byte("b"), nil, 2000)
	require.NoError(t, err)
	_, err = st.Append(ctx, "errors", 0, []byte("x"), []byte("raw"), 1500)
	require.NoError(t, err)
	return path
}

func executeTopic(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTopicCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestTopic_List(t *testing.T) {
	path := seedStore(t)
	out, err := executeTopic(t, "text", "--store", path)
	require.NoError(t, err)
	assert.Equal(t, "OUT\t2\nerrors\t1\n", out)
}

func TestTopic_Records(t *testing.T) {
	path := seedStore(t)
	out, err := executeTopic(t, "text", "--store", path, "OUT")
	require.NoError(t, err)
	assert.Equal(t,
		"OUT/0@0 ts=1000 key=a value={\"COL0\":1}\n"+
			"OUT/0@1 ts=2000 key=b value=<tombstone>\n",
		out)
}

func TestTopic_Window(t *testing.T) {
	path := seedStore(t)
	out, err := executeTopic(t, "json", "--store", path, "--since", "1500", "OUT")
	require.NoError(t, err)

	var resp struct {
		Data TopicResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Records, 1)
	assert.Equal(t, "b", resp.Data.Records[0].Key)
	assert.Nil(t, resp.Data.Records[0].Value)

	out, err = executeTopic(t, "text", "--store", path, "--until", "1970-01-01T00:00:02Z", "OUT")
	require.NoError(t, err)
	assert.Equal(t, "OUT/0@0 ts=1000 key=a value={\"COL0\":1}\n", out)
}

func TestTopic_Errors(t *testing.T) {
	_, err := executeTopic(t, "text", "OUT")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no topic store")

	path := seedStore(t)
	_, err = executeTopic(t, "text", "--store", path, "--since", "not a time", "OUT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--since")
}
