package sessions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/januslabs/janus/internal/providers"
)

func TestAppendAndReload(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	key := Key("telegram", "12345")
	require.NoError(t, s.Append(key, providers.Message{Role: providers.RoleUser, Content: "hello"}))
	require.NoError(t, s.Append(key, providers.Message{Role: providers.RoleAssistant, Content: "hi there"}))

	// Fresh store reads the same transcript back from disk.
	s2, err := NewStore(dir)
	require.NoError(t, err)
	sess := s2.GetOrCreate(key)
	require.Len(t, sess.Messages, 2)
	require.Equal(t, "hello", sess.Messages[0].Content)
	require.Equal(t, "hi there", sess.Messages[1].Content)
}

func TestTranscriptIsJSONLWithMetadataHeader(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	key := Key("cli", "direct")
	require.NoError(t, s.Append(key, providers.Message{Role: providers.RoleUser, Content: "x"}))

	data, err := os.ReadFile(filepath.Join(dir, "cli_direct.jsonl"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"_type":"metadata"`)
	require.Contains(t, string(data), `"messageCount":1`)
}

func TestCorruptMetadataStartsFresh(t *testing.T) {
	dir := t.TempDir()
	key := Key("cli", "direct")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cli_direct.jsonl"),
		[]byte("not json at all\n"), 0o644))

	s, err := NewStore(dir)
	require.NoError(t, err)
	sess := s.GetOrCreate(key)
	require.Empty(t, sess.Messages)
	require.Empty(t, sess.Summary)
}

func TestBadMessageLinesSkipped(t *testing.T) {
	dir := t.TempDir()
	content := `{"_type":"metadata","key":"cli:direct","created":1,"updated":1,"messageCount":3}
{"role":"user","content":"first"}
{{{ garbage
{"role":"assistant","content":"second"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cli_direct.jsonl"), []byte(content), 0o644))

	s, err := NewStore(dir)
	require.NoError(t, err)
	sess := s.GetOrCreate(Key("cli", "direct"))
	require.Len(t, sess.Messages, 2)
	require.Equal(t, "first", sess.Messages[0].Content)
	require.Equal(t, "second", sess.Messages[1].Content)
}

func TestSummarizeKeepsTail(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	key := Key("cli", "direct")
	for i := 0; i < 10; i++ {
		role := providers.RoleUser
		if i%2 == 1 {
			role = providers.RoleAssistant
		}
		require.NoError(t, s.Append(key, providers.Message{Role: role, Content: string(rune('a' + i))}))
	}

	require.NoError(t, s.Summarize(key, "we talked about letters", 4))

	sess := s.GetOrCreate(key)
	require.Equal(t, "we talked about letters", sess.Summary)
	require.Len(t, sess.Messages, 4)
	require.Equal(t, "g", sess.Messages[0].Content)

	// Compaction survives a reload.
	s2, err := NewStore(dir)
	require.NoError(t, err)
	sess2 := s2.GetOrCreate(key)
	require.Equal(t, "we talked about letters", sess2.Summary)
	require.Len(t, sess2.Messages, 4)
}

func TestStripOrphanToolMessages(t *testing.T) {
	msgs := []providers.Message{
		{Role: providers.RoleTool, ToolCallID: "t1", Content: "orphan"},
		{Role: providers.RoleTool, ToolCallID: "t2", Content: "orphan"},
		{Role: providers.RoleUser, Content: "hi"},
		{Role: providers.RoleTool, ToolCallID: "t3", Content: "kept"},
	}
	out := StripOrphanToolMessages(msgs)
	require.Len(t, out, 2)
	require.Equal(t, "hi", out[0].Content)
	require.Equal(t, "kept", out[1].Content)
}

func TestKeySanitization(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	key := Key("telegram", "cron:job/42")
	require.NoError(t, s.Append(key, providers.Message{Role: providers.RoleUser, Content: "x"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "telegram_cron_job_42.jsonl", entries[0].Name())
}

func TestListReturnsMetadata(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Append(Key("cli", "a"), providers.Message{Role: providers.RoleUser, Content: "1"}))
	require.NoError(t, s.Append(Key("cli", "b"), providers.Message{Role: providers.RoleUser, Content: "2"}))

	infos := s.List()
	require.Len(t, infos, 2)
	for _, info := range infos {
		require.Equal(t, 1, info.MessageCount)
	}
}
