package memory

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendDailyNoteCreatesHeader(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	require.NoError(t, AppendDailyNote(dir, day, "met with the plumber"))
	require.NoError(t, AppendDailyNote(dir, day, "## Session notes\n- Decision: use SQLite"))

	content := ReadDailyNote(dir, day)
	require.Contains(t, content, "# 2026-08-24")
	require.Contains(t, content, "met with the plumber")
	require.Contains(t, content, "## Session notes")
	// Header written once.
	require.Equal(t, 1, countOccurrences(content, "# 2026-08-24\n"))
}

func countOccurrences(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}

func TestRecentDailyNotesNewestFirst(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"2026-08-20", "2026-08-22", "2026-08-21"} {
		day, _ := time.Parse("2006-01-02", d)
		require.NoError(t, AppendDailyNote(dir, day, "note for "+d))
	}
	// Non-note files are ignored.
	require.NoError(t, os.WriteFile(dir+"/MEMORY.md", []byte("# Memory"), 0o644))

	notes := RecentDailyNotes(dir, 2)
	require.Len(t, notes, 2)
	require.Contains(t, notes[0], "2026-08-22")
	require.Contains(t, notes[1], "2026-08-21")
}

func TestReadMemoryFileMissing(t *testing.T) {
	require.Empty(t, ReadMemoryFile(t.TempDir()))
}
