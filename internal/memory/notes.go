package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MemoryFile is the evergreen long-term memory document.
const MemoryFile = "MEMORY.md"

// DailyNotePath returns the note file for a given day.
func DailyNotePath(dir string, t time.Time) string {
	return filepath.Join(dir, t.Format("2006-01-02")+".md")
}

// AppendDailyNote appends text to today's note, creating the file with a
// date header on first write.
func AppendDailyNote(dir string, t time.Time, text string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	path := DailyNotePath(dir, t)

	var header string
	if _, err := os.Stat(path); os.IsNotExist(err) {
		header = "# " + t.Format("2006-01-02") + "\n"
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open daily note: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(header + "\n" + strings.TrimRight(text, "\n") + "\n"); err != nil {
		return fmt.Errorf("append daily note: %w", err)
	}
	return nil
}

// ReadDailyNote returns the note for a day, empty if absent.
func ReadDailyNote(dir string, t time.Time) string {
	data, err := os.ReadFile(DailyNotePath(dir, t))
	if err != nil {
		return ""
	}
	return string(data)
}

// RecentDailyNotes returns up to n most recent daily notes, newest first.
func RecentDailyNotes(dir string, n int) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) != len("2006-01-02.md") || !strings.HasSuffix(name, ".md") {
			continue
		}
		if _, err := time.Parse("2006-01-02", strings.TrimSuffix(name, ".md")); err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if len(names) > n {
		names = names[:n]
	}

	var notes []string
	for _, name := range names {
		if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			notes = append(notes, string(data))
		}
	}
	return notes
}

// ReadMemoryFile returns the contents of MEMORY.md, empty if absent.
func ReadMemoryFile(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, MemoryFile))
	if err != nil {
		return ""
	}
	return string(data)
}

// ReindexDir indexes every markdown file in dir under the given ownership.
func ReindexDir(ctx context.Context, ix *Index, dir, owner, scope, scopeID string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read memory dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		if err := ix.IndexFileWithEmbeddings(ctx, e.Name(), string(data), owner, scope, scopeID); err != nil {
			return fmt.Errorf("index %s: %w", e.Name(), err)
		}
	}
	return nil
}
