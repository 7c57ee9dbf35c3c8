// Package heartbeat turns HEARTBEAT.md into scheduled jobs. Each level-2
// heading names a task; bullet lines declare its schedule and task text.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/januslabs/janus/internal/scheduler"
)

// Entry is one parsed heartbeat task.
type Entry struct {
	Name     string
	Kind     string // "every" or "cron"
	Value    string // milliseconds or a 5-field expression
	Task     string
	Timezone string
}

var everyRe = regexp.MustCompile(`^every\s+(\d+)\s*([mhd])$`)
var cronRe = regexp.MustCompile(`^(\S+\s+){4}\S+$`)

// ParseFile reads HEARTBEAT.md; a missing file yields no entries.
func ParseFile(path string) []Entry {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return Parse(string(data))
}

// Parse extracts entries. Tasks with an unrecognized or missing schedule
// are skipped with a warning.
func Parse(content string) []Entry {
	var entries []Entry
	var cur *Entry

	flush := func() {
		if cur == nil {
			return
		}
		switch {
		case cur.Kind == "":
			slog.Warn("heartbeat task has no usable schedule, skipping", "task", cur.Name)
		case cur.Task == "":
			slog.Warn("heartbeat task has no task text, skipping", "task", cur.Name)
		default:
			entries = append(entries, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "## "):
			flush()
			cur = &Entry{Name: strings.TrimSpace(strings.TrimPrefix(line, "## "))}

		case cur != nil && strings.HasPrefix(line, "- schedule:"):
			spec := strings.TrimSpace(strings.TrimPrefix(line, "- schedule:"))
			kind, value, ok := parseSchedule(spec)
			if !ok {
				slog.Warn("unrecognized heartbeat schedule", "task", cur.Name, "schedule", spec)
				continue
			}
			cur.Kind, cur.Value = kind, value

		case cur != nil && strings.HasPrefix(line, "- task:"):
			cur.Task = strings.TrimSpace(strings.TrimPrefix(line, "- task:"))
		}
	}
	flush()
	return entries
}

// parseSchedule accepts "every <N><m|h|d>" or a 5-field cron expression.
func parseSchedule(spec string) (kind, value string, ok bool) {
	if m := everyRe.FindStringSubmatch(spec); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return "", "", false
		}
		var unit time.Duration
		switch m[2] {
		case "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		case "d":
			unit = 24 * time.Hour
		}
		ms := (time.Duration(n) * unit).Milliseconds()
		return scheduler.KindEvery, strconv.FormatInt(ms, 10), true
	}
	if cronRe.MatchString(spec) {
		return scheduler.KindCron, spec, true
	}
	return "", "", false
}

// Sync upserts every parsed entry into the job store by name, so editing
// HEARTBEAT.md redefines jobs without duplicating them.
func Sync(ctx context.Context, store *scheduler.Store, path string) error {
	for _, e := range ParseFile(path) {
		if _, err := store.UpsertByName(ctx, e.Name, e.Kind, e.Value, e.Timezone, e.Task); err != nil {
			return fmt.Errorf("sync heartbeat task %q: %w", e.Name, err)
		}
	}
	return nil
}
