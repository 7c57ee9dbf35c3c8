package scheduler

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/adhocore/gronx"
)

// NextRun computes when a job should fire next. It is a pure function of
// (kind, value, timezone, lastRun, now); nil means "never".
func NextRun(kind, value, timezone string, lastRun *time.Time, now time.Time) *time.Time {
	switch kind {
	case KindAt:
		t, err := parseAt(value)
		if err != nil {
			slog.Warn("invalid 'at' schedule", "value", value, "error", err)
			return nil
		}
		if t.After(now) {
			return &t
		}
		return nil

	case KindEvery:
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil || ms <= 0 {
			slog.Warn("invalid 'every' schedule", "value", value)
			return nil
		}
		base := now
		if lastRun != nil && lastRun.After(now) {
			base = *lastRun
		}
		t := base.Add(time.Duration(ms) * time.Millisecond)
		return &t

	case KindCron:
		ref := now
		if timezone != "" {
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				slog.Warn("invalid timezone, using local", "timezone", timezone, "error", err)
			} else {
				ref = now.In(loc)
			}
		}
		t, err := gronx.NextTickAfter(value, ref, false)
		if err != nil {
			slog.Warn("invalid cron expression", "value", value, "error", err)
			return nil
		}
		return &t

	default:
		slog.Warn("unknown schedule kind", "kind", kind)
		return nil
	}
}

func parseAt(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Parse(time.RFC3339, value)
}
