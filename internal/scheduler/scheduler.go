package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/januslabs/janus/internal/bus"
)

// backoffLadder is the minimum wait after consecutive failures, indexed by
// min(consecutiveErrors-1, len-1).
var backoffLadder = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	5 * time.Minute,
	15 * time.Minute,
	60 * time.Minute,
}

const defaultTickInterval = 60 * time.Second

// Publisher is the bus slice the scheduler needs.
type Publisher interface {
	PublishInbound(ctx context.Context, msg bus.InboundMessage) error
}

// Scheduler scans enabled jobs on a fixed tick and fires the due ones as
// system-origin inbound messages.
type Scheduler struct {
	store *Store
	pub   Publisher
	now   func() time.Time
	tick  time.Duration
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
		s.store.now = now
	}
}

// WithTickInterval overrides the scan interval, for tests.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.tick = d }
}

func New(store *Store, pub Publisher, opts ...Option) *Scheduler {
	s := &Scheduler{
		store: store,
		pub:   pub,
		now:   time.Now,
		tick:  defaultTickInterval,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store exposes the job store for CLI and tool wiring.
func (s *Scheduler) Store() *Store { return s.store }

// Run ticks until ctx cancels. Stop is ctx cancellation; calling Run again
// after cancellation is safe.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	slog.Info("scheduler started", "tick", s.tick)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan fires every enabled job that is due and past its backoff window.
func (s *Scheduler) Scan(ctx context.Context) {
	jobs, err := s.store.List(ctx, false)
	if err != nil {
		slog.Error("scheduler scan failed", "error", err)
		return
	}

	now := s.now()
	for _, job := range jobs {
		if job.NextRunAt == nil || job.NextRunAt.After(now) {
			continue
		}
		if !s.pastBackoff(job, now) {
			continue
		}
		s.fire(ctx, job, now)
	}
}

// pastBackoff requires the escalating minimum interval since the last run
// once a job has consecutive errors.
func (s *Scheduler) pastBackoff(job *Job, now time.Time) bool {
	if job.ConsecutiveErrors == 0 || job.LastRunAt == nil {
		return true
	}
	idx := job.ConsecutiveErrors - 1
	if idx >= len(backoffLadder) {
		idx = len(backoffLadder) - 1
	}
	return now.Sub(*job.LastRunAt) >= backoffLadder[idx]
}

func (s *Scheduler) fire(ctx context.Context, job *Job, startedAt time.Time) {
	err := s.pub.PublishInbound(ctx, bus.InboundMessage{
		ID:        uuid.NewString(),
		Channel:   "system",
		ChatID:    "cron:" + job.ID,
		Content:   fmt.Sprintf("[Cron job: %s]\n\n%s", job.Name, job.Task),
		Author:    "scheduler",
		Timestamp: startedAt,
	})
	if err != nil {
		slog.Error("cron job publish failed", "job", job.Name, "error", err)
	} else {
		slog.Info("cron job fired", "job", job.Name, "id", job.ID)
	}

	if recErr := s.store.recordResult(ctx, job, startedAt, err); recErr != nil {
		slog.Error("failed to record cron run", "job", job.Name, "error", recErr)
	}
}
