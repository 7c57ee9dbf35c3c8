package scheduler

import (
	"context"

	"github.com/januslabs/janus/internal/tools"
)

// ToolStore adapts the job store to the cron tool's interface.
type ToolStore struct {
	store *Store
}

func NewToolStore(store *Store) *ToolStore { return &ToolStore{store: store} }

func (a *ToolStore) AddJob(ctx context.Context, name, kind, value, timezone, task string) (string, error) {
	job, err := a.store.UpsertByName(ctx, name, kind, value, timezone, task)
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

func (a *ToolStore) ListJobs(ctx context.Context, includeDisabled bool) ([]tools.CronJobInfo, error) {
	jobs, err := a.store.List(ctx, includeDisabled)
	if err != nil {
		return nil, err
	}
	out := make([]tools.CronJobInfo, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, tools.CronJobInfo{
			ID:       j.ID,
			Name:     j.Name,
			Kind:     j.Kind,
			Value:    j.Value,
			Task:     j.Task,
			Enabled:  j.Enabled,
			NextRun:  j.NextRunAt,
			LastRun:  j.LastRunAt,
			LastErr:  j.LastError,
			Timezone: j.Timezone,
		})
	}
	return out, nil
}

func (a *ToolStore) RemoveJob(ctx context.Context, id string) error {
	return a.store.Remove(ctx, id)
}

func (a *ToolStore) SetJobEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := a.store.Update(ctx, id, Patch{Enabled: &enabled})
	return err
}
