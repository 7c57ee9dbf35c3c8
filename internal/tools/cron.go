package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CronJobInfo is the scheduler-facing job view used by the cron tool.
type CronJobInfo struct {
	ID       string
	Name     string
	Kind     string
	Value    string
	Task     string
	Enabled  bool
	NextRun  *time.Time
	LastRun  *time.Time
	LastErr  string
	Timezone string
}

// CronStore is the slice of the scheduler the cron tool needs.
type CronStore interface {
	AddJob(ctx context.Context, name, kind, value, timezone, task string) (string, error)
	ListJobs(ctx context.Context, includeDisabled bool) ([]CronJobInfo, error)
	RemoveJob(ctx context.Context, id string) error
	SetJobEnabled(ctx context.Context, id string, enabled bool) error
}

// CronTool lets the model manage scheduled jobs.
type CronTool struct {
	store CronStore
}

func NewCronTool(store CronStore) *CronTool { return &CronTool{store: store} }

func (t *CronTool) Name() string { return "cron" }
func (t *CronTool) Description() string {
	return "Manage scheduled jobs: add, list, remove, enable, disable"
}

func (t *CronTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type":        "string",
				"enum":        []string{"add", "list", "remove", "enable", "disable"},
				"description": "What to do",
			},
			"name": map[string]any{"type": "string", "description": "Job name (for add)"},
			"schedule_kind": map[string]any{
				"type":        "string",
				"enum":        []string{"at", "every", "cron"},
				"description": "Schedule type: at (ISO datetime), every (milliseconds), cron (5-field expression)",
			},
			"schedule_value": map[string]any{"type": "string", "description": "Schedule value matching the kind"},
			"timezone":       map[string]any{"type": "string", "description": "Optional IANA timezone for cron schedules"},
			"task":           map[string]any{"type": "string", "description": "Task text the job will run (for add)"},
			"id":             map[string]any{"type": "string", "description": "Job id (for remove/enable/disable)"},
		},
		"required": []string{"action"},
	}
}

func (t *CronTool) Execute(ctx context.Context, args map[string]any) *Result {
	if t.store == nil {
		return ErrorResult("scheduling is unavailable: the database could not be opened")
	}
	action, _ := args["action"].(string)
	switch action {
	case "add":
		return t.add(ctx, args)
	case "list":
		return t.list(ctx)
	case "remove":
		return t.withID(ctx, args, "removed", t.store.RemoveJob)
	case "enable":
		return t.withID(ctx, args, "enabled", func(ctx context.Context, id string) error {
			return t.store.SetJobEnabled(ctx, id, true)
		})
	case "disable":
		return t.withID(ctx, args, "disabled", func(ctx context.Context, id string) error {
			return t.store.SetJobEnabled(ctx, id, false)
		})
	default:
		return ErrorResult(fmt.Sprintf("unknown action %q", action))
	}
}

func (t *CronTool) add(ctx context.Context, args map[string]any) *Result {
	name, _ := args["name"].(string)
	kind, _ := args["schedule_kind"].(string)
	value, _ := args["schedule_value"].(string)
	timezone, _ := args["timezone"].(string)
	task, _ := args["task"].(string)
	if name == "" || kind == "" || value == "" || task == "" {
		return ErrorResult("add requires name, schedule_kind, schedule_value, and task")
	}

	id, err := t.store.AddJob(ctx, name, kind, value, timezone, task)
	if err != nil {
		return ErrorResult(fmt.Sprintf("cannot add job: %v", err)).WithError(err)
	}
	return SilentResult(fmt.Sprintf("scheduled job %q (id %s)", name, id))
}

func (t *CronTool) list(ctx context.Context) *Result {
	jobs, err := t.store.ListJobs(ctx, true)
	if err != nil {
		return ErrorResult(fmt.Sprintf("cannot list jobs: %v", err)).WithError(err)
	}
	if len(jobs) == 0 {
		return SilentResult("No scheduled jobs.")
	}

	var b strings.Builder
	for _, j := range jobs {
		state := "enabled"
		if !j.Enabled {
			state = "disabled"
		}
		next := "never"
		if j.NextRun != nil {
			next = j.NextRun.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "%s [%s] %s %s (%s) next=%s task=%s\n",
			j.ID, state, j.Kind, j.Value, j.Name, next, j.Task)
		if j.LastErr != "" {
			fmt.Fprintf(&b, "  last error: %s\n", j.LastErr)
		}
	}
	return SilentResult(strings.TrimSpace(b.String()))
}

func (t *CronTool) withID(ctx context.Context, args map[string]any, verb string, fn func(context.Context, string) error) *Result {
	id, _ := args["id"].(string)
	if id == "" {
		return ErrorResult("id is required")
	}
	if err := fn(ctx, id); err != nil {
		return ErrorResult(fmt.Sprintf("cannot modify job %s: %v", id, err)).WithError(err)
	}
	return SilentResult(fmt.Sprintf("job %s %s", id, verb))
}
