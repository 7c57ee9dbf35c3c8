package tools

import (
	"context"
	"fmt"
)

// Spawner runs a task through a child agent and returns its final reply.
// The agent loop provides this; the indirection avoids a package cycle.
type Spawner func(ctx context.Context, task string) (string, error)

// SpawnTool delegates a self-contained task to a child agent with a smaller
// iteration budget.
type SpawnTool struct {
	spawn Spawner
}

func NewSpawnTool(spawn Spawner) *SpawnTool { return &SpawnTool{spawn: spawn} }

func (t *SpawnTool) Name() string { return "spawn" }
func (t *SpawnTool) Description() string {
	return "Delegate a self-contained task to a child agent and return its result"
}

func (t *SpawnTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{"type": "string", "description": "Complete task description for the child agent"},
		},
		"required": []string{"task"},
	}
}

func (t *SpawnTool) Execute(ctx context.Context, args map[string]any) *Result {
	task, _ := args["task"].(string)
	if task == "" {
		return ErrorResult("task is required")
	}
	if t.spawn == nil {
		return ErrorResult("subagents are not available in this mode")
	}

	reply, err := t.spawn(ctx, task)
	if err != nil {
		return ErrorResult(fmt.Sprintf("subagent failed: %v", err)).WithError(err)
	}
	return SilentResult(reply)
}
