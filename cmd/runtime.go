package cmd

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/januslabs/janus/internal/agent"
	"github.com/januslabs/janus/internal/bus"
	"github.com/januslabs/janus/internal/config"
	"github.com/januslabs/janus/internal/db"
	"github.com/januslabs/janus/internal/heartbeat"
	"github.com/januslabs/janus/internal/learner"
	"github.com/januslabs/janus/internal/memory"
	"github.com/januslabs/janus/internal/prompt"
	"github.com/januslabs/janus/internal/providers"
	"github.com/januslabs/janus/internal/scheduler"
	"github.com/januslabs/janus/internal/sessions"
	"github.com/januslabs/janus/internal/skills"
	"github.com/januslabs/janus/internal/tools"
	"github.com/januslabs/janus/internal/users"
)

// Gate confirmation timeouts per adapter kind.
const (
	interactiveGateTimeout = 30 * time.Second
	chatGateTimeout        = 60 * time.Second
)

// runtime holds the assembled subsystems for one process.
type runtime struct {
	cfg      config.Config
	bus      *bus.Bus
	database *db.DB
	sess     *sessions.Store
	tools    *tools.Registry
	catalog  []skills.Skill
	ix       *memory.Index
	agent    *agent.Agent
	jobStore *scheduler.Store
	sched    *scheduler.Scheduler
	watcher  *memory.Watcher
}

// buildRuntime assembles everything below the channel layer. The embedded
// store is optional: when it cannot be opened, memory search and cron are
// degraded and the learner falls back to a JSONL file.
func buildRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg, bus: bus.New(0)}

	llm, err := providers.NewRegistry(&cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Database.Enabled {
		d, err := db.Open(ctx, cfg.DatabasePath())
		if err != nil {
			slog.Warn("embedded store unavailable, running degraded", "error", err)
		} else {
			rt.database = d
		}
	}

	memDir := cfg.MemoryPath()
	if rt.database != nil {
		var ixOpts []memory.Option
		if cfg.Memory.VectorSearch {
			ixOpts = append(ixOpts, memory.WithEmbedder(memory.NewHashEmbedder()))
		}
		rt.ix = memory.NewIndex(rt.database.Conn(), ixOpts...)
		if err := memory.ReindexDir(ctx, rt.ix, memDir, "", "", ""); err != nil {
			slog.Warn("memory reindex failed", "error", err)
		}
		reindexUserMemories(ctx, rt.ix, cfg)

		if w, err := memory.NewWatcher(rt.ix, memDir); err != nil {
			slog.Warn("memory watcher unavailable", "error", err)
		} else {
			rt.watcher = w
		}
	}

	rt.sess, err = sessions.NewStore(cfg.SessionsPath())
	if err != nil {
		return nil, err
	}

	var learn *learner.Learner
	if rt.database != nil {
		learn = learner.New(rt.database.Conn())
	} else {
		learn = learner.NewFileBacked(filepath.Join(config.HomeDir(), "executions.jsonl"))
	}

	rt.catalog = skills.Load(cfg.SkillsPath(), filepath.Join(config.HomeDir(), "skills"))
	resolver := users.NewResolver(cfg.Users, config.HomeDir())

	workspace := config.ExpandHome(cfg.Workspace.Dir)
	rt.tools = tools.NewRegistry()
	rt.tools.Register(tools.NewExecTool(workspace))
	rt.tools.Register(tools.NewReadFileTool(workspace))
	rt.tools.Register(tools.NewWriteFileTool(workspace))
	rt.tools.Register(tools.NewEditFileTool(workspace))
	rt.tools.Register(tools.NewListDirTool(workspace))
	if rt.ix != nil {
		rt.tools.Register(tools.NewMemorySearchTool(rt.ix))
	}
	rt.tools.Register(tools.NewMemoryAppendTool(rt.ix, memDir))

	if rt.database != nil {
		rt.jobStore = scheduler.NewStore(rt.database.Conn())
		rt.tools.Register(tools.NewCronTool(scheduler.NewToolStore(rt.jobStore)))
		rt.sched = scheduler.New(rt.jobStore, rt.bus)
		if cfg.Heartbeat.Enabled {
			if err := heartbeat.Sync(ctx, rt.jobStore, cfg.WorkspacePath("HEARTBEAT.md")); err != nil {
				slog.Warn("heartbeat sync failed", "error", err)
			}
		}
	} else {
		rt.tools.Register(tools.NewCronTool(nil))
	}

	builder := prompt.NewBuilder(cfg,
		prompt.WithRegistry(rt.tools),
		prompt.WithSkills(rt.catalog),
		prompt.WithMemory(rt.ix, memDir),
		prompt.WithLearner(learn),
	)

	rt.agent = agent.New(cfg, rt.bus, llm, rt.tools, rt.sess, builder,
		agent.WithResolver(resolver),
		agent.WithLearner(learn),
		agent.WithMemory(rt.ix, memDir),
	)
	rt.tools.Register(tools.NewSpawnTool(rt.agent.Spawner()))

	return rt, nil
}

// reindexUserMemories indexes each declared user's private memory directory
// under their own scope.
func reindexUserMemories(ctx context.Context, ix *memory.Index, cfg config.Config) {
	for _, u := range cfg.Users {
		dir := filepath.Join(config.HomeDir(), "users", u.ID, "memory")
		if err := memory.ReindexDir(ctx, ix, dir, u.ID, memory.ScopeUser, u.ID); err != nil {
			slog.Warn("user memory reindex failed", "user", u.ID, "error", err)
		}
	}
}

// SetConfirmer installs the gate with the channel's confirmation service.
func (rt *runtime) SetConfirmer(c tools.Confirmer, timeout time.Duration) {
	if !rt.cfg.Gates.Enabled {
		return
	}
	rt.tools.SetGate(tools.NewGate(rt.cfg.Gates.ExecPatterns, c, timeout))
}

// Start launches the background subsystems: agent loop, outbound
// dispatcher, scheduler ticker, and memory watcher.
func (rt *runtime) Start(ctx context.Context) {
	go func() { _ = rt.agent.Run(ctx) }()
	go rt.bus.Dispatch(ctx)
	if rt.sched != nil {
		go rt.sched.Run(ctx)
	}
	if rt.watcher != nil {
		go rt.watcher.Run(ctx)
	}
}

func (rt *runtime) Close() {
	if rt.database != nil {
		if err := rt.database.Close(); err != nil {
			slog.Warn("store close failed", "error", err)
		}
	}
}
