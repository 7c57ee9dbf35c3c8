package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/januslabs/janus/internal/bus"
	"github.com/januslabs/janus/internal/config"
	"github.com/januslabs/janus/internal/learner"
	"github.com/januslabs/janus/internal/memory"
	"github.com/januslabs/janus/internal/prompt"
	"github.com/januslabs/janus/internal/providers"
	"github.com/januslabs/janus/internal/sessions"
	"github.com/januslabs/janus/internal/tools"
	"github.com/januslabs/janus/internal/users"
)

// scriptedProvider replays a fixed response sequence and records every
// request it saw.
type scriptedProvider struct {
	name string

	mu       sync.Mutex
	calls    int
	requests []providers.ChatRequest
	script   func(call int, req providers.ChatRequest) (*providers.ChatResponse, error)
}

func (p *scriptedProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.requests = append(p.requests, req)
	return p.script(p.calls, req)
}

func (p *scriptedProvider) Name() string         { return p.name }
func (p *scriptedProvider) DefaultModel() string { return "scripted-1" }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *scriptedProvider) request(i int) providers.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

func reply(content string) *providers.ChatResponse {
	return &providers.ChatResponse{Content: content}
}

func registryOf(entries ...providers.Entry) *providers.Registry {
	r := &providers.Registry{}
	for _, e := range entries {
		r.Register(e)
	}
	return r
}

// recordingTool remembers whether it ran.
type recordingTool struct {
	name    string
	mu      sync.Mutex
	invoked int
	result  *tools.Result
}

func (t *recordingTool) Name() string               { return t.name }
func (t *recordingTool) Description() string        { return "test tool" }
func (t *recordingTool) Parameters() map[string]any { return map[string]any{"type": "object"} }

func (t *recordingTool) invocations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.invoked
}

func (t *recordingTool) Execute(context.Context, map[string]any) *tools.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.invoked++
	if t.result != nil {
		return t.result
	}
	return tools.NewResult("ok")
}

type fixture struct {
	cfg   config.Config
	bus   *bus.Bus
	sess  *sessions.Store
	tools *tools.Registry
	agent *Agent
}

func newFixture(t *testing.T, llm *providers.Registry, opts ...Option) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Workspace.Dir = t.TempDir()
	cfg.Streaming.Enabled = false
	t.Setenv("JANUS_HOME", t.TempDir())

	sess, err := sessions.NewStore(cfg.SessionsPath())
	require.NoError(t, err)

	b := bus.New(16)
	reg := tools.NewRegistry()
	builder := prompt.NewBuilder(cfg)

	opts = append([]Option{WithSleep(func(time.Duration) {})}, opts...)
	a := New(cfg, b, llm, reg, sess, builder, opts...)
	return &fixture{cfg: cfg, bus: b, sess: sess, tools: reg, agent: a}
}

func (f *fixture) outbound(t *testing.T) bus.OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := f.bus.ConsumeOutbound(ctx)
	require.NoError(t, err)
	return msg
}

func (f *fixture) noOutbound(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.bus.ConsumeOutbound(ctx)
	require.Error(t, err)
}

func TestFailoverWithSessionAndLearner(t *testing.T) {
	failing := &scriptedProvider{name: "fail", script: func(int, providers.ChatRequest) (*providers.ChatResponse, error) {
		return nil, errors.New("boom")
	}}
	good := &scriptedProvider{name: "good", script: func(int, providers.ChatRequest) (*providers.ChatResponse, error) {
		return reply("recovered"), nil
	}}
	llm := registryOf(
		providers.Entry{Name: "fail", Provider: failing, Purposes: []string{"*"}, Priority: 0},
		providers.Entry{Name: "good", Provider: good, Purposes: []string{"*"}, Priority: 1},
	)

	learnPath := filepath.Join(t.TempDir(), "executions.jsonl")
	f := newFixture(t, llm, WithLearner(learner.NewFileBacked(learnPath)))

	err := f.agent.Process(context.Background(), bus.InboundMessage{
		Channel: "cli", ChatID: "x", Content: "hi",
	})
	require.NoError(t, err)

	out := f.outbound(t)
	require.Equal(t, "recovered", out.Content)
	require.Equal(t, "cli", out.Channel)

	history := f.sess.History(sessions.Key("cli", "x"))
	require.Len(t, history, 2)
	require.Equal(t, providers.RoleUser, history[0].Role)
	require.Equal(t, "hi", history[0].Content)
	require.Equal(t, providers.RoleAssistant, history[1].Role)
	require.Equal(t, "recovered", history[1].Content)

	// The metric write is fire-and-forget.
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(learnPath)
		if err != nil {
			return false
		}
		return strings.Contains(string(data), `"outcome":"success"`) &&
			strings.Contains(string(data), `"iterations":1`)
	}, time.Second, 10*time.Millisecond)
}

func TestGateDenialSkipsExec(t *testing.T) {
	var sawDenial string
	provider := &scriptedProvider{name: "p"}
	provider.script = func(call int, req providers.ChatRequest) (*providers.ChatResponse, error) {
		if call == 1 {
			return &providers.ChatResponse{ToolCalls: []providers.ToolCall{{
				ID: "t1", Name: "exec", Arguments: map[string]any{"command": "rm -rf build/"},
			}}}, nil
		}
		last := req.Messages[len(req.Messages)-1]
		sawDenial = last.Content
		return reply("understood"), nil
	}
	llm := registryOf(providers.Entry{Name: "p", Provider: provider, Purposes: []string{"*"}})

	f := newFixture(t, llm)
	exec := &recordingTool{name: "exec"}
	f.tools.Register(exec)
	denyAll := tools.ConfirmerFunc(func(context.Context, string) bool { return false })
	f.tools.SetGate(tools.NewGate([]string{`rm\s`}, denyAll, time.Second))

	require.NoError(t, f.agent.Process(context.Background(), bus.InboundMessage{
		Channel: "cli", ChatID: "x", Content: "clean up the build dir",
	}))

	require.Equal(t, "understood", f.outbound(t).Content)
	require.True(t, strings.HasPrefix(sawDenial, "Action denied by user:"), "got %q", sawDenial)
	require.Zero(t, exec.invocations())
}

func TestPerUserToolDeny(t *testing.T) {
	var toolResult string
	provider := &scriptedProvider{name: "p"}
	provider.script = func(call int, req providers.ChatRequest) (*providers.ChatResponse, error) {
		if call == 1 {
			return &providers.ChatResponse{ToolCalls: []providers.ToolCall{{
				ID: "t1", Name: "exec", Arguments: map[string]any{"command": "ls"},
			}}}, nil
		}
		toolResult = req.Messages[len(req.Messages)-1].Content
		return reply("sorry, I cannot run commands for you"), nil
	}
	llm := registryOf(providers.Entry{Name: "p", Provider: provider, Purposes: []string{"*"}})

	f := newFixture(t, llm)
	f.cfg.Users = []config.UserConfig{{ID: "zuzia", Tools: config.PolicyConfig{Deny: []string{"exec"}}}}
	resolver := users.NewResolver(f.cfg.Users, config.HomeDir())
	WithResolver(resolver)(f.agent)

	exec := &recordingTool{name: "exec"}
	f.tools.Register(exec)

	require.NoError(t, f.agent.Process(context.Background(), bus.InboundMessage{
		Channel: "telegram", ChatID: "1", Content: "run ls",
		User: &bus.UserBinding{UserID: "zuzia"},
	}))

	require.Equal(t, `Error: Tool "exec" is not available for this user.`, toolResult)
	require.Zero(t, exec.invocations())
	require.Equal(t, "sorry, I cannot run commands for you", f.outbound(t).Content)
}

func TestEmergencyCompression(t *testing.T) {
	var secondCall providers.ChatRequest
	provider := &scriptedProvider{name: "p"}
	provider.script = func(call int, req providers.ChatRequest) (*providers.ChatResponse, error) {
		if call == 1 {
			return nil, errors.New("maximum context length exceeded")
		}
		if call == 2 {
			secondCall = req
		}
		return reply("Recovered after compression"), nil
	}
	llm := registryOf(providers.Entry{Name: "p", Provider: provider, Purposes: []string{"*"}})

	f := newFixture(t, llm)
	f.agent.cfg.Agent.SummarizationThreshold = 100
	key := sessions.Key("cli", "x")
	for i := 0; i < 20; i++ {
		role := providers.RoleUser
		if i%2 == 1 {
			role = providers.RoleAssistant
		}
		require.NoError(t, f.sess.Append(key, providers.Message{Role: role, Content: fmt.Sprintf("message %d", i)}))
	}

	require.NoError(t, f.agent.Process(context.Background(), bus.InboundMessage{
		Channel: "cli", ChatID: "x", Content: "continue",
	}))

	require.Equal(t, "Recovered after compression", f.outbound(t).Content)
	require.GreaterOrEqual(t, provider.callCount(), 2)

	// 21 non-system messages went into the first call; after one
	// compression at most half survive, and the system prompt stays first.
	nonSystem := 0
	for _, m := range secondCall.Messages {
		if m.Role != providers.RoleSystem {
			nonSystem++
		}
	}
	require.LessOrEqual(t, nonSystem, 11)
	require.Equal(t, providers.RoleSystem, secondCall.Messages[0].Role)
}

func TestSystemNoopSuppressed(t *testing.T) {
	provider := &scriptedProvider{name: "p", script: func(int, providers.ChatRequest) (*providers.ChatResponse, error) {
		return reply("HEARTBEAT_OK"), nil
	}}
	llm := registryOf(providers.Entry{Name: "p", Provider: provider, Purposes: []string{"*"}})

	f := newFixture(t, llm)
	require.NoError(t, f.agent.Process(context.Background(), bus.InboundMessage{
		Channel: "system", ChatID: "cron:abc", Content: "[Cron job: check]\n\ncheck things",
	}))
	f.noOutbound(t)
}

func TestSystemReplyRewrittenToDefaultRoute(t *testing.T) {
	provider := &scriptedProvider{name: "p", script: func(int, providers.ChatRequest) (*providers.ChatResponse, error) {
		return reply("Your train leaves at 9:40."), nil
	}}
	llm := registryOf(providers.Entry{Name: "p", Provider: provider, Purposes: []string{"*"}})

	f := newFixture(t, llm, WithDefaultRoute("telegram", "777"))
	require.NoError(t, f.agent.Process(context.Background(), bus.InboundMessage{
		Channel: "system", ChatID: "cron:abc", Content: "[Cron job: trains]\n\ncheck trains",
	}))

	out := f.outbound(t)
	require.Equal(t, "telegram", out.Channel)
	require.Equal(t, "777", out.ChatID)
	require.Equal(t, "Your train leaves at 9:40.", out.Content)
}

func TestMemoryFlushAndSummarize(t *testing.T) {
	provider := &scriptedProvider{name: "p"}
	provider.script = func(_ int, req providers.ChatRequest) (*providers.ChatResponse, error) {
		switch req.Messages[0].Content {
		case flushInstruction:
			return reply("- Decision: use SQLite for storage"), nil
		case summarizeInstruction:
			return reply("We picked a storage engine."), nil
		default:
			return reply("ok"), nil
		}
	}
	llm := registryOf(providers.Entry{Name: "p", Provider: provider, Purposes: []string{"*"}})

	f := newFixture(t, llm)
	memDir := f.cfg.MemoryPath()
	WithMemory(nil, memDir)(f.agent)

	key := sessions.Key("cli", "x")
	for i := 0; i < 10; i++ {
		require.NoError(t, f.sess.Append(key, providers.Message{Role: providers.RoleUser, Content: fmt.Sprintf("turn %d", i)}))
	}

	require.NoError(t, f.agent.summarizeSession(context.Background(), key))

	note := memory.ReadDailyNote(memDir, time.Now())
	require.Contains(t, note, "## Session notes")
	require.Contains(t, note, "- Decision: use SQLite for storage")

	require.Equal(t, "We picked a storage engine.", f.sess.Summary(key))
	require.Len(t, f.sess.History(key), 4)
}

func TestToolResultTruncation(t *testing.T) {
	long := strings.Repeat("a", 5000)
	out := truncateResult(long)
	require.Less(t, len(out), 4200)
	require.Contains(t, out, "[... truncated 1000 characters ...]")
	require.True(t, strings.HasPrefix(out, "aaaa"))
	require.True(t, strings.HasSuffix(out, "aaaa"))
}

func TestToolRetryOnErrorResult(t *testing.T) {
	provider := &scriptedProvider{name: "p"}
	provider.script = func(call int, req providers.ChatRequest) (*providers.ChatResponse, error) {
		if call == 1 {
			return &providers.ChatResponse{ToolCalls: []providers.ToolCall{{
				ID: "t1", Name: "flaky", Arguments: map[string]any{},
			}}}, nil
		}
		return reply("done"), nil
	}
	llm := registryOf(providers.Entry{Name: "p", Provider: provider, Purposes: []string{"*"}})

	f := newFixture(t, llm)
	flaky := &recordingTool{name: "flaky", result: tools.ErrorResult("Error: transient failure")}
	f.tools.Register(flaky)

	require.NoError(t, f.agent.Process(context.Background(), bus.InboundMessage{
		Channel: "cli", ChatID: "x", Content: "go",
	}))

	// One initial attempt plus toolRetries retries.
	require.Equal(t, f.cfg.Agent.ToolRetries+1, flaky.invocations())
	require.Equal(t, "done", f.outbound(t).Content)
}

func TestMaxIterationsFallback(t *testing.T) {
	provider := &scriptedProvider{name: "p", script: func(call int, _ providers.ChatRequest) (*providers.ChatResponse, error) {
		return &providers.ChatResponse{ToolCalls: []providers.ToolCall{{
			ID: fmt.Sprintf("t%d", call), Name: "noisy", Arguments: map[string]any{},
		}}}, nil
	}}
	llm := registryOf(providers.Entry{Name: "p", Provider: provider, Purposes: []string{"*"}})

	f := newFixture(t, llm)
	f.agent.cfg.Agent.MaxIterations = 3
	f.tools.Register(&recordingTool{name: "noisy"})

	require.NoError(t, f.agent.Process(context.Background(), bus.InboundMessage{
		Channel: "cli", ChatID: "x", Content: "loop forever",
	}))

	require.Equal(t, 3, provider.callCount())
	require.Contains(t, f.outbound(t).Content, "iteration limit")
}

func TestProcessDirectReturnsFinalText(t *testing.T) {
	provider := &scriptedProvider{name: "p", script: func(int, providers.ChatRequest) (*providers.ChatResponse, error) {
		return reply("direct answer"), nil
	}}
	llm := registryOf(providers.Entry{Name: "p", Provider: provider, Purposes: []string{"*"}})

	f := newFixture(t, llm)
	out, err := f.agent.ProcessDirect(context.Background(), "quick question", 0)
	require.NoError(t, err)
	require.Equal(t, "direct answer", out)

	// Nothing persisted and nothing published.
	require.Empty(t, f.sess.List())
	f.noOutbound(t)
}

func TestHistorySurvivesRestart(t *testing.T) {
	cfg := config.Default()
	cfg.Workspace.Dir = t.TempDir()
	cfg.Streaming.Enabled = false
	t.Setenv("JANUS_HOME", t.TempDir())

	key := sessions.Key("cli", "x")
	first, err := sessions.NewStore(cfg.SessionsPath())
	require.NoError(t, err)
	require.NoError(t, first.Append(key, providers.Message{Role: providers.RoleUser, Content: "my name is Zuzia"}))
	require.NoError(t, first.Append(key, providers.Message{Role: providers.RoleAssistant, Content: "Nice to meet you, Zuzia."}))

	// A fresh store over the same directory stands in for a process restart.
	sess, err := sessions.NewStore(cfg.SessionsPath())
	require.NoError(t, err)

	p := &scriptedProvider{name: "p", script: func(int, providers.ChatRequest) (*providers.ChatResponse, error) {
		return reply("hello again"), nil
	}}
	llm := registryOf(providers.Entry{Name: "p", Provider: p, Purposes: []string{"*"}})

	a := New(cfg, bus.New(16), llm, tools.NewRegistry(), sess, prompt.NewBuilder(cfg),
		WithSleep(func(time.Duration) {}))
	require.NoError(t, a.Process(context.Background(), bus.InboundMessage{
		Channel: "cli", ChatID: "x", Content: "what is my name?",
	}))

	req := p.request(0)
	var sawPrior bool
	for _, m := range req.Messages {
		if strings.Contains(m.Content, "my name is Zuzia") {
			sawPrior = true
		}
	}
	require.True(t, sawPrior, "on-disk transcript should be in the first request after a restart")
}

func TestLLMErrorRetriedOnce(t *testing.T) {
	flaky := &scriptedProvider{name: "flaky", script: func(int, providers.ChatRequest) (*providers.ChatResponse, error) {
		return nil, errors.New("upstream hiccup")
	}}
	llm := registryOf(providers.Entry{Name: "flaky", Provider: flaky, Purposes: []string{"*"}})

	f := newFixture(t, llm)
	f.agent.cfg.Agent.OnLLMError = "retry"

	err := f.agent.Process(context.Background(), bus.InboundMessage{
		Channel: "cli", ChatID: "r", Content: "hi",
	})
	require.NoError(t, err)

	out := f.outbound(t)
	require.Contains(t, out.Content, "the model request failed")
	// One original attempt plus exactly one retry.
	require.Equal(t, 2, flaky.callCount())
}
