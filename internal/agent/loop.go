// Package agent coordinates the runtime: it consumes inbound messages,
// assembles context, drives the provider/tool iteration, and persists the
// conversation.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

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

const (
	purposeChat = "chat"

	// Tool results longer than this are head+tail truncated before they
	// re-enter the context.
	maxToolResultChars = 4000

	// Emergency compression attempts per request when the provider reports
	// a context overflow.
	maxCompressionRetries = 2

	charsPerToken = 4
)

// Heartbeat replies that carry no information are suppressed instead of
// being forwarded to the user.
var noopRe = regexp.MustCompile(`(?i)^\s*(HEARTBEAT_OK|no.?op|nothing to do|all good)`)

// Provider errors that indicate the request outgrew the context window.
var overflowRe = regexp.MustCompile(`(?i)token|context|length|too long`)

// Agent is the message-processing coordinator. One Agent serves all
// channels; inbound messages are consumed sequentially.
type Agent struct {
	cfg      config.Config
	bus      *bus.Bus
	llm      *providers.Registry
	tools    *tools.Registry
	sessions *sessions.Store
	builder  *prompt.Builder
	resolver *users.Resolver
	learn    *learner.Learner

	ix        *memory.Index
	memoryDir string
	denyPats  []*regexp.Regexp

	// Where replies to system-origin messages (cron, heartbeat) land.
	defaultChannel string
	defaultChatID  string

	now   func() time.Time
	sleep func(time.Duration)
}

type Option func(*Agent)

func WithResolver(r *users.Resolver) Option  { return func(a *Agent) { a.resolver = r } }
func WithLearner(l *learner.Learner) Option  { return func(a *Agent) { a.learn = l } }
func WithNow(now func() time.Time) Option    { return func(a *Agent) { a.now = now } }
func WithSleep(f func(time.Duration)) Option { return func(a *Agent) { a.sleep = f } }

// WithMemory wires the memory index and directory used by the flush step.
func WithMemory(ix *memory.Index, dir string) Option {
	return func(a *Agent) { a.ix, a.memoryDir = ix, dir }
}

// WithDefaultRoute sets the channel and chat a system-origin reply is
// rewritten to when it is not a no-op.
func WithDefaultRoute(channel, chatID string) Option {
	return func(a *Agent) { a.defaultChannel, a.defaultChatID = channel, chatID }
}

func New(cfg config.Config, b *bus.Bus, llm *providers.Registry, reg *tools.Registry,
	sess *sessions.Store, builder *prompt.Builder, opts ...Option) *Agent {

	a := &Agent{
		cfg:            cfg,
		bus:            b,
		llm:            llm,
		tools:          reg,
		sessions:       sess,
		builder:        builder,
		memoryDir:      cfg.MemoryPath(),
		defaultChannel: "cli",
		defaultChatID:  "default",
		now:            time.Now,
		sleep:          time.Sleep,
	}
	for _, p := range cfg.Tools.ExecDenyPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			slog.Warn("invalid exec deny pattern, skipping", "pattern", p, "error", err)
			continue
		}
		a.denyPats = append(a.denyPats, re)
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run consumes inbound messages until the context is cancelled. Processing
// failures are logged and never stop the loop.
func (a *Agent) Run(ctx context.Context) error {
	for {
		msg, err := a.bus.ConsumeInbound(ctx)
		if err != nil {
			return err
		}
		if err := a.Process(ctx, msg); err != nil {
			slog.Error("message processing failed",
				"channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		}
	}
}

// ProcessDirect runs one message synchronously without touching the bus or
// session store and returns the final assistant text. Used by child agents
// and one-shot mode.
func (a *Agent) ProcessDirect(ctx context.Context, text string, maxIterations int) (string, error) {
	if maxIterations <= 0 {
		maxIterations = a.cfg.Agent.MaxIterations
	}
	system := a.builder.Build(ctx, prompt.Input{
		Channel:     "direct",
		ChatID:      "direct",
		UserMessage: text,
		Mode:        bus.ContextMinimal,
	})
	msgs := []providers.Message{
		{Role: providers.RoleSystem, Content: system},
		{Role: providers.RoleUser, Content: text},
	}
	st := &runState{
		maxIterations: maxIterations,
		toolCtx:       a.toolContext(ctx, bus.InboundMessage{Channel: "direct", ChatID: "direct"}, nil),
	}
	content, outcome := a.iterate(ctx, st, msgs)
	if outcome == learner.OutcomeError {
		return "", fmt.Errorf("direct processing failed: %s", content)
	}
	return content, nil
}

// Spawner adapts ProcessDirect for the spawn tool, capping the child agent
// at maxSubagentIterations.
func (a *Agent) Spawner() tools.Spawner {
	return func(ctx context.Context, task string) (string, error) {
		return a.ProcessDirect(ctx, task, a.cfg.Agent.MaxSubagentIterations)
	}
}

// runState carries per-request iteration state.
type runState struct {
	key           string
	persist       bool
	streamTo      string // channel to stream to, empty disables streaming
	chatID        string
	maxIterations int
	toolCtx       context.Context

	streamed     bool
	iterations   int
	toolCalls    int
	compressions int
	retriedOnce  bool
	usage        providers.Usage
}

// Process runs the full per-message pipeline for one inbound message.
func (a *Agent) Process(ctx context.Context, msg bus.InboundMessage) error {
	started := a.now()
	isSystem := msg.Channel == "system"

	profile := a.resolveUser(msg)
	scope := a.resolveScope(msg, profile)

	key := sessions.Key(msg.Channel, msg.ChatID)
	// Warms the cache from the on-disk transcript, so the first message
	// after a restart still sees the prior conversation.
	a.sessions.GetOrCreate(key)

	system := a.builder.Build(ctx, prompt.Input{
		Channel:        msg.Channel,
		ChatID:         msg.ChatID,
		UserMessage:    msg.Content,
		Mode:           msg.Mode,
		User:           profile,
		Scope:          scope,
		SessionSummary: a.sessions.Summary(key),
	})

	history := a.sessions.History(key)
	msgs := make([]providers.Message, 0, len(history)+2)
	msgs = append(msgs, providers.Message{Role: providers.RoleSystem, Content: system})
	msgs = append(msgs, history...)
	msgs = append(msgs, providers.Message{Role: providers.RoleUser, Content: msg.Content})
	msgs = a.trimToBudget(msgs)

	// The user message is on disk before the first provider call, so a
	// crash mid-iteration never loses it.
	if err := a.sessions.Append(key, providers.Message{Role: providers.RoleUser, Content: msg.Content}); err != nil {
		slog.Warn("session append failed", "key", key, "error", err)
	}

	st := &runState{
		key:           key,
		persist:       true,
		chatID:        msg.ChatID,
		maxIterations: a.cfg.Agent.MaxIterations,
		toolCtx:       a.toolContext(ctx, msg, profile),
	}
	if a.cfg.Streaming.Enabled && !isSystem {
		if _, ok := a.bus.Handler(msg.Channel); ok {
			st.streamTo = msg.Channel
		}
	}

	content, outcome := a.iterate(ctx, st, msgs)

	if err := a.sessions.Append(key, providers.Message{Role: providers.RoleAssistant, Content: content}); err != nil {
		slog.Warn("session append failed", "key", key, "error", err)
	}
	a.sessions.AccumulateTokens(key, int64(st.usage.PromptTokens), int64(st.usage.CompletionTokens))

	a.recordMetric(msg.Content, outcome, started, st)
	a.maybeSummarize(key)

	if st.streamed {
		return nil
	}

	outChannel, outChatID := msg.Channel, msg.ChatID
	if isSystem {
		if noopRe.MatchString(content) {
			slog.Debug("suppressing no-op system reply", "chat_id", msg.ChatID)
			return nil
		}
		outChannel, outChatID = a.defaultChannel, a.defaultChatID
	}
	return a.bus.PublishOutbound(ctx, bus.OutboundMessage{
		Channel:   outChannel,
		ChatID:    outChatID,
		Content:   content,
		Type:      bus.TypeMessage,
		Timestamp: a.now(),
	})
}

func (a *Agent) resolveUser(msg bus.InboundMessage) *users.Profile {
	if a.resolver == nil || msg.User == nil {
		return nil
	}
	if msg.User.UserID != "" {
		if p := a.resolver.ByID(msg.User.UserID); p != nil {
			return p
		}
	}
	return a.resolver.Resolve(msg.Channel, msg.User.ChannelUserID, msg.User.ChannelUsername)
}

func (a *Agent) resolveScope(msg bus.InboundMessage, profile *users.Profile) *memory.Scope {
	if msg.Scope != nil {
		return &memory.Scope{Kind: string(msg.Scope.Kind), ID: msg.Scope.ID}
	}
	if profile != nil {
		return &memory.Scope{Kind: memory.ScopeUser, ID: profile.ID}
	}
	return nil
}

func (a *Agent) toolContext(ctx context.Context, msg bus.InboundMessage, profile *users.Profile) context.Context {
	ctx = tools.WithWorkspace(ctx, config.ExpandHome(a.cfg.Workspace.Dir))
	ctx = tools.WithChannel(ctx, msg.Channel)
	ctx = tools.WithChatID(ctx, msg.ChatID)
	if scope := a.resolveScope(msg, profile); scope != nil {
		ctx = tools.WithScope(ctx, scope)
	}
	ctx = tools.WithDenyPatterns(ctx, a.denyPats)
	ctx = tools.WithExecTimeout(ctx, time.Duration(a.cfg.Tools.ExecTimeoutMs)*time.Millisecond)
	ctx = tools.WithMaxFileSize(ctx, a.cfg.Tools.MaxFileSize)
	if profile != nil {
		ctx = tools.WithUserID(ctx, profile.ID)
		ctx = tools.WithAllowList(ctx, profile.Tools.Allow)
		ctx = tools.WithDenyList(ctx, profile.Tools.Deny)
		ctx = tools.WithContentPolicy(ctx, profile.Content)
	}
	return ctx
}

// iterate drives the provider/tool loop until a final text reply, an
// unrecoverable error, or the iteration cap.
func (a *Agent) iterate(ctx context.Context, st *runState, msgs []providers.Message) (content, outcome string) {
	var defs []providers.ToolDefinition
	if a.tools != nil {
		defs = a.tools.Definitions(tools.AllowListFromCtx(st.toolCtx), tools.DenyListFromCtx(st.toolCtx))
	}

	for st.iterations < st.maxIterations {
		st.iterations++
		req := providers.ChatRequest{
			Messages:    msgs,
			Tools:       defs,
			MaxTokens:   a.cfg.LLM.MaxTokens,
			Temperature: a.cfg.LLM.Temperature,
		}

		var resp *providers.ChatResponse
		var err error
		if st.streamTo != "" {
			resp, err = a.llm.ChatStream(ctx, purposeChat, req, func(c providers.StreamChunk) {
				if c.Content != "" {
					a.bus.StreamTo(st.streamTo, st.chatID, bus.TypeChunk, c.Content)
					st.streamed = true
				}
			})
		} else {
			resp, err = a.llm.Chat(ctx, purposeChat, req)
		}
		if err != nil {
			if overflowRe.MatchString(err.Error()) && st.compressions < maxCompressionRetries {
				st.compressions++
				st.iterations--
				msgs = compress(msgs)
				slog.Warn("context overflow, compressing", "attempt", st.compressions, "messages", len(msgs))
				continue
			}
			// The retry policy grants one extra attempt per request; provider
			// failover already happened inside the registry call.
			if a.cfg.Agent.OnLLMError == "retry" && !st.retriedOnce {
				st.retriedOnce = true
				st.iterations--
				a.sleep(time.Second)
				continue
			}
			content = fmt.Sprintf("Error: the model request failed: %v", err)
			if st.streamed {
				a.bus.StreamTo(st.streamTo, st.chatID, bus.TypeChunk, content)
				a.bus.StreamTo(st.streamTo, st.chatID, bus.TypeStreamEnd, "")
			}
			return content, learner.OutcomeError
		}
		st.usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			if st.streamed {
				a.bus.StreamTo(st.streamTo, st.chatID, bus.TypeStreamEnd, "")
			}
			return resp.Content, learner.OutcomeSuccess
		}

		assistant := providers.Message{
			Role:      providers.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		msgs = append(msgs, assistant)
		a.persistMsg(st, assistant)

		for _, call := range resp.ToolCalls {
			st.toolCalls++
			result := a.executeWithRetry(st.toolCtx, call)
			toolMsg := providers.Message{
				Role:       providers.RoleTool,
				Content:    truncateResult(result.ForLLM),
				ToolCallID: call.ID,
			}
			msgs = append(msgs, toolMsg)
			a.persistMsg(st, toolMsg)

			if result.ForUser != "" && !result.Silent {
				if err := a.bus.PublishOutbound(ctx, bus.OutboundMessage{
					Channel: tools.ChannelFromCtx(st.toolCtx), ChatID: st.chatID,
					Content: result.ForUser, Type: bus.TypeMessage, Timestamp: a.now(),
				}); err != nil {
					slog.Warn("tool user message dropped", "tool", call.Name, "error", err)
				}
			}
		}
	}

	if st.streamed {
		a.bus.StreamTo(st.streamTo, st.chatID, bus.TypeStreamEnd, "")
	}
	return "I could not finish within the iteration limit. Partial progress is saved in the session.",
		learner.OutcomeMaxIterations
}

func (a *Agent) persistMsg(st *runState, msg providers.Message) {
	if !st.persist {
		return
	}
	if err := a.sessions.Append(st.key, msg); err != nil {
		slog.Warn("session append failed", "key", st.key, "error", err)
	}
}

// executeWithRetry runs one tool call, retrying transient-looking failures
// with linear backoff. Gate denials carry no Error: prefix and pass through
// untouched.
func (a *Agent) executeWithRetry(ctx context.Context, call providers.ToolCall) *tools.Result {
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	var result *tools.Result
	for attempt := 0; ; attempt++ {
		result = a.tools.Execute(ctx, call.Name, args)
		if !strings.HasPrefix(result.ForLLM, "Error:") || attempt >= a.cfg.Agent.ToolRetries {
			return result
		}
		a.sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
	}
}

// compress keeps the system message and drops the older half of the rest,
// then strips any orphaned tool-result prefix the cut may have created.
func compress(msgs []providers.Message) []providers.Message {
	if len(msgs) <= 2 {
		return msgs
	}
	rest := msgs[1:]
	rest = sessions.StripOrphanToolMessages(rest[len(rest)/2:])
	return append([]providers.Message{msgs[0]}, rest...)
}

// trimToBudget drops the oldest non-system messages until the rough token
// estimate fits the configured budget.
func (a *Agent) trimToBudget(msgs []providers.Message) []providers.Message {
	budget := a.cfg.Agent.TokenBudget
	if budget <= 0 {
		return msgs
	}
	for len(msgs) > 2 && estimateTokens(msgs) > budget {
		rest := sessions.StripOrphanToolMessages(msgs[2:])
		msgs = append(msgs[:1], rest...)
	}
	return msgs
}

func estimateTokens(msgs []providers.Message) int {
	total := 0
	for _, m := range msgs {
		total += len(m.Content) / charsPerToken
	}
	return total
}

// truncateResult applies a head+tail split so both the start and the end
// of a long tool result survive.
func truncateResult(s string) string {
	if len(s) <= maxToolResultChars {
		return s
	}
	half := maxToolResultChars / 2
	omitted := len(s) - maxToolResultChars
	return s[:half] + fmt.Sprintf("\n[... truncated %d characters ...]\n", omitted) + s[len(s)-half:]
}

func (a *Agent) recordMetric(task, outcome string, started time.Time, st *runState) {
	if a.learn == nil {
		return
	}
	rec := learner.Record{
		TaskExcerpt: excerpt(task, 200),
		Duration:    a.now().Sub(started),
		Iterations:  st.iterations,
		ToolCalls:   st.toolCalls,
		TokenUsage:  st.usage.TotalTokens,
		Outcome:     outcome,
		CreatedAt:   a.now(),
	}
	go func() {
		if err := a.learn.Record(context.Background(), rec); err != nil {
			slog.Debug("learner record failed", "error", err)
		}
	}()
}

func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
