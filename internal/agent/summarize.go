package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/januslabs/janus/internal/memory"
	"github.com/januslabs/janus/internal/providers"
)

const (
	purposeFlush     = "flush"
	purposeSummarize = "summarize"

	// How many recent messages survive a summarization pass.
	summarizeKeepLast = 4
)

const flushInstruction = `Extract important facts, decisions, and learnings from this conversation that are worth remembering long-term. Be brief and concrete. If nothing worth remembering, respond with NONE`

const summarizeInstruction = `Summarize concisely: decisions, key context, current state`

// maybeSummarize kicks off an asynchronous summarization pass when the
// session has grown past the message-count threshold or three quarters of
// the token budget.
func (a *Agent) maybeSummarize(key string) {
	history := a.sessions.History(key)
	overCount := len(history) > a.cfg.Agent.SummarizationThreshold
	overBudget := estimateTokens(history) > a.cfg.Agent.TokenBudget*3/4
	if !overCount && !overBudget {
		return
	}
	go func() {
		if err := a.summarizeSession(context.Background(), key); err != nil {
			slog.Warn("session summarization failed", "key", key, "error", err)
		}
	}()
}

// summarizeSession flushes durable facts from the older half of the
// transcript into today's daily note, then replaces that half with a
// rolling summary.
func (a *Agent) summarizeSession(ctx context.Context, key string) error {
	history := a.sessions.History(key)
	if len(history) <= summarizeKeepLast {
		return nil
	}
	firstHalf := history[:len(history)/2]

	if a.memoryDir != "" {
		a.flushToMemory(ctx, firstHalf)
	}

	resp, err := a.llm.Chat(ctx, purposeSummarize, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: summarizeInstruction},
			{Role: providers.RoleUser, Content: flatten(history)},
		},
		MaxTokens: a.cfg.LLM.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("summarize call: %w", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return nil
	}
	return a.sessions.Summarize(key, summary, summarizeKeepLast)
}

// flushToMemory asks a (possibly purpose-routed) model to extract durable
// facts and appends them to today's daily note. Failures are logged and
// never block summarization.
func (a *Agent) flushToMemory(ctx context.Context, msgs []providers.Message) {
	resp, err := a.llm.Chat(ctx, purposeFlush, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: flushInstruction},
			{Role: providers.RoleUser, Content: flatten(msgs)},
		},
		MaxTokens: a.cfg.LLM.MaxTokens,
	})
	if err != nil {
		slog.Warn("memory flush call failed", "error", err)
		return
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" || reply == "NONE" {
		return
	}

	now := a.now()
	if err := memory.AppendDailyNote(a.memoryDir, now, "## Session notes\n"+reply); err != nil {
		slog.Warn("daily note append failed", "error", err)
		return
	}
	if a.ix != nil {
		source := now.Format("2006-01-02") + ".md"
		if content := memory.ReadDailyNote(a.memoryDir, now); content != "" {
			if err := a.ix.IndexFile(ctx, source, content, memory.OwnerShared, memory.ScopeGlobal, ""); err != nil {
				slog.Warn("daily note reindex failed", "error", err)
			}
		}
	}
}

// flatten renders messages as a "role: content" transcript for the
// summarizer prompts.
func flatten(msgs []providers.Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		content := m.Content
		if content == "" && len(m.ToolCalls) > 0 {
			content = "(tool calls)"
		}
		if content == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, content)
	}
	return sb.String()
}
