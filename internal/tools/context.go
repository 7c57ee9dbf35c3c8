package tools

import (
	"context"
	"regexp"
	"time"

	"github.com/januslabs/janus/internal/memory"
)

// Tool execution context keys. The loop injects per-call state into context
// rather than mutating tool fields, keeping tools safe under concurrency.

type toolContextKey string

const (
	ctxWorkspace    toolContextKey = "tool_workspace"
	ctxChatID       toolContextKey = "tool_chat_id"
	ctxUserID       toolContextKey = "tool_user_id"
	ctxChannel      toolContextKey = "tool_channel"
	ctxAllowList    toolContextKey = "tool_allow_list"
	ctxDenyList     toolContextKey = "tool_deny_list"
	ctxDenyPatterns toolContextKey = "tool_deny_patterns"
	ctxExecTimeout  toolContextKey = "tool_exec_timeout"
	ctxMaxFileSize  toolContextKey = "tool_max_file_size"
	ctxPolicy       toolContextKey = "tool_content_policy"
	ctxScope        toolContextKey = "tool_memory_scope"
)

func WithWorkspace(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, ctxWorkspace, dir)
}

func WorkspaceFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxWorkspace).(string)
	return v
}

func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, ctxChatID, chatID)
}

func ChatIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxChatID).(string)
	return v
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}

func UserIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxUserID).(string)
	return v
}

func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ctxChannel, channel)
}

func ChannelFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxChannel).(string)
	return v
}

func WithAllowList(ctx context.Context, allow []string) context.Context {
	return context.WithValue(ctx, ctxAllowList, allow)
}

func AllowListFromCtx(ctx context.Context) []string {
	v, _ := ctx.Value(ctxAllowList).([]string)
	return v
}

func WithDenyList(ctx context.Context, deny []string) context.Context {
	return context.WithValue(ctx, ctxDenyList, deny)
}

func DenyListFromCtx(ctx context.Context) []string {
	v, _ := ctx.Value(ctxDenyList).([]string)
	return v
}

func WithDenyPatterns(ctx context.Context, patterns []*regexp.Regexp) context.Context {
	return context.WithValue(ctx, ctxDenyPatterns, patterns)
}

func DenyPatternsFromCtx(ctx context.Context) []*regexp.Regexp {
	v, _ := ctx.Value(ctxDenyPatterns).([]*regexp.Regexp)
	return v
}

func WithExecTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, ctxExecTimeout, d)
}

func ExecTimeoutFromCtx(ctx context.Context) time.Duration {
	v, _ := ctx.Value(ctxExecTimeout).(time.Duration)
	return v
}

func WithMaxFileSize(ctx context.Context, n int64) context.Context {
	return context.WithValue(ctx, ctxMaxFileSize, n)
}

func MaxFileSizeFromCtx(ctx context.Context) int64 {
	v, _ := ctx.Value(ctxMaxFileSize).(int64)
	return v
}

func WithContentPolicy(ctx context.Context, policy string) context.Context {
	return context.WithValue(ctx, ctxPolicy, policy)
}

func ContentPolicyFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxPolicy).(string)
	return v
}

// WithScope carries the conversation's memory scope so writes can land in
// the right visibility bucket.
func WithScope(ctx context.Context, scope *memory.Scope) context.Context {
	return context.WithValue(ctx, ctxScope, scope)
}

func ScopeFromCtx(ctx context.Context) *memory.Scope {
	v, _ := ctx.Value(ctxScope).(*memory.Scope)
	return v
}
