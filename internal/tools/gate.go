package tools

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"
)

// Confirmer asks the user to approve a gated action. Implementations come
// from the channel adapters; they must resolve within their own timeout.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, prompt string) bool

func (f ConfirmerFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// Gate pairs destructive-command patterns with a confirmation service.
// Current policy matches only exec-tool shell commands.
type Gate struct {
	patterns  []*regexp.Regexp
	confirmer Confirmer
	timeout   time.Duration
}

// NewGate compiles case-insensitive patterns; invalid patterns are skipped
// with a warning.
func NewGate(patterns []string, confirmer Confirmer, timeout time.Duration) *Gate {
	g := &Gate{confirmer: confirmer, timeout: timeout}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			slog.Warn("invalid gate pattern skipped", "pattern", p, "error", err)
			continue
		}
		g.patterns = append(g.patterns, re)
	}
	return g
}

// Matches reports whether a tool call needs confirmation, with a human
// description of the matched action.
func (g *Gate) Matches(toolName string, args map[string]any) (bool, string) {
	if toolName != "exec" {
		return false, ""
	}
	command, _ := args["command"].(string)
	if command == "" {
		return false, ""
	}
	for _, re := range g.patterns {
		if re.MatchString(command) {
			return true, fmt.Sprintf("exec: %s", command)
		}
	}
	return false, ""
}

// Confirm asks the confirmer with the gate timeout applied. No confirmer or
// a timeout means deny.
func (g *Gate) Confirm(ctx context.Context, desc string) bool {
	if g.confirmer == nil {
		return false
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	done := make(chan bool, 1)
	go func() { done <- g.confirmer.Confirm(ctx, desc) }()
	select {
	case ok := <-done:
		return ok
	case <-ctx.Done():
		slog.Warn("gate confirmation timed out, denying", "action", desc)
		return false
	}
}
