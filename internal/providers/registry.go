package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/januslabs/janus/internal/config"
)

// Entry binds a provider instance to a model, a purpose list, and a
// failover priority. Lower priority values are tried first.
type Entry struct {
	Name     string
	Provider Provider
	Model    string
	Purposes []string
	Priority int
}

// Registry routes chat requests across configured providers by purpose,
// failing over down the priority order when a provider errors.
type Registry struct {
	entries []Entry
}

// NewRegistry builds a registry from config. The primary llm block becomes
// a priority-0 entry; llm.providers adds purpose-scoped alternates.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	r := &Registry{}

	if cfg.LLM.Provider != "" && cfg.LLM.APIKey != "" {
		p, err := build(cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.APIBase, cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		r.entries = append(r.entries, Entry{
			Name:     cfg.LLM.Provider,
			Provider: p,
			Model:    cfg.LLM.Model,
			Purposes: []string{"*"},
			Priority: 0,
		})
	}

	for _, pc := range cfg.LLM.Providers {
		p, err := build(pc.Provider, pc.APIKey, pc.APIBase, pc.Model)
		if err != nil {
			return nil, err
		}
		name := pc.Name
		if name == "" {
			name = pc.Provider
		}
		r.entries = append(r.entries, Entry{
			Name:     name,
			Provider: p,
			Model:    pc.Model,
			Purposes: pc.Purposes,
			Priority: pc.Priority,
		})
	}

	if len(r.entries) == 0 {
		return nil, fmt.Errorf("no providers configured: set an API key or llm.providers")
	}
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].Priority < r.entries[j].Priority
	})
	return r, nil
}

// build constructs a provider from its family name.
func build(provider, apiKey, apiBase, model string) (Provider, error) {
	switch strings.ToLower(provider) {
	case "anthropic":
		return NewAnthropicProvider(apiKey, apiBase, model), nil
	case "openai", "openrouter", "deepseek", "groq", "local":
		return NewOpenAIProvider(strings.ToLower(provider), apiKey, apiBase, model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// Register appends an entry directly, keeping priority order.
func (r *Registry) Register(e Entry) {
	r.entries = append(r.entries, e)
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].Priority < r.entries[j].Priority
	})
}

// Entries returns the routing table in priority order.
func (r *Registry) Entries() []Entry { return r.entries }

// ForPurpose selects the entries eligible for a purpose, in priority order.
// An entry matches when it declares the purpose or the wildcard "*". When
// nothing declares the purpose, every entry is eligible, so a registry with
// at least one entry never turns a request away.
func (r *Registry) ForPurpose(purpose string) []Entry {
	var matched []Entry
	for _, e := range r.entries {
		for _, p := range e.Purposes {
			if p == purpose || p == "*" {
				matched = append(matched, e)
				break
			}
		}
	}
	if len(matched) == 0 {
		return r.entries
	}
	return matched
}

// Chat routes the request by purpose, trying each eligible entry in priority
// order and returning the first success. Every failure is logged; when all
// entries fail, the last error comes back.
func (r *Registry) Chat(ctx context.Context, purpose string, req ChatRequest) (*ChatResponse, error) {
	entries := r.ForPurpose(purpose)
	if len(entries) == 0 {
		return nil, fmt.Errorf("no providers registered")
	}

	var lastErr error
	for _, e := range entries {
		resp, err := e.Provider.Chat(ctx, r.withModel(e, req))
		if err == nil {
			return resp, nil
		}
		lastErr = err
		slog.Warn("provider failed, trying next",
			"purpose", purpose, "provider", e.Name, "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("all providers failed for purpose %q: %w", purpose, lastErr)
}

// ChatStream is Chat with chunk delivery. Providers without native streaming
// are adapted: the full response content arrives as a single chunk followed
// by the done marker, so callers never need to special-case them.
func (r *Registry) ChatStream(ctx context.Context, purpose string, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	entries := r.ForPurpose(purpose)
	if len(entries) == 0 {
		return nil, fmt.Errorf("no providers registered")
	}

	var lastErr error
	for _, e := range entries {
		resp, err := r.streamOne(ctx, e, req, onChunk)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		slog.Warn("provider failed, trying next",
			"purpose", purpose, "provider", e.Name, "error", err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("all providers failed for purpose %q: %w", purpose, lastErr)
}

func (r *Registry) streamOne(ctx context.Context, e Entry, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	req = r.withModel(e, req)
	if s, ok := e.Provider.(Streamer); ok {
		return s.ChatStream(ctx, req, onChunk)
	}
	resp, err := e.Provider.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Content != "" {
		onChunk(StreamChunk{Content: resp.Content})
	}
	onChunk(StreamChunk{Done: true})
	return resp, nil
}

func (r *Registry) withModel(e Entry, req ChatRequest) ChatRequest {
	if req.Model == "" {
		if e.Model != "" {
			req.Model = e.Model
		} else {
			req.Model = e.Provider.DefaultModel()
		}
	}
	return req
}
