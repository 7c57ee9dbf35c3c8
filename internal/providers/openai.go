package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Default endpoints for the OpenAI-compatible family.
const (
	openAIBase     = "https://api.openai.com/v1"
	openRouterBase = "https://openrouter.ai/api/v1"
	deepSeekBase   = "https://api.deepseek.com/v1"
	groqBase       = "https://api.groq.com/openai/v1"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint:
// OpenAI itself, OpenRouter, DeepSeek, Groq, or a local server.
type OpenAIProvider struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	client       *http.Client
	retry        RetryConfig
}

// NewOpenAIProvider builds a client for the named OpenAI-compatible backend.
// An empty apiBase resolves from the name; unknown names get the OpenAI base.
func NewOpenAIProvider(name, apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if apiBase == "" {
		switch name {
		case "openrouter":
			apiBase = openRouterBase
		case "deepseek":
			apiBase = deepSeekBase
		case "groq":
			apiBase = groqBase
		default:
			apiBase = openAIBase
		}
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		name:         name,
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 5 * time.Minute},
		retry:        DefaultRetryConfig(),
	}
}

func (p *OpenAIProvider) Name() string         { return p.name }
func (p *OpenAIProvider) DefaultModel() string { return p.defaultModel }

// Wire types for the chat completions API.

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

type oaToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type oaRequest struct {
	Model       string      `json:"model"`
	Messages    []oaMessage `json:"messages"`
	Tools       []oaTool    `json:"tools,omitempty"`
	MaxTokens   int         `json:"max_tokens,omitempty"`
	Temperature float64     `json:"temperature,omitempty"`
	Stream      bool        `json:"stream,omitempty"`
}

type oaResponse struct {
	Choices []struct {
		Message      oaMessage `json:"message"`
		FinishReason string    `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

type oaStreamEvent struct {
	Choices []struct {
		Delta struct {
			Content   string       `json:"content"`
			ToolCalls []oaToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// Chat sends a non-streaming completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return retryDo(ctx, p.retry, p.name, func() (*ChatResponse, error) {
		return p.chat(ctx, req)
	})
}

func (p *OpenAIProvider) chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := p.do(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var out oaResponse
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty choices", p.name)
	}
	choice := out.Choices[0]
	return &ChatResponse{
		Content:      choice.Message.Content,
		ToolCalls:    fromOAToolCalls(choice.Message.ToolCalls),
		FinishReason: choice.FinishReason,
		Usage:        out.Usage,
	}, nil
}

// ChatStream sends a streaming request and invokes onChunk for each delta.
// The returned response aggregates the full content and any tool calls.
func (p *OpenAIProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	return retryDo(ctx, p.retry, p.name, func() (*ChatResponse, error) {
		return p.chatStream(ctx, req, onChunk)
	})
}

func (p *OpenAIProvider) chatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	body, err := p.do(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var content strings.Builder
	var calls []oaToolCall
	var finish string
	var usage *Usage

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var ev oaStreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		if ev.Usage != nil {
			usage = ev.Usage
		}
		if len(ev.Choices) == 0 {
			continue
		}
		delta := ev.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			onChunk(StreamChunk{Content: delta.Content})
		}
		calls = mergeStreamToolCalls(calls, delta.ToolCalls)
		if fr := ev.Choices[0].FinishReason; fr != "" {
			finish = fr
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: read stream: %w", p.name, err)
	}
	onChunk(StreamChunk{Done: true})

	return &ChatResponse{
		Content:      content.String(),
		ToolCalls:    fromOAToolCalls(calls),
		FinishReason: finish,
		Usage:        usage,
	}, nil
}

func (p *OpenAIProvider) buildRequest(req ChatRequest, stream bool) oaRequest {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	out := oaRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	for _, m := range req.Messages {
		om := oaMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var otc oaToolCall
			otc.ID = tc.ID
			otc.Type = "function"
			otc.Function.Name = tc.Name
			args, _ := json.Marshal(tc.Arguments)
			otc.Function.Arguments = string(args)
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		out.Messages = append(out.Messages, om)
	}
	for _, t := range req.Tools {
		var ot oaTool
		ot.Type = "function"
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.Parameters
		out.Tools = append(out.Tools, ot)
	}
	return out
}

func (p *OpenAIProvider) do(ctx context.Context, payload oaRequest) (io.ReadCloser, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", p.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &APIError{
			Provider:   p.name,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: parseRetryAfter(resp.Header),
		}
	}
	return resp.Body, nil
}

func fromOAToolCalls(calls []oaToolCall) []ToolCall {
	var out []ToolCall
	for _, c := range calls {
		args := map[string]any{}
		if c.Function.Arguments != "" {
			// Malformed arguments still surface the call; the tool layer
			// reports the validation error back to the model.
			_ = json.Unmarshal([]byte(c.Function.Arguments), &args)
		}
		out = append(out, ToolCall{ID: c.ID, Name: c.Function.Name, Arguments: args})
	}
	return out
}

// mergeStreamToolCalls accumulates tool call fragments from stream deltas.
// Providers send the name first, then argument text spread over many events.
func mergeStreamToolCalls(acc, deltas []oaToolCall) []oaToolCall {
	for _, d := range deltas {
		if d.ID != "" || len(acc) == 0 {
			acc = append(acc, d)
			continue
		}
		last := &acc[len(acc)-1]
		last.Function.Arguments += d.Function.Arguments
		if d.Function.Name != "" {
			last.Function.Name = d.Function.Name
		}
	}
	return acc
}
