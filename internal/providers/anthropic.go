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

const (
	anthropicBase    = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// AnthropicProvider talks to the Anthropic messages API.
type AnthropicProvider struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	client       *http.Client
	retry        RetryConfig
}

func NewAnthropicProvider(apiKey, apiBase, defaultModel string) *AnthropicProvider {
	if apiBase == "" {
		apiBase = anthropicBase
	}
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-20250514"
	}
	return &AnthropicProvider{
		name:         "anthropic",
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: 5 * time.Minute},
		retry:        DefaultRetryConfig(),
	}
}

func (p *AnthropicProvider) Name() string         { return p.name }
func (p *AnthropicProvider) DefaultModel() string { return p.defaultModel }

// Wire types for the messages API. Content is a block list; tool results
// ride in user messages, tool calls in assistant messages.

type anContent struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type anMessage struct {
	Role    string      `json:"role"`
	Content []anContent `json:"content"`
}

type anTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anRequest struct {
	Model     string      `json:"model"`
	System    string      `json:"system,omitempty"`
	Messages  []anMessage `json:"messages"`
	Tools     []anTool    `json:"tools,omitempty"`
	MaxTokens int         `json:"max_tokens"`
	Stream    bool        `json:"stream,omitempty"`
}

type anUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anResponse struct {
	Content    []anContent `json:"content"`
	StopReason string      `json:"stop_reason"`
	Usage      *anUsage    `json:"usage"`
}

// Chat sends a non-streaming messages request.
func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return retryDo(ctx, p.retry, p.name, func() (*ChatResponse, error) {
		return p.chat(ctx, req)
	})
}

func (p *AnthropicProvider) chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := p.do(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var out anResponse
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	return fromAnthropicResponse(&out), nil
}

// ChatStream consumes the SSE event stream, emitting text deltas as chunks.
func (p *AnthropicProvider) ChatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	return retryDo(ctx, p.retry, p.name, func() (*ChatResponse, error) {
		return p.chatStream(ctx, req, onChunk)
	})
}

type anStreamEvent struct {
	Type         string `json:"type"`
	ContentBlock *struct {
		Type  string         `json:"type"`
		ID    string         `json:"id"`
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	} `json:"content_block"`
	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Usage *anUsage `json:"usage"`
}

func (p *AnthropicProvider) chatStream(ctx context.Context, req ChatRequest, onChunk func(StreamChunk)) (*ChatResponse, error) {
	body, err := p.do(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var content strings.Builder
	var calls []ToolCall
	var partialArgs strings.Builder
	var stopReason string
	usage := &anUsage{}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev anStreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case "content_block_start":
			if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
				calls = append(calls, ToolCall{ID: ev.ContentBlock.ID, Name: ev.ContentBlock.Name})
				partialArgs.Reset()
			}
		case "content_block_delta":
			if ev.Delta == nil {
				continue
			}
			if ev.Delta.Text != "" {
				content.WriteString(ev.Delta.Text)
				onChunk(StreamChunk{Content: ev.Delta.Text})
			}
			if ev.Delta.PartialJSON != "" {
				partialArgs.WriteString(ev.Delta.PartialJSON)
			}
		case "content_block_stop":
			if len(calls) > 0 && partialArgs.Len() > 0 {
				args := map[string]any{}
				_ = json.Unmarshal([]byte(partialArgs.String()), &args)
				calls[len(calls)-1].Arguments = args
				partialArgs.Reset()
			}
		case "message_delta":
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				stopReason = ev.Delta.StopReason
			}
			if ev.Usage != nil {
				usage.OutputTokens = ev.Usage.OutputTokens
			}
		case "message_start":
			if ev.Usage != nil {
				usage.InputTokens = ev.Usage.InputTokens
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: read stream: %w", p.name, err)
	}
	onChunk(StreamChunk{Done: true})

	return &ChatResponse{
		Content:      content.String(),
		ToolCalls:    calls,
		FinishReason: stopReason,
		Usage: &Usage{
			PromptTokens:     usage.InputTokens,
			CompletionTokens: usage.OutputTokens,
			TotalTokens:      usage.InputTokens + usage.OutputTokens,
		},
	}, nil
}

func (p *AnthropicProvider) buildRequest(req ChatRequest, stream bool) anRequest {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	out := anRequest{Model: model, MaxTokens: maxTokens, Stream: stream}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			// The messages API takes the system prompt out of band.
			if out.System != "" {
				out.System += "\n\n"
			}
			out.System += m.Content
		case RoleTool:
			out.Messages = append(out.Messages, anMessage{
				Role: "user",
				Content: []anContent{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		case RoleAssistant:
			var blocks []anContent
			if m.Content != "" {
				blocks = append(blocks, anContent{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anContent{
					Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Arguments,
				})
			}
			if len(blocks) > 0 {
				out.Messages = append(out.Messages, anMessage{Role: "assistant", Content: blocks})
			}
		default:
			out.Messages = append(out.Messages, anMessage{
				Role:    "user",
				Content: []anContent{{Type: "text", Text: m.Content}},
			})
		}
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, anTool{
			Name: t.Name, Description: t.Description, InputSchema: t.Parameters,
		})
	}
	return out
}

func (p *AnthropicProvider) do(ctx context.Context, payload anRequest) (io.ReadCloser, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", p.name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.apiBase+"/messages", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

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

func fromAnthropicResponse(out *anResponse) *ChatResponse {
	resp := &ChatResponse{FinishReason: out.StopReason}
	var text strings.Builder
	for _, block := range out.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID: block.ID, Name: block.Name, Arguments: block.Input,
			})
		}
	}
	resp.Content = text.String()
	if out.Usage != nil {
		resp.Usage = &Usage{
			PromptTokens:     out.Usage.InputTokens,
			CompletionTokens: out.Usage.OutputTokens,
			TotalTokens:      out.Usage.InputTokens + out.Usage.OutputTokens,
		}
	}
	return resp
}
