// Package tools holds the agent's tool surface: the registry with its
// allow/deny/gate enforcement pipeline and the built-in tool set.
package tools

import "context"

// Tool is one capability the model can invoke.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) *Result
}

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM  string `json:"for_llm"`           // content sent to the LLM
	ForUser string `json:"for_user,omitempty"` // content shown to the user
	Silent  bool   `json:"silent"`             // suppress user message
	IsError bool   `json:"is_error"`           // marks error
	Err     error  `json:"-"`                  // internal error (not serialized)
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func SilentResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM, Silent: true}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func UserResult(content string) *Result {
	return &Result{ForLLM: content, ForUser: content}
}

func (r *Result) WithError(err error) *Result {
	r.Err = err
	return r
}
