// Package llm defines the provider contract the agent talks to, the
// prompt assembly, and the langchaingo-backed binding. The core never
// calls a vendor API directly.
package llm

import (
	"context"
	"fmt"

	"github.com/forfd8960/postgres-agent/pkg/models"
)

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	// KindTransport is a network or provider outage; retried with backoff.
	KindTransport ErrorKind = "transport"
	// KindRateLimited is a 429-equivalent; retried after the hint.
	KindRateLimited ErrorKind = "rate_limited"
	// KindParse is malformed provider output; recoverable once.
	KindParse ErrorKind = "parse"
	// KindEmpty is a response with no choices, or with neither content
	// nor a tool call.
	KindEmpty ErrorKind = "empty"
)

// Error is a provider failure with its kind.
type Error struct {
	Kind    ErrorKind
	Message string
	// RetryAfterSeconds is the provider's backoff hint, when present.
	RetryAfterSeconds int
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s error: %s", e.Kind, e.Message)
}

// ChatMessage is one provider-request message.
type ChatMessage struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// Request is the provider-shaped request built from context and tool
// catalog.
type Request struct {
	Model       string                  `json:"model"`
	Messages    []ChatMessage           `json:"messages"`
	Tools       []models.ToolDefinition `json:"tools,omitempty"`
	Temperature float64                 `json:"temperature"`
	MaxTokens   int                     `json:"max_tokens"`
	// JSONResponse requests json_object response format.
	JSONResponse bool `json:"-"`
}

// ResponseToolCall is a structured tool call from the provider. The
// arguments stay raw; the decision parser owns their validation.
type ResponseToolCall struct {
	CallID    string
	Name      string
	Arguments string
}

// Response is the first choice of a provider completion: either textual
// content or a single tool call.
type Response struct {
	Content  string
	ToolCall *ResponseToolCall
}

// ProviderInfo names the bound provider and model.
type ProviderInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Client is the LLM capability contract. Implementations are internally
// synchronized and shared between agents.
type Client interface {
	// GenerateDecision produces one completion for the request. The
	// response carries the first choice only.
	GenerateDecision(ctx context.Context, req Request) (*Response, error)

	// GenerateStructured prompts for output conforming to a JSON schema
	// and returns the decoded object.
	GenerateStructured(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error)

	// ProviderInfo reports the provider and model behind this client.
	ProviderInfo() ProviderInfo
}
