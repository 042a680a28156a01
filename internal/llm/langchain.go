package llm

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/forfd8960/postgres-agent/pkg/models"
)

// LangchainClient binds the Client contract to any OpenAI-compatible
// endpoint through langchaingo.
type LangchainClient struct {
	model    llms.Model
	provider string
	name     string
}

// LangchainConfig configures the provider binding.
type LangchainConfig struct {
	// BaseURL overrides the API endpoint for OpenAI-compatible providers.
	BaseURL string
	APIKey  string
	Model   string
}

// NewLangchainClient creates a client for an OpenAI-compatible provider.
func NewLangchainClient(cfg LangchainConfig) (*LangchainClient, error) {
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &LangchainClient{model: model, provider: "openai", name: cfg.Model}, nil
}

// GenerateDecision sends the request and returns the first choice.
func (c *LangchainClient) GenerateDecision(ctx context.Context, req Request) (*Response, error) {
	content := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case "assistant":
			content = append(content, llms.TextParts(llms.ChatMessageTypeAI, m.Content))
		case "tool":
			content = append(content, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Content:    m.Content,
				}},
			})
		default:
			content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		}
	}

	opts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(convertTools(req.Tools)))
	}
	if req.JSONResponse {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := c.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindEmpty, Message: "provider returned no choices"}
	}

	// Only the first choice is consumed; subsequent ones are ignored.
	choice := resp.Choices[0]
	out := &Response{Content: choice.Content}
	if len(choice.ToolCalls) > 0 {
		tc := choice.ToolCalls[0]
		if tc.FunctionCall == nil {
			return nil, &Error{Kind: KindParse, Message: "tool call without function payload"}
		}
		out.ToolCall = &ResponseToolCall{
			CallID:    tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		}
	}

	log.Debug().
		Str("model", c.name).
		Bool("toolCall", out.ToolCall != nil).
		Msg("LLM response received")

	return out, nil
}

// GenerateStructured prompts for a JSON object conforming to the schema.
func (c *LangchainClient) GenerateStructured(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	full := fmt.Sprintf("%s\n\nRespond with a JSON object matching this schema:\n%s", prompt, schemaJSON)

	resp, err := c.model.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, full)},
		llms.WithJSONMode())
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: KindEmpty, Message: "provider returned no choices"}
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(resp.Choices[0].Content), &out); err != nil {
		return nil, &Error{Kind: KindParse, Message: err.Error()}
	}
	return out, nil
}

// ProviderInfo reports the bound provider and model.
func (c *LangchainClient) ProviderInfo() ProviderInfo {
	return ProviderInfo{Provider: c.provider, Model: c.name}
}

func convertTools(defs []models.ToolDefinition) []llms.Tool {
	out := make([]llms.Tool, len(defs))
	for i, d := range defs {
		out[i] = llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		}
	}
	return out
}

func classifyError(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") {
		return &Error{Kind: KindRateLimited, Message: msg}
	}
	return &Error{Kind: KindTransport, Message: msg}
}
