package agent

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/forfd8960/postgres-agent/internal/llm"
	"github.com/forfd8960/postgres-agent/pkg/models"
)

// ParseDecision normalizes a provider response into exactly one Decision.
// Rules, in order: a structured tool call wins; otherwise textual content
// that parses as a tagged JSON object is taken at its word; otherwise the
// raw content is the final answer.
func ParseDecision(resp *llm.Response) (models.Decision, error) {
	if resp.ToolCall != nil {
		return parseStructuredCall(resp.ToolCall)
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return models.Decision{}, &llm.Error{Kind: llm.KindEmpty, Message: "response has no content and no tool call"}
	}

	if d, ok := parseTaggedJSON(content); ok {
		if err := d.Validate(); err != nil {
			return models.Decision{}, &InvalidToolCallError{Details: err.Error()}
		}
		return d, nil
	}

	return models.FinalAnswer(content), nil
}

func parseStructuredCall(tc *llm.ResponseToolCall) (models.Decision, error) {
	args, err := decodeArguments(tc.Arguments)
	if err != nil {
		return models.Decision{}, &InvalidToolCallError{Details: err.Error()}
	}
	callID := tc.CallID
	if callID == "" {
		callID = newCallID()
	}
	return models.ToolCallDecision(models.ToolCall{
		Name:      tc.Name,
		Arguments: args,
		CallID:    callID,
	}), nil
}

// decodeArguments requires a JSON object; arrays and scalars are
// rejected.
func decodeArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %v", err)
	}
	return args, nil
}

// parseTaggedJSON attempts to read the content as a discriminated
// decision object. Markdown code fences around the object are tolerated.
func parseTaggedJSON(content string) (models.Decision, bool) {
	content = stripFences(content)
	if !strings.HasPrefix(content, "{") {
		return models.Decision{}, false
	}

	var probe struct {
		Type     models.DecisionType `json:"type"`
		Thought  string              `json:"thought"`
		Content  string              `json:"content"`
		ToolCall *struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
			CallID    string          `json:"call_id"`
		} `json:"tool_call"`
	}
	if err := json.Unmarshal([]byte(content), &probe); err != nil {
		return models.Decision{}, false
	}

	switch probe.Type {
	case models.DecisionReasoning:
		return models.Reasoning(probe.Thought), true
	case models.DecisionFinalAnswer:
		return models.FinalAnswer(probe.Content), true
	case models.DecisionToolCall:
		if probe.ToolCall == nil {
			return models.Decision{Type: models.DecisionToolCall}, true
		}
		args, err := decodeArguments(string(probe.ToolCall.Arguments))
		if err != nil {
			// A tagged tool_call with bad arguments is still a tool-call
			// attempt; surface it for validation to reject.
			return models.Decision{Type: models.DecisionToolCall}, true
		}
		callID := probe.ToolCall.CallID
		if callID == "" {
			callID = newCallID()
		}
		return models.ToolCallDecision(models.ToolCall{
			Name:      probe.ToolCall.Name,
			Arguments: args,
			CallID:    callID,
		}), true
	}
	return models.Decision{}, false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func newCallID() string {
	return "call-" + uuid.NewString()[:8]
}
