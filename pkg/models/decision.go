package models

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// DecisionType discriminates the three outcomes of a model call.
type DecisionType string

const (
	DecisionReasoning   DecisionType = "reasoning"
	DecisionToolCall    DecisionType = "tool_call"
	DecisionFinalAnswer DecisionType = "final_answer"
)

// Decision is the parsed outcome of one LLM response. Exactly one
// variant is populated, selected by Type.
type Decision struct {
	Type DecisionType `json:"type"`

	// Thought is the reasoning trace for DecisionReasoning.
	Thought string `json:"thought,omitempty"`

	// ToolCall is the invocation for DecisionToolCall.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// Content is the answer text for DecisionFinalAnswer.
	Content string `json:"content,omitempty"`
}

// Reasoning builds a reasoning decision.
func Reasoning(thought string) Decision {
	return Decision{Type: DecisionReasoning, Thought: thought}
}

// FinalAnswer builds a final-answer decision.
func FinalAnswer(content string) Decision {
	return Decision{Type: DecisionFinalAnswer, Content: content}
}

// ToolCallDecision builds a tool-call decision.
func ToolCallDecision(call ToolCall) Decision {
	return Decision{Type: DecisionToolCall, ToolCall: &call}
}

// Validate checks that exactly the fields required by the variant are set.
func (d Decision) Validate() error {
	switch d.Type {
	case DecisionReasoning:
		if d.Thought == "" {
			return fmt.Errorf("reasoning decision missing thought")
		}
	case DecisionToolCall:
		if d.ToolCall == nil || d.ToolCall.Name == "" {
			return fmt.Errorf("tool_call decision missing tool call")
		}
	case DecisionFinalAnswer:
		if d.Content == "" {
			return fmt.Errorf("final_answer decision missing content")
		}
	default:
		return fmt.Errorf("unknown decision type %q", d.Type)
	}
	return nil
}

// Render produces the canonical JSON form of the decision.
func (d Decision) Render() ([]byte, error) {
	return json.Marshal(d)
}

// ParseDecision parses the canonical JSON form produced by Render.
func ParseDecision(data []byte) (Decision, error) {
	var d Decision
	if err := json.Unmarshal(data, &d); err != nil {
		return Decision{}, err
	}
	if err := d.Validate(); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	CallID    string         `json:"call_id"`
}

// ToolResult wraps the outcome of one tool call.
type ToolResult struct {
	CallID     string `json:"call_id"`
	Tool       string `json:"tool"`
	Result     any    `json:"result"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// SuccessResult builds a successful tool result.
func SuccessResult(callID, tool string, result any, durationMS int64) ToolResult {
	return ToolResult{CallID: callID, Tool: tool, Result: result, Success: true, DurationMS: durationMS}
}

// FailureResult builds a failed tool result.
func FailureResult(callID, tool, errMsg string, durationMS int64) ToolResult {
	return ToolResult{CallID: callID, Tool: tool, Success: false, Error: errMsg, DurationMS: durationMS}
}

// ToolDefinition describes a tool to the LLM: a stable name, a
// human-readable description, and a JSON Schema for the parameters object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
