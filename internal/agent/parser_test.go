package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forfd8960/postgres-agent/internal/llm"
	"github.com/forfd8960/postgres-agent/pkg/models"
)

func TestParseStructuredToolCall(t *testing.T) {
	d, err := ParseDecision(&llm.Response{
		ToolCall: &llm.ResponseToolCall{
			CallID:    "c1",
			Name:      "execute_query",
			Arguments: `{"sql":"SELECT 1"}`,
		},
	})
	require.NoError(t, err)
	require.Equal(t, models.DecisionToolCall, d.Type)
	assert.Equal(t, "execute_query", d.ToolCall.Name)
	assert.Equal(t, "c1", d.ToolCall.CallID)
	assert.Equal(t, "SELECT 1", d.ToolCall.Arguments["sql"])
}

// Structured calls win over textual content.
func TestParseStructuredToolCallPrecedence(t *testing.T) {
	d, err := ParseDecision(&llm.Response{
		Content: "calling a tool now",
		ToolCall: &llm.ResponseToolCall{
			Name:      "list_tables",
			Arguments: `{}`,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.DecisionToolCall, d.Type)
	assert.NotEmpty(t, d.ToolCall.CallID)
}

func TestParseMalformedArguments(t *testing.T) {
	tests := []string{
		`[1,2,3]`,
		`"just a string"`,
		`42`,
		`{broken`,
	}
	for _, args := range tests {
		_, err := ParseDecision(&llm.Response{
			ToolCall: &llm.ResponseToolCall{Name: "execute_query", Arguments: args},
		})
		var itc *InvalidToolCallError
		assert.ErrorAs(t, err, &itc, "arguments: %s", args)
	}
}

func TestParseTaggedJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    models.DecisionType
	}{
		{"reasoning", `{"type":"reasoning","thought":"check the schema"}`, models.DecisionReasoning},
		{"final", `{"type":"final_answer","content":"done"}`, models.DecisionFinalAnswer},
		{"tool", `{"type":"tool_call","tool_call":{"name":"list_tables","arguments":{"schema":"public"},"call_id":"c9"}}`, models.DecisionToolCall},
		{"fenced", "```json\n{\"type\":\"reasoning\",\"thought\":\"ok\"}\n```", models.DecisionReasoning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDecision(&llm.Response{Content: tt.content})
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Type)
		})
	}
}

// Content that is not a tagged object falls through to a final answer.
func TestParseRawContentIsFinalAnswer(t *testing.T) {
	tests := []string{
		"There are three users.",
		`{"not_a_decision": true}`,
		"{\"type\":\"unknown_variant\"}",
	}
	for _, content := range tests {
		d, err := ParseDecision(&llm.Response{Content: content})
		require.NoError(t, err, content)
		assert.Equal(t, models.DecisionFinalAnswer, d.Type, content)
		assert.Equal(t, content, d.Content)
	}
}

// A tagged tool_call with missing or bad fields is an invalid tool call,
// not a final answer.
func TestParseTaggedToolCallMissingFields(t *testing.T) {
	_, err := ParseDecision(&llm.Response{Content: `{"type":"tool_call"}`})
	var itc *InvalidToolCallError
	assert.ErrorAs(t, err, &itc)
}

func TestParseEmptyResponse(t *testing.T) {
	_, err := ParseDecision(&llm.Response{Content: "   "})
	var lerr *llm.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, llm.KindEmpty, lerr.Kind)
}
