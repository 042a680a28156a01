package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forfd8960/postgres-agent/pkg/models"
)

var testTools = []models.ToolDefinition{
	{Name: "execute_query", Description: "Run a SELECT query."},
	{Name: "list_tables", Description: "List table names."},
}

// The four sections appear in a fixed order: base role, tools, safety,
// format.
func TestSystemPromptSectionOrder(t *testing.T) {
	prompt := SystemPrompt(testTools, "")

	base := strings.Index(prompt, "PostgreSQL database assistant")
	toolsIdx := strings.Index(prompt, "Available tools:")
	safetyIdx := strings.Index(prompt, "Safety guidelines:")
	formatIdx := strings.Index(prompt, "Respond with a single JSON object")

	require.True(t, base >= 0 && toolsIdx > 0 && safetyIdx > 0 && formatIdx > 0)
	assert.Less(t, base, toolsIdx)
	assert.Less(t, toolsIdx, safetyIdx)
	assert.Less(t, safetyIdx, formatIdx)

	assert.Contains(t, prompt, "execute_query: Run a SELECT query.")
	assert.Contains(t, prompt, "list_tables: List table names.")
	assert.NotContains(t, prompt, "## Database Schema")
}

func TestSystemPromptWithSchema(t *testing.T) {
	prompt := SystemPrompt(testTools, "users(id int, name text)")
	assert.Contains(t, prompt, "## Database Schema")
	assert.Contains(t, prompt, "users(id int, name text)")
	// The schema comes after the format section.
	assert.Less(t, strings.Index(prompt, "Respond with a single JSON object"), strings.Index(prompt, "## Database Schema"))
}

func TestBuildRequest(t *testing.T) {
	msgs := []models.Message{
		models.SystemMessage("old system prompt"),
		models.UserMessage("list users"),
		models.AssistantMessage("querying"),
		models.ToolMessage(`{"row_count":3}`, "c1"),
	}

	req := BuildRequest("gpt-4o", 0, 4096, msgs, testTools, "")

	assert.Equal(t, "gpt-4o", req.Model)
	assert.Equal(t, float64(0), req.Temperature)
	assert.Equal(t, 4096, req.MaxTokens)
	assert.Equal(t, testTools, req.Tools)

	// System prompt first; the context's own system message is folded in
	// rather than duplicated.
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t, "assistant", req.Messages[2].Role)
	assert.Equal(t, "tool", req.Messages[3].Role)
	assert.Equal(t, "c1", req.Messages[3].ToolCallID)
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindTransport, Message: "connection refused"}
	assert.Equal(t, "llm transport error: connection refused", err.Error())
}
