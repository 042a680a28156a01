package llm

import (
	"strings"

	"github.com/forfd8960/postgres-agent/pkg/models"
)

// The system prompt is composed of four sections in a fixed order:
// base role, tool documentation, safety guidelines, response format.

const basePrompt = `You are a PostgreSQL database assistant. You answer questions about the
connected database by planning and executing SQL through the provided tools.
Work step by step: inspect the schema before writing queries against
unfamiliar tables, prefer precise queries over broad scans, and summarize
results for the user in plain language.`

const safetyPrompt = `Safety guidelines:
- Only run the SQL needed to answer the question.
- Never attempt to drop, truncate, or grant; such statements are denied.
- Mutations may require explicit user confirmation before they execute.
- If a tool reports an error, adjust your approach instead of repeating
  the same call.`

const formatPrompt = `Respond with a single JSON object using one of these forms:
{"type":"reasoning","thought":"..."} to record an intermediate step,
{"type":"tool_call","tool_call":{"name":"...","arguments":{...},"call_id":"..."}} to invoke a tool,
{"type":"final_answer","content":"..."} to answer the user.
When native tool calling is available, call tools directly instead of the
JSON form.`

// SystemPrompt assembles the four-section system prompt, documenting the
// tool catalog and appending the cached database schema when present.
func SystemPrompt(tools []models.ToolDefinition, databaseSchema string) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	b.WriteString("\n\nAvailable tools:\n")
	for _, t := range tools {
		b.WriteString("- ")
		b.WriteString(t.Name)
		b.WriteString(": ")
		b.WriteString(t.Description)
		b.WriteByte('\n')
	}

	b.WriteString("\n")
	b.WriteString(safetyPrompt)
	b.WriteString("\n\n")
	b.WriteString(formatPrompt)

	if databaseSchema != "" {
		b.WriteString("\n\n## Database Schema\n\n")
		b.WriteString(databaseSchema)
	}
	return b.String()
}

// BuildRequest converts the conversation into a provider request. The
// system prompt goes first; conversation messages follow in append order.
func BuildRequest(model string, temperature float64, maxTokens int, msgs []models.Message, tools []models.ToolDefinition, databaseSchema string) Request {
	chat := make([]ChatMessage, 0, len(msgs)+1)
	chat = append(chat, ChatMessage{Role: "system", Content: SystemPrompt(tools, databaseSchema)})
	for _, m := range msgs {
		// The context's own system prompt is already folded into the
		// assembled system message.
		if m.Role == models.RoleSystem {
			continue
		}
		chat = append(chat, ChatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		})
	}
	return Request{
		Model:        model,
		Messages:     chat,
		Tools:        tools,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
		JSONResponse: false,
	}
}
