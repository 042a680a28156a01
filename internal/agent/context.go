package agent

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"

	"github.com/forfd8960/postgres-agent/pkg/models"
)

const (
	// DefaultMaxMessages is the default message-count cap.
	DefaultMaxMessages = 50
	// DefaultMaxTokens is the default token-estimate cap.
	DefaultMaxTokens = 8000
)

// ContextStats summarizes the current conversation context.
type ContextStats struct {
	MessageCount          int `json:"message_count"`
	TokenEstimate         int `json:"token_estimate"`
	ExactTokens           int `json:"exact_tokens,omitempty"`
	UserMessageCount      int `json:"user_message_count"`
	AssistantMessageCount int `json:"assistant_message_count"`
	ToolMessageCount      int `json:"tool_message_count"`
}

// ConversationContext is the agent's append-only message log, bounded by
// a message count and a token estimate. Pruning drops the oldest
// non-system messages first and never removes the system prompt.
//
// Not safe for concurrent use; the owning agent accesses it from a
// single turn at a time.
type ConversationContext struct {
	messages    []models.Message
	maxMessages int
	maxTokens   int

	// Cached database schema injected into the system prompt.
	databaseSchema string

	codec tokenizer.Codec
}

// NewContext creates a context with the given caps. Non-positive caps
// fall back to the defaults.
func NewContext(maxMessages, maxTokens int) *ConversationContext {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	// The codec is used for display stats only. Pruning always uses the
	// 4-chars-per-token heuristic so behavior is reproducible.
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		codec = nil
	}
	return &ConversationContext{
		messages:    make([]models.Message, 0, maxMessages),
		maxMessages: maxMessages,
		maxTokens:   maxTokens,
		codec:       codec,
	}
}

// Append adds a message and prunes until both caps hold. Returns
// ErrContextTooLarge when pruning every non-system message still leaves
// the token estimate over the cap.
func (c *ConversationContext) Append(msg models.Message) error {
	c.messages = append(c.messages, msg)
	return c.prune()
}

// Messages returns the full message sequence in append order.
func (c *ConversationContext) Messages() []models.Message {
	return c.messages
}

// Recent returns the last n messages.
func (c *ConversationContext) Recent(n int) []models.Message {
	if n >= len(c.messages) {
		return c.messages
	}
	return c.messages[len(c.messages)-n:]
}

// MessagesByRole returns all messages with the given role, in order.
func (c *ConversationContext) MessagesByRole(role models.MessageRole) []models.Message {
	var out []models.Message
	for _, m := range c.messages {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

// LastAssistantMessage returns the most recent assistant message, or
// false when none exists.
func (c *ConversationContext) LastAssistantMessage() (models.Message, bool) {
	return c.lastByRole(models.RoleAssistant)
}

// LastUserMessage returns the most recent user message, or false when
// none exists.
func (c *ConversationContext) LastUserMessage() (models.Message, bool) {
	return c.lastByRole(models.RoleUser)
}

func (c *ConversationContext) lastByRole(role models.MessageRole) (models.Message, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == role {
			return c.messages[i], true
		}
	}
	return models.Message{}, false
}

// Clear removes all messages.
func (c *ConversationContext) Clear() {
	c.messages = c.messages[:0]
}

// Len returns the number of messages.
func (c *ConversationContext) Len() int {
	return len(c.messages)
}

// SetDatabaseSchema caches a rendered schema for prompt assembly.
func (c *ConversationContext) SetDatabaseSchema(schema string) {
	c.databaseSchema = schema
}

// DatabaseSchema returns the cached schema, if any.
func (c *ConversationContext) DatabaseSchema() string {
	return c.databaseSchema
}

// EstimateTokens returns ceil(total content chars / 4). The heuristic is
// fixed; it must not be replaced with a provider tokenizer because
// pruning behavior has to be identical across implementations.
func (c *ConversationContext) EstimateTokens() int {
	total := 0
	for _, m := range c.messages {
		total += len(m.Content)
	}
	return (total + 3) / 4
}

// Stats returns counts and token estimates for the current context.
// ExactTokens is a tokenizer-based count for display and audit; it plays
// no part in pruning.
func (c *ConversationContext) Stats() ContextStats {
	s := ContextStats{
		MessageCount:  len(c.messages),
		TokenEstimate: c.EstimateTokens(),
	}
	for _, m := range c.messages {
		switch m.Role {
		case models.RoleUser:
			s.UserMessageCount++
		case models.RoleAssistant:
			s.AssistantMessageCount++
		case models.RoleTool:
			s.ToolMessageCount++
		}
	}
	if c.codec != nil {
		for _, m := range c.messages {
			if n, err := c.codec.Count(m.Content); err == nil {
				s.ExactTokens += n
			}
		}
	}
	return s
}

// HistoryString renders the conversation as one role-tagged line per
// message.
func (c *ConversationContext) HistoryString() string {
	var b strings.Builder
	for i, m := range c.messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s]: %s", m.Role, m.Content)
	}
	return b.String()
}

// prune removes oldest non-system messages until both caps hold.
func (c *ConversationContext) prune() error {
	for len(c.messages) > c.maxMessages {
		if !c.dropOldestNonSystem() {
			break
		}
	}
	for c.EstimateTokens() > c.maxTokens {
		if !c.dropOldestNonSystem() {
			return ErrContextTooLarge
		}
	}
	return nil
}

// dropOldestNonSystem removes the oldest message that is not a system
// prompt. Returns false when only system messages remain.
func (c *ConversationContext) dropOldestNonSystem() bool {
	for i, m := range c.messages {
		if m.Role != models.RoleSystem {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return true
		}
	}
	return false
}
