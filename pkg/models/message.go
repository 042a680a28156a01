// Package models contains domain models for the PostgreSQL agent.
package models

import (
	"time"

	json "github.com/goccy/go-json"
)

// MessageRole identifies the sender of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
	RoleSystem    MessageRole = "system"
)

// Message is a single entry in the conversation log. Messages are
// immutable once appended to a context.
type Message struct {
	Role       MessageRole `json:"role"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	SQL        string      `json:"sql,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

// UserMessage creates a new user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now().UTC()}
}

// AssistantMessage creates a new assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now().UTC()}
}

// ToolMessage creates a new tool observation message carrying the id of
// the tool call that produced it.
func ToolMessage(content, toolCallID string) Message {
	return Message{Role: RoleTool, Content: content, Timestamp: time.Now().UTC(), ToolCallID: toolCallID}
}

// SystemMessage creates a new system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content, Timestamp: time.Now().UTC()}
}

// WithSQL returns a copy of the message with the generated SQL attached.
func (m Message) WithSQL(sql string) Message {
	m.SQL = sql
	return m
}

// MarshalMessages serializes a message sequence as UTF-8 JSON.
func MarshalMessages(msgs []Message) ([]byte, error) {
	return json.Marshal(msgs)
}

// UnmarshalMessages restores a message sequence serialized with
// MarshalMessages.
func UnmarshalMessages(data []byte) ([]Message, error) {
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
