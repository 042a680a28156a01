// Package audit provides the audit-event contract and sinks. Writes are
// best-effort and never fail the agent turn.
package audit

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EventType discriminates audit events.
type EventType string

const (
	EventQuery               EventType = "query"
	EventSchemaChange        EventType = "schema_change"
	EventSafetyViolation     EventType = "safety_violation"
	EventConfirmationRequest EventType = "confirmation_request"
)

// Event is a single audit record. Unused fields stay zero for event
// types that do not carry them.
type Event struct {
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	User       string    `json:"user,omitempty"`
	Database   string    `json:"database,omitempty"`
	SQL        string    `json:"sql,omitempty"`
	Operation  string    `json:"operation,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Level      string    `json:"level,omitempty"`
	Success    bool      `json:"success,omitempty"`
	Approved   bool      `json:"approved,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Rows       *int      `json:"rows,omitempty"`
}

// QueryEvent records a query execution.
func QueryEvent(user, database, sql string, success bool, durationMS int64, rows *int) Event {
	return Event{
		Type: EventQuery, Timestamp: time.Now().UTC(),
		User: user, Database: database, SQL: sql,
		Success: success, DurationMS: durationMS, Rows: rows,
	}
}

// SchemaChangeEvent records an executed mutation.
func SchemaChangeEvent(user, database, operation, sql string, approved bool) Event {
	return Event{
		Type: EventSchemaChange, Timestamp: time.Now().UTC(),
		User: user, Database: database, Operation: operation, SQL: sql, Approved: approved,
	}
}

// SafetyViolationEvent records a blocked operation.
func SafetyViolationEvent(user, sql, reason, level string) Event {
	return Event{
		Type: EventSafetyViolation, Timestamp: time.Now().UTC(),
		User: user, SQL: sql, Reason: reason, Level: level,
	}
}

// ConfirmationRequestEvent records a held risky operation.
func ConfirmationRequestEvent(user, operation, sql, level string) Event {
	return Event{
		Type: EventConfirmationRequest, Timestamp: time.Now().UTC(),
		User: user, Operation: operation, SQL: sql, Level: level,
	}
}

// Sink receives audit events. Implementations are thread-safe; Log must
// never return an error to the caller.
type Sink interface {
	Log(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Log(Event) {}

// LogSink writes redacted audit events through zerolog.
type LogSink struct{}

// NewLogSink creates a zerolog-backed sink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

// Log emits the event at info level with redacted SQL.
func (s *LogSink) Log(event Event) {
	e := log.Info().
		Str("auditType", string(event.Type)).
		Time("timestamp", event.Timestamp)
	addEventFields(e, event)
	e.Msg("Audit event")
}

func addEventFields(e *zerolog.Event, event Event) {
	if event.User != "" {
		e.Str("user", event.User)
	}
	if event.Database != "" {
		e.Str("database", event.Database)
	}
	if event.SQL != "" {
		e.Str("sql", Redact(event.SQL))
	}
	if event.Operation != "" {
		e.Str("operation", event.Operation)
	}
	if event.Reason != "" {
		e.Str("reason", Redact(event.Reason))
	}
	if event.Level != "" {
		e.Str("level", event.Level)
	}
	if event.Type == EventQuery || event.Type == EventSchemaChange {
		e.Bool("success", event.Success || event.Approved)
		e.Int64("durationMs", event.DurationMS)
	}
	if event.Rows != nil {
		e.Int("rows", *event.Rows)
	}
}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

func (m MultiSink) Log(event Event) {
	for _, s := range m {
		s.Log(event)
	}
}
