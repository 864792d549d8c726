package core

import (
	"context"
	"time"
)

// EventType labels the lifecycle events an engine emits on behalf of an agent.
type EventType string

// Lifecycle event types.
const (
	EventStarted       EventType = "started"
	EventThinking      EventType = "thinking"
	EventToolExecuting EventType = "tool_executing"
	EventToolCompleted EventType = "tool_completed"
	EventCompleted     EventType = "completed"
)

// EventPayload carries the fields attached to a lifecycle event. Fields are
// populated per event type; unset fields stay zero.
type EventPayload struct {
	AgentName string         `json:"agent_name"`
	EngineID  string         `json:"engine_id,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Result    *AgentResult   `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// EventSink receives lifecycle events for delivery to a user. The runtime
// guarantees it never calls Emit with a user id other than the owning
// context's; the sink's delivery mechanism (WebSocket, queue, ...) is
// entirely external.
type EventSink interface {
	Emit(userID string, eventType EventType, payload EventPayload) error
}

// AgentRunner executes a named agent against a context. The runtime only
// sequences calls and records results; it never interprets their content.
type AgentRunner interface {
	Run(ctx context.Context, ec *ExecutionContext, agentName string) (AgentResult, error)
}

// AuditRecord is the tuple handed to an AuditRecorder. ResourceID is always
// an identifier minted by this runtime so the external audit store can
// correlate records by inspection.
type AuditRecord struct {
	RecordType string    `json:"record_type"`
	UserID     string    `json:"user_id"`
	ResourceID string    `json:"resource_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// AuditRecorder durably stores audit records. Durability is delegated; the
// runtime treats recording failures as non-fatal.
type AuditRecorder interface {
	Record(rec AuditRecord) error
}
