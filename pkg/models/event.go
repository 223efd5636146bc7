package models

import "time"

// Event is an immutable entry in the observer notification log: workflow
// and node invocation lifecycle events, consumed by ObserverManager fan-out
// for live trace streaming and audit.
type Event struct {
	ID           string         `json:"id"`
	InvocationID string         `json:"invocation_id"`
	EventType    string         `json:"event_type"`
	Sequence     int64          `json:"sequence"`
	Payload      map[string]any `json:"payload,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Event type constants (dot notation for hierarchical categorization).
const (
	EventTypeInvocationStarted   = "invocation.started"
	EventTypeInvocationCompleted = "invocation.completed"
	EventTypeInvocationFailed    = "invocation.failed"
	EventTypeInvocationCancelled = "invocation.cancelled"

	EventTypeNodeStarted   = "node.started"
	EventTypeNodeCompleted = "node.completed"
	EventTypeNodeFailed    = "node.failed"
	EventTypeNodeRetrying  = "node.retrying"

	EventTypeMessageEnqueued = "message.enqueued"

	EventTypeErrorOccurred = "error.occurred"
)

// IsInvocationEvent returns true if the event is a workflow-invocation-level
// event.
func (e *Event) IsInvocationEvent() bool {
	switch e.EventType {
	case EventTypeInvocationStarted, EventTypeInvocationCompleted,
		EventTypeInvocationFailed, EventTypeInvocationCancelled:
		return true
	}
	return false
}

// IsNodeEvent returns true if the event is a node-invocation-level event.
func (e *Event) IsNodeEvent() bool {
	switch e.EventType {
	case EventTypeNodeStarted, EventTypeNodeCompleted, EventTypeNodeFailed, EventTypeNodeRetrying:
		return true
	}
	return false
}

// Validate validates the event structure.
func (e *Event) Validate() error {
	if e.InvocationID == "" {
		return &ValidationError{Field: "invocation_id", Message: "invocation ID is required"}
	}
	if e.EventType == "" {
		return &ValidationError{Field: "event_type", Message: "event type is required"}
	}
	return nil
}

// GetNodeID extracts the node ID from the event payload if present.
func (e *Event) GetNodeID() string {
	if e.Payload == nil {
		return ""
	}
	if nodeID, ok := e.Payload["node_id"].(string); ok {
		return nodeID
	}
	return ""
}

// GetError extracts the error message from the event payload if present.
func (e *Event) GetError() string {
	if e.Payload == nil {
		return ""
	}
	if err, ok := e.Payload["error"].(string); ok {
		return err
	}
	return ""
}
