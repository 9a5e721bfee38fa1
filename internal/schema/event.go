package schema

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a bus event.
type EventType string

const (
	EventSessionCreated          EventType = "SESSION_CREATED"
	EventSessionValidated        EventType = "SESSION_VALIDATED"
	EventSessionExpired          EventType = "SESSION_EXPIRED"
	EventSessionReconnected      EventType = "SESSION_RECONNECTED"
	EventReconciliationCompleted EventType = "RECONCILIATION_COMPLETED"
	EventSystemReady             EventType = "SYSTEM_READY"
)

// Event is the unit published on the in-process bus.
type Event struct {
	ID     string
	Type   EventType
	At     time.Time
	State  SessionState
	Reason string
	Fields map[string]string
}

// NewEvent builds an event stamped with a fresh ID and the current time.
func NewEvent(eventType EventType, state SessionState, reason string) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   eventType,
		At:     time.Now().UTC(),
		State:  state,
		Reason: reason,
	}
}

// NewSystemEvent builds an event that is not tied to a session state
// change, such as a reconciliation or recovery summary.
func NewSystemEvent(eventType EventType, reason string) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   eventType,
		At:     time.Now().UTC(),
		Reason: reason,
	}
}

// WithField attaches a key/value pair and returns the event.
func (e Event) WithField(key, value string) Event {
	if e.Fields == nil {
		e.Fields = make(map[string]string, 2)
	}
	e.Fields[key] = value
	return e
}
