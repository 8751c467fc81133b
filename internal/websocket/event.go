package websocket

import (
	"encoding/json"
	"time"
)

// EventType is the change an event reports
type EventType string

const (
	EventTypeCreated  EventType = "created"
	EventTypeUpdated  EventType = "updated"
	EventTypeDeleted  EventType = "deleted"
	EventTypeWarning  EventType = "warning"
	EventTypeExceeded EventType = "exceeded"
)

// EntityType is the kind of record an event is about
type EntityType string

const (
	EntityTypeTransaction EntityType = "transaction"
	EntityTypeCategory    EntityType = "category"
	EntityTypeBudget      EntityType = "budget"
)

// Event is the frame pushed to clients. Type is "<entity>.<event type>".
type Event struct {
	Type      string      `json:"type"`
	Entity    EntityType  `json:"entity"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent stamps a new event with the current UTC time
func NewEvent(eventType EventType, entityType EntityType, payload interface{}) Event {
	return Event{
		Type:      string(entityType) + "." + string(eventType),
		Entity:    entityType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EntityEvents builds the lifecycle events of one entity type
type EntityEvents EntityType

var (
	Transactions = EntityEvents(EntityTypeTransaction)
	Categories   = EntityEvents(EntityTypeCategory)
	Budgets      = EntityEvents(EntityTypeBudget)
)

func (e EntityEvents) Created(payload interface{}) Event {
	return NewEvent(EventTypeCreated, EntityType(e), payload)
}

func (e EntityEvents) Updated(payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityType(e), payload)
}

// Deleted carries only the id of the removed record
func (e EntityEvents) Deleted(id string) Event {
	return NewEvent(EventTypeDeleted, EntityType(e), map[string]string{"id": id})
}

// BudgetAlert builds budget.exceeded when exceeded is set, budget.warning otherwise
func BudgetAlert(exceeded bool, payload interface{}) Event {
	if exceeded {
		return NewEvent(EventTypeExceeded, EntityTypeBudget, payload)
	}
	return NewEvent(EventTypeWarning, EntityTypeBudget, payload)
}
