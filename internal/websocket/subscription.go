package websocket

import (
	"encoding/json"
	"strings"
	"sync"
)

// Subscription actions a client may send
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// ControlMessage is an inbound frame that changes which entity events a client receives
type ControlMessage struct {
	Action   string   `json:"action"`
	Entities []string `json:"entities"`
}

var knownEntities = map[EntityType]bool{
	EntityTypeTransaction: true,
	EntityTypeCategory:    true,
	EntityTypeBudget:      true,
}

// ParseEntities turns names like "budget,Transaction" into entity types, skipping unknown names
func ParseEntities(names []string) []EntityType {
	var entities []EntityType
	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			entity := EntityType(strings.ToLower(strings.TrimSpace(part)))
			if knownEntities[entity] {
				entities = append(entities, entity)
			}
		}
	}
	return entities
}

// Subscription is the set of entity types a client wants. Empty means everything.
type Subscription struct {
	mu       sync.RWMutex
	entities map[EntityType]bool
}

// NewSubscription creates a subscription to the given entities (all when none are given)
func NewSubscription(entities ...EntityType) *Subscription {
	s := &Subscription{entities: make(map[EntityType]bool)}
	s.Add(entities...)
	return s
}

// Add subscribes to more entity types
func (s *Subscription) Add(entities ...EntityType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		s.entities[e] = true
	}
}

// Remove drops entity types. Removing the last one goes back to receiving everything.
func (s *Subscription) Remove(entities ...EntityType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		delete(s.entities, e)
	}
}

// Matches reports whether event belongs to a subscribed entity
func (s *Subscription) Matches(event Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities) == 0 || s.entities[event.Entity]
}

// Apply handles a raw control frame. It returns false when the frame is not a valid control message.
func (s *Subscription) Apply(raw []byte) bool {
	var msg ControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return false
	}
	entities := ParseEntities(msg.Entities)
	switch msg.Action {
	case ActionSubscribe:
		s.Add(entities...)
	case ActionUnsubscribe:
		s.Remove(entities...)
	default:
		return false
	}
	return true
}
