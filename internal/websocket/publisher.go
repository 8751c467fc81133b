package websocket

// EventPublisher pushes events to a user's live connections
type EventPublisher interface {
	Publish(userID string, event Event)
}

var _ EventPublisher = (*Hub)(nil)

// Publish broadcasts event to userID's connections
func (h *Hub) Publish(userID string, event Event) {
	h.Broadcast(userID, event)
}

// NoOpPublisher discards events
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(userID string, event Event) {}

// OrNoOp returns p, or a NoOpPublisher when p is nil
func OrNoOp(p EventPublisher) EventPublisher {
	if p == nil {
		return NoOpPublisher{}
	}
	return p
}
