package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Registry events.
	EventAgentRegistered    EventType = "agent.registered"
	EventAgentRemoved       EventType = "agent.removed"
	EventAgentHealthChanged EventType = "agent.health_changed"
	EventAgentDiscovered    EventType = "agent.discovered"

	// Chat events.
	EventChatRouted EventType = "chat.routed"
	EventChatFailed EventType = "chat.failed"

	// Delegation events.
	EventDelegationStarted   EventType = "delegation.started"
	EventDelegationStep      EventType = "delegation.step"
	EventDelegationCompleted EventType = "delegation.completed"
	EventDelegationFailed    EventType = "delegation.failed"

	// Scheduler events.
	EventTaskFired EventType = "scheduler.task.fired"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event stamped now with a JSON-encoded payload.
func NewEvent(t EventType, payload any) Event {
	ev := Event{Type: t, Timestamp: time.Now()}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
