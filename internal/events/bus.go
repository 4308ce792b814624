// Package events provides a pluggable event bus for assistant lifecycle
// events. The dashboard's realtime views subscribe to these to refresh
// without polling; a LocalEventBus covers single-pod deployments and
// RedisEventBus distributes across pods.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventType classifies event categories.
type EventType string

const (
	EventRunCompleted     EventType = "assistant.run.completed"
	EventChangeApplied    EventType = "assistant.change.applied"
	EventChangeFailed     EventType = "assistant.change.failed"
	EventActionRolledBack EventType = "assistant.action.rolled_back"
)

// Event represents a domain event in the dashboard backend.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	TenantID  string                 `json:"tenant_id"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler processes events of a subscribed type.
type EventHandler func(ctx context.Context, event *Event) error

// EventBus provides publish/subscribe for domain events.
type EventBus interface {
	// Publish sends an event to all subscribers of the event type.
	Publish(ctx context.Context, event *Event) error

	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) (unsubscribe func())

	// Close shuts down the event bus.
	Close() error
}

// ============================================================================
// LOCAL EVENT BUS (in-process, for single-pod deployments)
// ============================================================================

// LocalEventBus provides an in-memory pub/sub implementation.
// Suitable for single-process deployments; use RedisEventBus for multi-pod.
type LocalEventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]subscriberEntry
	closed      bool
}

type subscriberEntry struct {
	id      int
	handler EventHandler
}

var subscriberCounter int

// NewLocalEventBus creates a new in-memory event bus.
func NewLocalEventBus() *LocalEventBus {
	return &LocalEventBus{
		subscribers: make(map[EventType][]subscriberEntry),
	}
}

// Publish sends an event to all matching subscribers asynchronously.
// Delivery is detached from the caller's cancellation: publishers are
// typically HTTP handlers whose request context ends before the
// subscriber goroutines run.
func (b *LocalEventBus) Publish(ctx context.Context, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	handlers := b.subscribers[event.Type]
	for _, entry := range handlers {
		h := entry.handler
		go func() {
			if err := h(ctx, event); err != nil {
				slog.Warn("[EventBus] Handler error", "type", event.Type, "error", err)
			}
		}()
	}

	return nil
}

// Subscribe registers a handler for a specific event type.
func (b *LocalEventBus) Subscribe(eventType EventType, handler EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscriberCounter++
	id := subscriberCounter
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriberEntry{
		id:      id,
		handler: handler,
	})

	// Return unsubscribe function
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[eventType]
		for i, entry := range subs {
			if entry.id == id {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Close shuts down the event bus.
func (b *LocalEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = nil
	return nil
}
