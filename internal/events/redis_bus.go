// Package events — Redis-backed EventBus for cross-pod event distribution.
//
// In a multi-pod deployment, the LocalEventBus only delivers events within a
// single process. RedisEventBus uses Redis Pub/Sub so events published on pod
// 1 are received by subscribers on pod 2.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RedisPubSubClient is the minimal pub/sub surface this bus needs from a
// Redis client.
type RedisPubSubClient interface {
	// Publish sends a message to a Redis channel.
	Publish(ctx context.Context, channel string, message []byte) error

	// Subscribe registers a callback for messages on a channel.
	// Returns an unsubscribe function.
	Subscribe(ctx context.Context, channel string, handler func([]byte)) (unsubscribe func(), err error)
}

// RedisEventBus distributes events across pods using Redis Pub/Sub. Local
// subscriber bookkeeping is delegated to an embedded LocalEventBus; the
// Redis side only moves marshaled events between pods.
type RedisEventBus struct {
	pubsub RedisPubSubClient
	prefix string // Redis channel prefix, e.g. "agencydesk:events:"
	local  *LocalEventBus

	mu     sync.Mutex
	unsubs []func() // Redis unsubscribe functions for cleanup
}

// NewRedisEventBus creates a new Redis-backed event bus.
func NewRedisEventBus(client RedisPubSubClient, channelPrefix string) *RedisEventBus {
	if channelPrefix == "" {
		channelPrefix = "agencydesk:events:"
	}
	return &RedisEventBus{
		pubsub: client,
		prefix: channelPrefix,
		local:  NewLocalEventBus(),
	}
}

// Publish marshals the event onto the type's Redis channel. Subscribers on
// this pod receive it through their own Redis subscription like every other
// pod; when Redis is unreachable the event still reaches local subscribers.
func (b *RedisEventBus) Publish(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.pubsub.Publish(ctx, b.prefix+string(event.Type), data); err != nil {
		slog.Warn("[RedisEventBus] Publish failed, delivering locally only",
			"type", event.Type, "error", err)
		return b.local.Publish(ctx, event)
	}
	return nil
}

// Subscribe registers the handler locally and opens a Redis subscription on
// the event type's channel, so the handler sees events from all pods.
func (b *RedisEventBus) Subscribe(eventType EventType, handler EventHandler) func() {
	unsubLocal := b.local.Subscribe(eventType, handler)

	channel := b.prefix + string(eventType)
	unsubRedis, err := b.pubsub.Subscribe(context.Background(), channel, func(data []byte) {
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			slog.Warn("[RedisEventBus] Failed to unmarshal event", "error", err)
			return
		}
		_ = b.local.Publish(context.Background(), &event)
	})
	if err != nil {
		slog.Warn("[RedisEventBus] Redis subscribe failed, local-only mode",
			"type", eventType, "error", err)
	} else {
		b.mu.Lock()
		b.unsubs = append(b.unsubs, unsubRedis)
		b.mu.Unlock()
	}

	return unsubLocal
}

// Close tears down the Redis subscriptions and the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
	b.mu.Unlock()

	slog.Info("[RedisEventBus] Closed")
	return b.local.Close()
}
