package events

import (
	"context"
	"encoding/json"
	"server/config"
	"server/internal/database"
	"server/internal/logger"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Channel   string         `json:"channel,omitempty"`
	Action    string         `json:"action,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventBus fans events out to in-process subscribers and, when a cache
// client is available, across instances via pub/sub. With a nil client it
// degrades to in-process only, which is what the tests use.
type EventBus struct {
	cache       database.CacheClient
	config      config.Config
	log         logger.Logger
	mu          sync.RWMutex
	subscribers map[string][]func(Event)
	cancel      context.CancelFunc
}

func New(cache database.CacheClient, config config.Config) *EventBus {
	return &EventBus{
		cache:       cache,
		config:      config,
		log:         logger.New("EventBus"),
		subscribers: make(map[string][]func(Event)),
	}
}

func (b *EventBus) Publish(channel string, event Event) error {
	log := b.log.Function("Publish")

	b.mu.RLock()
	handlers := append([]func(Event){}, b.subscribers[channel]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}

	if b.cache == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return log.Err("failed to marshal event", err, "channel", channel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.cache.Do(ctx, b.cache.B().Publish().Channel(channel).Message(string(data)).Build()).Error(); err != nil {
		return log.Err("failed to publish event", err, "channel", channel)
	}

	return nil
}

// Subscribe registers an in-process handler for a channel.
func (b *EventBus) Subscribe(channel string, handler func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], handler)
}

// Listen attaches to the pub/sub backend so events published by other
// instances reach this one's subscribers. No-op without a cache client.
func (b *EventBus) Listen(channels ...string) {
	if b.cache == nil || len(channels) == 0 {
		return
	}

	log := b.log.Function("Listen")
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	go func() {
		err := b.cache.Receive(ctx, b.cache.B().Subscribe().Channel(channels...).Build(),
			func(msg valkey.PubSubMessage) {
				var event Event
				if err := json.Unmarshal([]byte(msg.Message), &event); err != nil {
					log.Warn("failed to unmarshal event", "channel", msg.Channel, "error", err)
					return
				}

				b.mu.RLock()
				handlers := append([]func(Event){}, b.subscribers[msg.Channel]...)
				b.mu.RUnlock()

				for _, handler := range handlers {
					handler(event)
				}
			})
		if err != nil && ctx.Err() == nil {
			log.Er("pub/sub receive loop exited", err)
		}
	}()
}

func (b *EventBus) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}
