package transport

import (
	"context"
	"sync"
)

// Bus is the process-to-process publish/subscribe primitive used for
// cross-process command delegation. Deployments back it with their broker;
// MemoryBus serves single-binary runs and tests.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(channel string, handler func(ctx context.Context, payload []byte))
}

// MemoryBus is an in-process Bus. Publishes are delivered synchronously in
// subscription order, which preserves per-publisher ordering.
type MemoryBus struct {
	mu       sync.Mutex
	handlers map[string][]func(ctx context.Context, payload []byte)
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]func(ctx context.Context, payload []byte))}
}

// Subscribe registers a handler for a channel.
func (b *MemoryBus) Subscribe(channel string, handler func(ctx context.Context, payload []byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[channel] = append(b.handlers[channel], handler)
}

// Publish delivers the payload to every subscriber of the channel.
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	handlers := make([]func(ctx context.Context, payload []byte), len(b.handlers[channel]))
	copy(handlers, b.handlers[channel])
	b.mu.Unlock()

	for _, handler := range handlers {
		handler(ctx, payload)
	}
	return nil
}
