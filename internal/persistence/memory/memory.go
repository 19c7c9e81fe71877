// Package memory provides an in-process KV store and change bus. It backs the
// default single-process deployment and most tests.
package memory

import (
	"context"
	"sync"

	"github.com/example/courtboard/internal/persistence"
)

// Store keeps documents in a map guarded by a RWMutex.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string][]byte)}
}

// Read returns a copy of the stored document.
func (s *Store) Read(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, persistence.ErrClosed
	}
	value, ok := s.values[key]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Write stores a copy of value.
func (s *Store) Write(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return persistence.ErrClosed
	}
	s.values[key] = append([]byte(nil), value...)
	return nil
}

// Close makes further reads and writes fail.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Bus fans published payloads out to subscribers synchronously, in
// subscription order.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]func([]byte)
	order    map[string][]int
}

// NewBus returns a bus without subscribers.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string]map[int]func([]byte)), order: make(map[string][]int)}
}

// Publish delivers payload to every current subscriber of topic.
func (b *Bus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	handlers := make([]func([]byte), 0, len(b.order[topic]))
	for _, id := range b.order[topic] {
		if h, ok := b.handlers[topic][id]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(append([]byte(nil), payload...))
	}
	return nil
}

// Subscribe registers handler for topic. The subscription ends when the
// returned function is called or ctx is done.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler func([]byte)) (func(), error) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[int]func([]byte))
	}
	b.handlers[topic][id] = handler
	b.order[topic] = append(b.order[topic], id)
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { b.remove(topic, id) })
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			unsubscribe()
		}()
	}
	return unsubscribe, nil
}

// Subscribers returns the number of active subscriptions on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}

func (b *Bus) remove(topic string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers[topic], id)
	ids := b.order[topic]
	for i, existing := range ids {
		if existing == id {
			b.order[topic] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}
