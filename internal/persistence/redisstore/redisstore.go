// Package redisstore keeps the snapshot documents in Redis and uses Redis
// pub/sub as the change bus, so several instances share one board.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/courtboard/internal/persistence"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to keys and channels; empty means none.
	Prefix string
}

// Store implements persistence.KVStore and persistence.Bus.
type Store struct {
	client *redis.Client
	prefix string
}

// NewClient connects and pings the server with a short timeout.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	addr := opts.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping %s: %w", addr, err)
	}
	return client, nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Open connects and returns a Store owning the client.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client, err := NewClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	return New(client, opts.Prefix), nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

// Read returns persistence.ErrNotFound for missing keys.
func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	return data, nil
}

// Write stores value without expiry.
func (s *Store) Write(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set %s: %w", key, err)
	}
	return nil
}

// Publish sends payload on the topic channel.
func (s *Store) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := s.client.Publish(ctx, s.key(topic), payload).Err(); err != nil {
		return fmt.Errorf("redisstore: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe waits for the subscription to be confirmed, then delivers
// messages on a goroutine until the returned function is called or ctx ends.
func (s *Store) Subscribe(ctx context.Context, topic string, handler func([]byte)) (func(), error) {
	pubsub := s.client.Subscribe(ctx, s.key(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redisstore: subscribe %s: %w", topic, err)
	}

	var once sync.Once
	stop := func() { once.Do(func() { _ = pubsub.Close() }) }

	messages := pubsub.Channel()
	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	return stop, nil
}
