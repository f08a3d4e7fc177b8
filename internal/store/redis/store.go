// Package redis provides a Redis-backed ephemeral store. Values are JSON
// strings with a TTL and every change is announced on a pub/sub channel, so
// several servers can share countdowns and presence.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"crewmate/internal/store"
)

const (
	keyPrefix     = "crewmate:"
	channelPrefix = "crewmate:changed:"
	maxRetries    = 5
)

// EphemeralStore keeps values in Redis.
type EphemeralStore struct {
	client *redis.Client
	ttl    time.Duration

	mu      sync.Mutex
	cancels []context.CancelFunc
}

// New creates a store on an existing client. Values expire after ttl.
func New(client *redis.Client, ttl time.Duration) *EphemeralStore {
	return &EphemeralStore{client: client, ttl: ttl}
}

// Open connects to addr and pings the server.
func Open(ctx context.Context, addr, password string, ttl time.Duration) (*EphemeralStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, ttl), nil
}

// Close cancels subscriptions and closes the client.
func (s *EphemeralStore) Close() error {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.cancels = nil
	s.mu.Unlock()
	return s.client.Close()
}

// SetValue replaces the value at key.
func (s *EphemeralStore) SetValue(ctx context.Context, key string, value store.Data) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return s.publish(ctx, key)
}

// UpdateValue merges fields into the value at key with optimistic locking.
func (s *EphemeralStore) UpdateValue(ctx context.Context, key string, partial store.Data) error {
	redisKey := keyPrefix + key
	txf := func(tx *redis.Tx) error {
		existing, err := readValue(ctx, tx, redisKey)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		next, err := store.ApplyWrite(existing, partial, true)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, raw, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, txf, redisKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update %s: %w", key, err)
		}
		return s.publish(ctx, key)
	}
	return fmt.Errorf("update %s: too much contention", key)
}

// GetValue returns the value at key.
func (s *EphemeralStore) GetValue(ctx context.Context, key string) (store.Data, error) {
	return readValue(ctx, s.client, keyPrefix+key)
}

// DeleteValue removes the value at key.
func (s *EphemeralStore) DeleteValue(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return s.publish(ctx, key)
}

// SubscribeValue pushes the value at key after every change on any server.
func (s *EphemeralStore) SubscribeValue(ctx context.Context, key string, fn func(store.Snapshot)) (store.CancelFunc, error) {
	ctx, cancel := context.WithCancel(ctx)
	pubsub := s.client.Subscribe(ctx, channelPrefix+key)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", key, err)
	}

	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	deliver := func() {
		data, err := s.GetValue(ctx, key)
		switch {
		case errors.Is(err, store.ErrNotFound):
			fn(store.Snapshot{Path: key})
		case err != nil:
			return
		default:
			fn(store.Snapshot{Path: key, Data: data, Exists: true})
		}
	}

	go func() {
		defer pubsub.Close()
		deliver()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				deliver()
			}
		}
	}()

	return store.CancelFunc(cancel), nil
}

func (s *EphemeralStore) publish(ctx context.Context, key string) error {
	if err := s.client.Publish(ctx, channelPrefix+key, key).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readValue(ctx context.Context, c getter, redisKey string) (store.Data, error) {
	raw, err := c.Get(ctx, redisKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", redisKey, err)
	}
	var data store.Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", redisKey, err)
	}
	return data, nil
}
