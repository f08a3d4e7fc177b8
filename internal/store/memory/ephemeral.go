package memory

import (
	"context"
	"sync"

	"crewmate/internal/store"
)

// EphemeralStore is an in-process key/value store with push notifications
type EphemeralStore struct {
	mu       sync.RWMutex
	values   map[string]store.Data
	notifier *store.Notifier
}

// NewEphemeralStore creates an empty ephemeral store
func NewEphemeralStore() *EphemeralStore {
	return &EphemeralStore{
		values:   make(map[string]store.Data),
		notifier: store.NewNotifier(),
	}
}

// SetValue replaces the value at key.
func (s *EphemeralStore) SetValue(ctx context.Context, key string, value store.Data) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	clone, err := store.Clone(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.values[key] = clone
	s.mu.Unlock()

	s.notifier.Publish(key)
	return nil
}

// UpdateValue merges fields into the value at key, creating it if needed.
func (s *EphemeralStore) UpdateValue(ctx context.Context, key string, partial store.Data) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	next, err := store.ApplyWrite(s.values[key], partial, true)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.values[key] = next
	s.mu.Unlock()

	s.notifier.Publish(key)
	return nil
}

// GetValue returns a copy of the value at key.
func (s *EphemeralStore) GetValue(ctx context.Context, key string) (store.Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.Clone(value)
}

// DeleteValue removes the value at key.
func (s *EphemeralStore) DeleteValue(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	_, existed := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()

	if existed {
		s.notifier.Publish(key)
	}
	return nil
}

// SubscribeValue pushes the value at key after every change.
func (s *EphemeralStore) SubscribeValue(ctx context.Context, key string, fn func(store.Snapshot)) (store.CancelFunc, error) {
	return store.WatchDocument(ctx, s.notifier, s.GetValue, key, fn), nil
}

// Close cancels all subscriptions.
func (s *EphemeralStore) Close() error {
	s.notifier.Close()
	return nil
}
