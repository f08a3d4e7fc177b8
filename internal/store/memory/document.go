// Package memory provides in-process store implementations. They back a
// single-server deployment and every test.
package memory

import (
	"context"
	"sort"
	"sync"

	"crewmate/internal/store"
)

// DocumentStore keeps documents in a map keyed by path
type DocumentStore struct {
	mu       sync.RWMutex
	docs     map[string]store.Data
	notifier *store.Notifier
}

// NewDocumentStore creates an empty document store
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs:     make(map[string]store.Data),
		notifier: store.NewNotifier(),
	}
}

// Get returns a copy of the document at path.
func (s *DocumentStore) Get(ctx context.Context, path string) (store.Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.docs[path]
	if !ok {
		return nil, store.ErrNotFound
	}
	return store.Clone(data)
}

// Set writes the document, merging into the existing one when asked.
func (s *DocumentStore) Set(ctx context.Context, path string, data store.Data, opts ...store.SetOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o := store.ApplySetOptions(opts)

	s.mu.Lock()
	next, err := store.ApplyWrite(s.docs[path], data, o.Merge)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.docs[path] = next
	s.mu.Unlock()

	s.notifier.Publish(path)
	return nil
}

// Update merges fields into an existing document.
func (s *DocumentStore) Update(ctx context.Context, path string, data store.Data) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	existing, ok := s.docs[path]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	next, err := store.ApplyWrite(existing, data, true)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.docs[path] = next
	s.mu.Unlock()

	s.notifier.Publish(path)
	return nil
}

// Delete removes the document. Deleting an absent document is not an error.
func (s *DocumentStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	_, existed := s.docs[path]
	delete(s.docs, path)
	s.mu.Unlock()

	if existed {
		s.notifier.Publish(path)
	}
	return nil
}

// List returns the direct children of a collection ordered by ID.
func (s *DocumentStore) List(ctx context.Context, collection string) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]store.Document, 0)
	for path, data := range s.docs {
		parent, id := store.Split(path)
		if parent != collection {
			continue
		}
		clone, err := store.Clone(data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, store.Document{ID: id, Path: path, Data: clone})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Increment atomically adds delta to a numeric field and returns the result.
// The document is created when absent.
func (s *DocumentStore) Increment(ctx context.Context, path, field string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	next, err := store.ApplyWrite(s.docs[path], store.Data{field: store.IncrementBy(delta)}, true)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	s.docs[path] = next
	s.mu.Unlock()

	s.notifier.Publish(path)
	return store.ToInt64(next[field])
}

// Subscribe pushes the document's current snapshot after every change.
func (s *DocumentStore) Subscribe(ctx context.Context, path string, fn func(store.Snapshot)) (store.CancelFunc, error) {
	return store.WatchDocument(ctx, s.notifier, s.Get, path, fn), nil
}

// SubscribeCollection pushes the collection's documents after every change.
func (s *DocumentStore) SubscribeCollection(ctx context.Context, collection string, fn func([]store.Document)) (store.CancelFunc, error) {
	return store.WatchCollection(ctx, s.notifier, s.List, collection, fn), nil
}

// Close cancels all subscriptions.
func (s *DocumentStore) Close() error {
	s.notifier.Close()
	return nil
}
