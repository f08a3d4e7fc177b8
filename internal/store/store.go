// Package store defines the document and ephemeral store boundaries the game
// core talks to, plus helpers shared by every backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document or value is absent.
var ErrNotFound = errors.New("not found")

// Data is a JSON-shaped document body.
type Data map[string]any

// Document is one entry of a collection listing.
type Document struct {
	ID   string
	Path string
	Data Data
}

// Snapshot is what a subscriber receives for a single document.
type Snapshot struct {
	Path   string
	Data   Data
	Exists bool
}

// CancelFunc stops a subscription. It is safe to call more than once.
type CancelFunc func()

// SetOptions controls how Set writes a document.
type SetOptions struct {
	Merge bool
}

// SetOption configures a Set call.
type SetOption func(*SetOptions)

// Merge makes Set merge top-level fields into an existing document instead of
// replacing it.
func Merge() SetOption {
	return func(o *SetOptions) {
		o.Merge = true
	}
}

// ApplySetOptions folds options into a SetOptions value.
func ApplySetOptions(opts []SetOption) SetOptions {
	var o SetOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// DocumentStore is the per-room persistent store with push notifications.
// Delivery to subscribers is at-least-once and may coalesce changes.
type DocumentStore interface {
	Get(ctx context.Context, path string) (Data, error)
	Set(ctx context.Context, path string, data Data, opts ...SetOption) error
	Update(ctx context.Context, path string, data Data) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, collection string) ([]Document, error)
	Increment(ctx context.Context, path, field string, delta int64) (int64, error)
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (CancelFunc, error)
	SubscribeCollection(ctx context.Context, collection string, fn func([]Document)) (CancelFunc, error)
}

// EphemeralStore is the low-latency key/value store for timers and presence.
type EphemeralStore interface {
	SetValue(ctx context.Context, key string, value Data) error
	UpdateValue(ctx context.Context, key string, partial Data) error
	GetValue(ctx context.Context, key string) (Data, error)
	DeleteValue(ctx context.Context, key string) error
	SubscribeValue(ctx context.Context, key string, fn func(Snapshot)) (CancelFunc, error)
}

// Encode converts a typed value into a document body.
func Encode(v any) (Data, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}

// Decode converts a document body into a typed value.
func Decode(data Data, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Clone deep-copies a document body through its JSON form so stored values
// never alias caller memory.
func Clone(data Data) (Data, error) {
	if data == nil {
		return Data{}, nil
	}
	return Encode(data)
}
