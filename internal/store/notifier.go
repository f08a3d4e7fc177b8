package store

import (
	"context"
	"errors"
	"sync"
)

// Notifier fans change signals out to subscribers. Each subscriber has its
// own goroutine and a one-slot signal channel, so bursts of writes coalesce
// into a single re-read and a slow subscriber never blocks writers.
type Notifier struct {
	mu   sync.Mutex
	subs map[string]map[*subscription]struct{}
}

type subscription struct {
	signal chan struct{}
	cancel context.CancelFunc
}

// NewNotifier creates an empty notifier
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[string]map[*subscription]struct{}),
	}
}

// Watch runs deliver once immediately and again after every Publish that
// touches key. deliver never runs concurrently with itself.
func (n *Notifier) Watch(ctx context.Context, key string, deliver func(context.Context)) CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		signal: make(chan struct{}, 1),
		cancel: cancel,
	}
	sub.signal <- struct{}{}

	n.mu.Lock()
	if n.subs[key] == nil {
		n.subs[key] = make(map[*subscription]struct{})
	}
	n.subs[key][sub] = struct{}{}
	n.mu.Unlock()

	go func() {
		defer n.remove(key, sub)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.signal:
				deliver(ctx)
			}
		}
	}()

	return CancelFunc(cancel)
}

// Publish signals the subscribers of a document path and of its collection.
func (n *Notifier) Publish(path string) {
	collection, _ := Split(path)

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, key := range []string{path, collection} {
		for sub := range n.subs[key] {
			select {
			case sub.signal <- struct{}{}:
			default:
			}
		}
	}
}

// Close cancels every subscription.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, subs := range n.subs {
		for sub := range subs {
			sub.cancel()
		}
	}
}

func (n *Notifier) remove(key string, sub *subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subs[key], sub)
	if len(n.subs[key]) == 0 {
		delete(n.subs, key)
	}
}

// WatchDocument subscribes fn to a document, re-reading it through get on
// every signal. Read errors other than ErrNotFound skip the delivery.
func WatchDocument(
	ctx context.Context,
	n *Notifier,
	get func(context.Context, string) (Data, error),
	path string,
	fn func(Snapshot),
) CancelFunc {
	return n.Watch(ctx, path, func(ctx context.Context) {
		data, err := get(ctx, path)
		switch {
		case errors.Is(err, ErrNotFound):
			fn(Snapshot{Path: path})
		case err != nil:
			return
		default:
			fn(Snapshot{Path: path, Data: data, Exists: true})
		}
	})
}

// WatchCollection subscribes fn to every document of a collection.
func WatchCollection(
	ctx context.Context,
	n *Notifier,
	list func(context.Context, string) ([]Document, error),
	collection string,
	fn func([]Document),
) CancelFunc {
	return n.Watch(ctx, collection, func(ctx context.Context) {
		docs, err := list(ctx, collection)
		if err != nil {
			return
		}
		fn(docs)
	})
}
