// Package timer provides a countdown that knows nothing about game rules. It
// reports each tick and its expiry; callers decide what expiry means.
package timer

import (
	"sync"
	"time"
)

// Countdown counts whole steps down to zero on its own goroutine.
type Countdown struct {
	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// Start begins a countdown of seconds steps, one step per interval. onTick
// receives the remaining count right away and after every step that does not
// reach zero. When the count reaches zero the countdown marks itself stopped
// and then calls onExpire exactly once. Either callback may be nil.
func Start(seconds int, interval time.Duration, onTick func(remaining int), onExpire func()) *Countdown {
	c := &Countdown{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go c.run(seconds, interval, onTick, onExpire)
	return c
}

func (c *Countdown) run(remaining int, interval time.Duration, onTick func(int), onExpire func()) {
	defer close(c.done)

	if remaining <= 0 {
		if c.markStopped() && onExpire != nil {
			onExpire()
		}
		return
	}
	if onTick != nil {
		onTick(remaining)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			remaining--
			if remaining <= 0 {
				// A concurrent Stop wins over expiry.
				if c.markStopped() && onExpire != nil {
					onExpire()
				}
				return
			}
			if c.Stopped() {
				return
			}
			if onTick != nil {
				onTick(remaining)
			}
		}
	}
}

// Stop cancels the countdown. It reports whether this call stopped a running
// countdown; later calls and calls after expiry return false. Stop never
// waits for a callback, so it is safe to call from inside one.
func (c *Countdown) Stop() bool {
	if !c.markStopped() {
		return false
	}
	close(c.stop)
	return true
}

// Stopped reports whether the countdown was stopped or has expired.
func (c *Countdown) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Done is closed once the countdown goroutine has returned.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

func (c *Countdown) markStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	c.stopped = true
	return true
}
