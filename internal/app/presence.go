package app

import (
	"context"
	"log/slog"
	"time"

	"crewmate/internal/store"
)

// DefaultPresenceInterval is how often a connected player refreshes presence
const DefaultPresenceInterval = 10 * time.Second

// Presence keeps a player's heartbeat alive in the ephemeral store.
type Presence struct {
	eph      store.EphemeralStore
	key      string
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPresence creates a heartbeat for one player of one room.
func NewPresence(eph store.EphemeralStore, roomCode, playerID string, interval time.Duration, logger *slog.Logger) *Presence {
	if interval <= 0 {
		interval = DefaultPresenceInterval
	}
	return &Presence{
		eph:      eph,
		key:      store.PresenceKey(roomCode, playerID),
		interval: interval,
		logger:   logger,
	}
}

// Start writes the first heartbeat and keeps refreshing it until Stop.
func (p *Presence) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.beat(ctx)

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.beat(ctx)
			}
		}
	}()
}

// Stop ends the heartbeat and removes the presence entry.
func (p *Presence) Stop(ctx context.Context) {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	if err := p.eph.DeleteValue(ctx, p.key); err != nil {
		p.logger.Debug("presence delete failed", "error", err)
	}
}

func (p *Presence) beat(ctx context.Context) {
	err := p.eph.SetValue(ctx, p.key, store.Data{
		"online":   true,
		"lastSeen": time.Now().UTC(),
	})
	if err != nil && ctx.Err() == nil {
		p.logger.Warn("presence heartbeat failed", "error", err)
	}
}
