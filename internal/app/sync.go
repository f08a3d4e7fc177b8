package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crewmate/internal/domain"
	"crewmate/internal/store"
)

const (
	// DefaultGuardInterval is how often the staleness guard wakes up
	DefaultGuardInterval = 2 * time.Second

	// DefaultStaleAfter is how long without a notification counts as stale
	DefaultStaleAfter = 3 * time.Second
)

// SyncConfig tunes the staleness guard
type SyncConfig struct {
	GuardInterval time.Duration
	StaleAfter    time.Duration
}

// Synchronizer keeps one client's view of the phase record current. Pushes
// are applied when their version differs from the last applied one; a guard
// pulls the record when pushes stop arriving.
type Synchronizer struct {
	docs   store.DocumentStore
	path   string
	apply  func(domain.GameState)
	cfg    SyncConfig
	logger *slog.Logger
	now    func() time.Time

	// mu serializes apply calls with the bookkeeping below.
	mu               sync.Mutex
	localVersion     int64
	lastNotification time.Time

	cancel  context.CancelFunc
	unsub   store.CancelFunc
	stopped chan struct{}
}

// NewSynchronizer creates a synchronizer for a room. apply receives every
// record the client should render.
func NewSynchronizer(
	docs store.DocumentStore,
	roomCode string,
	cfg SyncConfig,
	apply func(domain.GameState),
	logger *slog.Logger,
) *Synchronizer {
	if cfg.GuardInterval <= 0 {
		cfg.GuardInterval = DefaultGuardInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	return &Synchronizer{
		docs:         docs,
		path:         store.GameStatePath(roomCode),
		apply:        apply,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		localVersion: -1,
	}
}

// Start subscribes to the phase record and starts the guard.
func (s *Synchronizer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.lastNotification = s.now()
	s.mu.Unlock()

	unsub, err := s.docs.Subscribe(ctx, s.path, s.onNotification)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe game state: %w", err)
	}

	s.cancel = cancel
	s.unsub = unsub
	s.stopped = make(chan struct{})
	go s.guard(ctx)
	return nil
}

// Stop ends the subscription and the guard.
func (s *Synchronizer) Stop() {
	if s.cancel == nil {
		return
	}
	s.unsub()
	s.cancel()
	<-s.stopped
}

// LocalVersion returns the version of the last applied record, -1 before
// the first one.
func (s *Synchronizer) LocalVersion() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localVersion
}

// Refresh pulls the record and applies it if its version differs.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	data, err := s.docs.Get(ctx, s.path)
	if err != nil {
		return err
	}
	var state domain.GameState
	if err := store.Decode(data, &state); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNotification = s.now()
	s.applyLocked(state)
	return nil
}

func (s *Synchronizer) onNotification(snap store.Snapshot) {
	if !snap.Exists {
		return
	}
	var state domain.GameState
	if err := store.Decode(snap.Data, &state); err != nil {
		s.logger.Warn("undecodable game state", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNotification = s.now()
	s.applyLocked(state)
}

// applyLocked applies state when its version differs from the local one.
// Inequality, not ordering, is the test so that a reset to version 0 is
// picked up. Caller holds s.mu.
func (s *Synchronizer) applyLocked(state domain.GameState) {
	if state.Version == s.localVersion {
		return
	}
	s.localVersion = state.Version
	s.apply(state)
}

func (s *Synchronizer) guard(ctx context.Context) {
	defer close(s.stopped)

	ticker := time.NewTicker(s.cfg.GuardInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			stale := s.now().Sub(s.lastNotification) > s.cfg.StaleAfter
			s.mu.Unlock()
			if !stale {
				continue
			}
			err := s.Refresh(ctx)
			switch {
			case err == nil:
			case errors.Is(err, context.Canceled):
				return
			case errors.Is(err, store.ErrNotFound):
				s.mu.Lock()
				s.lastNotification = s.now()
				s.mu.Unlock()
			default:
				s.logger.Warn("staleness pull failed", "error", err)
			}
		}
	}
}
