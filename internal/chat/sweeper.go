package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultSweepInterval is how often the sweeper scans the registry.
	DefaultSweepInterval = 30 * time.Minute
	// DefaultIdleThreshold is the inactivity after which a chat is evicted.
	DefaultIdleThreshold = 2 * time.Hour
)

// Sweeper periodically evicts chats that have been idle for longer than the
// configured threshold. Evictions are silent: no client is notified.
type Sweeper struct {
	registry      *Registry
	clock         clockwork.Clock
	log           *slog.Logger
	interval      time.Duration
	idleThreshold time.Duration
}

// NewSweeper builds a Sweeper over registry. Non-positive durations fall back
// to the defaults.
func NewSweeper(registry *Registry, clock clockwork.Clock, log *slog.Logger, interval, idleThreshold time.Duration) *Sweeper {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if idleThreshold <= 0 {
		idleThreshold = DefaultIdleThreshold
	}
	return &Sweeper{
		registry:      registry,
		clock:         clock,
		log:           log,
		interval:      interval,
		idleThreshold: idleThreshold,
	}
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("Inactivity sweeper started",
		"interval", s.interval, "idle_threshold", s.idleThreshold)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Inactivity sweeper stopped")
			return
		case <-ticker.Chan():
			s.Sweep()
		}
	}
}

// Sweep runs a single pass and returns the invitation identifiers it evicted.
func (s *Sweeper) Sweep() []string {
	now := s.clock.Now()

	var candidates []string
	s.registry.Range(func(c Chat) bool {
		if c.IdleFor(now, s.idleThreshold) {
			candidates = append(candidates, c.InviteID)
		}
		return true
	})

	// A message may land between the scan and the delete, so re-check.
	evicted := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if s.registry.DeleteIf(id, func(c Chat) bool { return c.IdleFor(now, s.idleThreshold) }) {
			evicted = append(evicted, id)
		}
	}

	if len(evicted) > 0 {
		s.log.Info("Evicted idle chats", "count", len(evicted), "remaining", s.registry.Len())
	}
	return evicted
}
