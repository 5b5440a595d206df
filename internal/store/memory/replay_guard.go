package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// ReplayGuard implements domain.ReplayGuard for a single process.
type ReplayGuard struct {
	clock clockwork.Clock
	mu    sync.Mutex
	seen  map[string]time.Time
}

// NewReplayGuard returns an empty guard.
func NewReplayGuard(clock clockwork.Clock) *ReplayGuard {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ReplayGuard{clock: clock, seen: make(map[string]time.Time)}
}

func (g *ReplayGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := g.clock.Now()
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, exp := range g.seen {
		if !now.Before(exp) {
			delete(g.seen, k)
		}
	}
	if _, ok := g.seen[key]; ok {
		return false, nil
	}
	g.seen[key] = now.Add(ttl)
	return true, nil
}

var _ domain.ReplayGuard = (*ReplayGuard)(nil)
