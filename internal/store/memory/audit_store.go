package memory

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// AuditStore implements domain.AuditStore.
type AuditStore struct {
	clock   clockwork.Clock
	mu      sync.Mutex
	entries []domain.AuditEntry
}

// NewAuditStore returns an empty audit log.
func NewAuditStore(clock clockwork.Clock) *AuditStore {
	return &AuditStore{clock: clock}
}

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: s.clock.Now(),
	})
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
