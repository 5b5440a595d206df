package raffle

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

type opKey struct{}

// exclusive runs fn as the only mutating operation in flight. Calls that
// arrive while fn is running wait their turn; a call made from inside fn
// with its context fails with ErrReentrantCall instead of deadlocking.
// When a LockManager is configured the operation also holds the shared
// lock and starts from freshly loaded state.
func (m *Manager) exclusive(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if running, ok := ctx.Value(opKey{}).(string); ok {
		return fmt.Errorf("raffle: %s during %s: %w", op, running, domain.ErrReentrantCall)
	}

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.sem }()

	if m.locks != nil {
		unlock, err := m.locks.Acquire(ctx, m.lockKey, m.lockTTL)
		if err != nil {
			return fmt.Errorf("raffle: %s: acquire %s: %w", op, m.lockKey, err)
		}
		defer unlock()
		if err := m.reload(ctx); err != nil {
			return fmt.Errorf("raffle: %s: %w", op, err)
		}
	}

	return fn(context.WithValue(ctx, opKey{}, op))
}
