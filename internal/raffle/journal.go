package raffle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Journal records compensating actions for external effects so an aborted
// operation can undo them in reverse order.
type Journal struct {
	steps  []journalStep
	logger *slog.Logger
}

type journalStep struct {
	name string
	undo func(ctx context.Context) error
}

// NewJournal returns an empty journal.
func NewJournal(logger *slog.Logger) *Journal {
	return &Journal{logger: logger}
}

// Record registers undo as the compensation for the effect just performed.
func (j *Journal) Record(name string, undo func(ctx context.Context) error) {
	j.steps = append(j.steps, journalStep{name: name, undo: undo})
}

// Len returns the number of recorded steps.
func (j *Journal) Len() int {
	return len(j.steps)
}

// Rollback runs every compensation, newest first. It keeps going after a
// failed step and returns all failures joined. Compensation ignores the
// caller's cancellation.
func (j *Journal) Rollback(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(j.steps) - 1; i >= 0; i-- {
		s := j.steps[i]
		if err := s.undo(ctx); err != nil {
			j.logger.ErrorContext(ctx, "compensation failed",
				slog.String("step", s.name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("undo %s: %w", s.name, err))
			continue
		}
		j.logger.DebugContext(ctx, "compensated", slog.String("step", s.name))
	}
	j.steps = nil
	return errors.Join(errs...)
}

// Discard forgets every recorded step once the operation has committed.
func (j *Journal) Discard() {
	j.steps = nil
}
