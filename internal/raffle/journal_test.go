package raffle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_RollbackNewestFirst(t *testing.T) {
	j := NewJournal(discardLogger())
	var order []string
	boom := errors.New("boom")
	j.Record("first", func(context.Context) error { order = append(order, "first"); return nil })
	j.Record("second", func(context.Context) error { order = append(order, "second"); return boom })
	j.Record("third", func(context.Context) error { order = append(order, "third"); return nil })
	require.Equal(t, 3, j.Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := j.Rollback(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"third", "second", "first"}, order)
	assert.Zero(t, j.Len())
}

func TestJournal_Discard(t *testing.T) {
	j := NewJournal(discardLogger())
	called := false
	j.Record("x", func(context.Context) error { called = true; return nil })
	j.Discard()
	require.NoError(t, j.Rollback(context.Background()))
	assert.False(t, called)
}
