package raffle

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

func TestAdminGate(t *testing.T) {
	_, err := NewAdminGate(common.Address{})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)

	g, err := NewAdminGate(admin)
	require.NoError(t, err)
	require.NoError(t, g.Require(admin))
	require.ErrorIs(t, g.Require(alice), domain.ErrUnauthorized)
}

func TestRegistry_SettersProposeWithoutInstalling(t *testing.T) {
	g, err := NewAdminGate(admin)
	require.NoError(t, err)
	r, err := NewRegistry(g, domain.Params{TicketPrice: big.NewInt(1000), SwapPercent: 10, MaxPerPurchase: 2, Capacity: 8})
	require.NoError(t, err)

	p, err := r.SetMaxPerPurchase(admin, 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), p.MaxPerPurchase)
	assert.Equal(t, uint64(2), r.Snapshot().MaxPerPurchase)

	r.install(p)
	assert.Equal(t, uint64(6), r.Snapshot().MaxPerPurchase)

	snap := r.Snapshot()
	snap.TicketPrice.SetInt64(1)
	assert.Equal(t, int64(1000), r.Snapshot().TicketPrice.Int64())
}

func TestNewRegistry_RejectsInvalidParams(t *testing.T) {
	g, err := NewAdminGate(admin)
	require.NoError(t, err)
	_, err = NewRegistry(g, domain.Params{TicketPrice: big.NewInt(0), MaxPerPurchase: 1, Capacity: 1})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}
