package raffle

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

func activeRound(sold, capacity uint64) domain.Round {
	return domain.Round{
		ID:          1,
		TicketPrice: big.NewInt(1000),
		TicketsSold: sold,
		Capacity:    capacity,
		Status:      domain.RoundStatusActive,
	}
}

func TestBook_RecordPurchaseAccumulates(t *testing.T) {
	a := common.HexToAddress("0xa")
	b := common.HexToAddress("0xb")
	book := NewBook(activeRound(0, 8), nil)

	total, err := book.RecordPurchase(a, 2, 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
	total, err = book.RecordPurchase(b, 3, 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), total)
	total, err = book.RecordPurchase(a, 3, 6)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), total)

	hs := book.Holdings()
	require.Len(t, hs, 2)
	assert.Equal(t, domain.Holding{RoundID: 1, Holder: a, Tickets: 5, Seq: 0}, hs[0])
	assert.Equal(t, domain.Holding{RoundID: 1, Holder: b, Tickets: 3, Seq: 1}, hs[1])
	assert.True(t, book.Round().Full())
}

func TestBook_RejectsWithoutPartialFill(t *testing.T) {
	a := common.HexToAddress("0xa")
	book := NewBook(activeRound(6, 8), []domain.Holding{{RoundID: 1, Holder: a, Tickets: 6}})

	_, err := book.RecordPurchase(a, 3, 6)
	require.ErrorIs(t, err, domain.ErrExceedsCapacity)
	_, err = book.RecordPurchase(a, 7, 6)
	require.ErrorIs(t, err, domain.ErrExceedsMaxPurchase)
	_, err = book.RecordPurchase(a, 0, 6)
	require.ErrorIs(t, err, domain.ErrExceedsMaxPurchase)

	assert.Equal(t, uint64(6), book.Round().TicketsSold)
	assert.Empty(t, book.Touched())
}

func TestBook_SettledRoundIsFull(t *testing.T) {
	r := activeRound(8, 8)
	r.Status = domain.RoundStatusSettled
	err := NewBook(r, nil).Check(1, 2)
	require.ErrorIs(t, err, domain.ErrExceedsCapacity)
}

func TestBook_DoesNotAliasInput(t *testing.T) {
	a := common.HexToAddress("0xa")
	in := []domain.Holding{{RoundID: 1, Holder: a, Tickets: 1}}
	book := NewBook(activeRound(1, 8), in)
	_, err := book.RecordPurchase(a, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), in[0].Tickets)
}
