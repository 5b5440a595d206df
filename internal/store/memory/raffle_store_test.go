package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

func testParams() domain.Params {
	return domain.Params{TicketPrice: big.NewInt(1000), SwapPercent: 10, MaxPerPurchase: 2, Capacity: 8}
}

func TestRaffleStore_EmptyLoad(t *testing.T) {
	_, ok, err := NewRaffleStore().Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRaffleStore_CommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewRaffleStore()
	p := testParams()
	round := domain.Round{ID: 1, TicketPrice: big.NewInt(1000), Capacity: 8, Status: domain.RoundStatusActive}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Apply(ctx, domain.Changeset{Params: &p, Rounds: []domain.Round{round}}))

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "uncommitted writes must not be visible")

	require.NoError(t, tx.Commit(ctx))
	st, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, st.Rounds, 1)
	assert.Equal(t, uint64(8), st.Params.Capacity)
}

func TestRaffleStore_SettlementAttachedToSale(t *testing.T) {
	ctx := context.Background()
	s := NewRaffleStore()
	buyer := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	sale := domain.Sale{Seq: 1, RoundID: 1, Buyer: buyer, Tickets: 2, Gross: big.NewInt(2000), CreatedAt: time.Unix(0, 0)}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Apply(ctx, domain.Changeset{
		Holdings: []domain.Holding{{RoundID: 1, Holder: buyer, Tickets: 2}},
		Sale:     &sale,
		SaleSeq:  1,
	}))
	require.ErrorIs(t, tx.RecordSettlement(ctx, 2, domain.Settlement{}), domain.ErrNotFound)
	require.NoError(t, tx.RecordSettlement(ctx, 1, domain.Settlement{SwapAmountIn: big.NewInt(200), SwappedAmount: big.NewInt(199)}))
	require.NoError(t, tx.Commit(ctx))

	sales, err := s.ListSales(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "199", sales[0].Settlement.SwappedAmount.String())
}

func TestRaffleStore_RollbackAndFault(t *testing.T) {
	ctx := context.Background()
	s := NewRaffleStore()
	p := testParams()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Apply(ctx, domain.Changeset{Params: &p}))
	require.NoError(t, tx.Rollback(ctx))
	require.Error(t, tx.Commit(ctx))

	boom := errors.New("disk full")
	s.SetCommitFault(boom)
	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Apply(ctx, domain.Changeset{Params: &p}))
	require.ErrorIs(t, tx.Commit(ctx), boom)

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuditStore_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	a := NewAuditStore(clock)
	require.NoError(t, a.Log(ctx, "first", nil))
	clock.Advance(time.Second)
	require.NoError(t, a.Log(ctx, "second", nil))

	got, err := a.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Event)
}
