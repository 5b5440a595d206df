package postgres

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// newTestClient starts a throwaway PostgreSQL container and applies the
// migrations. It skips when Docker is unavailable.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in -short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("raffle"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(terminateCtx)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	client, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	require.NoError(t, client.RunMigrations(ctx))
	require.NoError(t, client.RunMigrations(ctx), "migrations must be re-runnable")
	return client
}

func TestRaffleStore_Postgres(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	s := NewRaffleStore(client.Pool())

	_, ok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	price, _ := new(big.Int).SetString("1000000000000000000000", 10)
	params := domain.Params{TicketPrice: price, SwapPercent: 10, MaxPerPurchase: 2, Capacity: 4}
	buyer := common.HexToAddress("0x00000000000000000000000000000000000000b1")
	opened := time.Unix(1_700_000_000, 0).UTC()
	round := domain.Round{ID: 1, TicketPrice: price, Capacity: 4, TicketsSold: 2, Status: domain.RoundStatusActive, OpenedAt: opened}
	gross := new(big.Int).Mul(price, big.NewInt(2))
	sale := domain.Sale{Seq: 1, RoundID: 1, Buyer: buyer, Tickets: 2, Gross: gross, CreatedAt: opened}

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Apply(ctx, domain.Changeset{
		Params:   &params,
		Rounds:   []domain.Round{round},
		Holdings: []domain.Holding{{RoundID: 1, Holder: buyer, Tickets: 2, Seq: 0}},
		Sale:     &sale,
		SaleSeq:  1,
	}))
	require.NoError(t, tx.RecordSettlement(ctx, 1, domain.Settlement{
		SwapAmountIn:  new(big.Int).Div(gross, big.NewInt(10)),
		QuotedOut:     big.NewInt(199),
		SwappedAmount: big.NewInt(198),
		Treasury:      common.HexToAddress("0x00000000000000000000000000000000000000fe"),
	}))
	require.NoError(t, tx.Commit(ctx))

	st, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, st.Params.TicketPrice.Cmp(price))
	assert.EqualValues(t, 1, st.SaleSeq)
	require.Len(t, st.Rounds, 1)
	assert.EqualValues(t, 2, st.Rounds[0].TicketsSold)
	require.Len(t, st.Holdings, 1)
	assert.Equal(t, buyer, st.Holdings[0].Holder)

	sales, err := s.ListSales(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, 0, sales[0].Gross.Cmp(gross))
	assert.Equal(t, 0, sales[0].Settlement.SwappedAmount.Cmp(big.NewInt(198)))

	// A rolled back transaction leaves nothing behind.
	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	round.TicketsSold = 4
	require.NoError(t, tx.Apply(ctx, domain.Changeset{Rounds: []domain.Round{round}}))
	require.NoError(t, tx.Rollback(ctx))

	st, _, err = s.Load(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Rounds[0].TicketsSold)
}

func TestAuditStore_Postgres(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	a := NewAuditStore(client.Pool())

	require.NoError(t, a.Log(ctx, "purchase_failed", map[string]any{"reason": "capacity"}))
	require.NoError(t, a.Log(ctx, "round_archived", map[string]any{"round": 1}))

	entries, err := a.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "round_archived", entries[0].Event)
	assert.Equal(t, "capacity", entries[1].Detail["reason"])
}
