package simchain

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

func TestToken_TransferFromChecksAllowanceFirst(t *testing.T) {
	tok := NewToken("USDC", 6)
	owner, spender, to := AddressOf("owner"), AddressOf("spender"), AddressOf("to")

	err := tok.TransferFrom(spender, owner, to, big.NewInt(10))
	require.ErrorIs(t, err, domain.ErrInsufficientAllowance)

	tok.Approve(owner, spender, big.NewInt(10))
	err = tok.TransferFrom(spender, owner, to, big.NewInt(10))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, "10", tok.Allowance(owner, spender).String())

	tok.Mint(owner, big.NewInt(15))
	require.NoError(t, tok.TransferFrom(spender, owner, to, big.NewInt(10)))
	assert.Equal(t, "5", tok.Balance(owner).String())
	assert.Equal(t, "10", tok.Balance(to).String())
	assert.Equal(t, "0", tok.Allowance(owner, spender).String())
}

func TestToken_Units(t *testing.T) {
	tok := NewToken("USDC", 6)
	assert.Equal(t, "1000000000", tok.Units(1000).String())
}

func TestAmountOut(t *testing.T) {
	out, err := AmountOut(big.NewInt(1000), big.NewInt(1_000_000), big.NewInt(1_000_000))
	require.NoError(t, err)
	// 1000*997*1e6 / (1e6*1000 + 1000*997)
	assert.Equal(t, "996", out.String())

	_, err = AmountOut(big.NewInt(1), big.NewInt(0), big.NewInt(5))
	assert.Error(t, err)
}

func TestPool_SwapMatchesQuote(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	w := NewWorld(clock)
	w.Price.Mint(w.Custody, big.NewInt(200_000_000))

	path := []common.Address{w.Price.Address(), w.Swap.Address()}
	quoted, err := w.Exchange().Quote(ctx, big.NewInt(200_000_000), path)
	require.NoError(t, err)

	out, err := w.Exchange().Swap(ctx, domain.SwapRequest{
		AmountIn:     big.NewInt(200_000_000),
		MinAmountOut: new(big.Int),
		Path:         path,
		Recipient:    w.Treasury,
		Deadline:     clock.Now().Add(100 * time.Second),
	})
	require.NoError(t, err)
	assert.Equal(t, quoted.String(), out.String())
	assert.Equal(t, out.String(), w.Swap.Balance(w.Treasury).String())
	assert.Equal(t, "0", w.Price.Balance(w.Custody).String())
}

func TestPool_SwapRejectsExpiredDeadline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := NewWorld(clock)
	w.Price.Mint(w.Custody, big.NewInt(100))

	deadline := clock.Now().Add(100 * time.Second)
	clock.Advance(101 * time.Second)
	_, err := w.Exchange().Swap(context.Background(), domain.SwapRequest{
		AmountIn:  big.NewInt(100),
		Path:      []common.Address{w.Price.Address(), w.Swap.Address()},
		Recipient: w.Treasury,
		Deadline:  deadline,
	})
	require.ErrorIs(t, err, errExpired)
	assert.Equal(t, "100", w.Price.Balance(w.Custody).String())
}

func TestPool_Fault(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := NewWorld(clock)
	w.Price.Mint(w.Custody, big.NewInt(100))
	boom := errors.New("boom")
	w.Pool.SetFault(boom)

	_, err := w.Exchange().Swap(context.Background(), domain.SwapRequest{
		AmountIn:  big.NewInt(100),
		Path:      []common.Address{w.Price.Address(), w.Swap.Address()},
		Recipient: w.Treasury,
		Deadline:  clock.Now().Add(time.Minute),
	})
	require.ErrorIs(t, err, boom)
}

func TestTicketsAndRewards(t *testing.T) {
	ctx := context.Background()
	holder := AddressOf("holder")

	tb := NewTicketBook()
	require.NoError(t, tb.Mint(ctx, holder, 1, 3))
	n, err := tb.BalanceOf(ctx, holder, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
	require.ErrorIs(t, tb.Burn(ctx, holder, 1, 4), domain.ErrInsufficientFunds)
	require.NoError(t, tb.Burn(ctx, holder, 1, 3))

	rc := NewRewardCollection()
	id, err := rc.Mint(ctx, holder)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id.Int64())
	bal, err := rc.BalanceOf(ctx, holder)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), bal)
	require.NoError(t, rc.Burn(ctx, id))
	require.ErrorIs(t, rc.Burn(ctx, id), domain.ErrNotFound)
}
