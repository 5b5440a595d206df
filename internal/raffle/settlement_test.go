package raffle

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

func TestSwapSlice(t *testing.T) {
	cases := []struct {
		gross int64
		pct   uint8
		want  int64
	}{
		{2000, 10, 200},
		{999, 10, 99},
		{1, 99, 0},
		{1000, 0, 0},
		{1000, 100, 1000},
		{7, 33, 2},
	}
	for _, tc := range cases {
		got := SwapSlice(big.NewInt(tc.gross), tc.pct)
		assert.Equal(t, tc.want, got.Int64(), "gross=%d pct=%d", tc.gross, tc.pct)
	}
}

type stubExchange struct {
	quote   *big.Int
	out     *big.Int
	err     error
	lastReq domain.SwapRequest
}

func (s *stubExchange) Quote(context.Context, *big.Int, []common.Address) (*big.Int, error) {
	return s.quote, nil
}

func (s *stubExchange) Swap(_ context.Context, req domain.SwapRequest) (*big.Int, error) {
	s.lastReq = req
	return s.out, s.err
}

func newTestBridge(t *testing.T, ex domain.Exchange, clock clockwork.Clock) *Bridge {
	t.Helper()
	b, err := NewBridge(BridgeConfig{
		Exchange: ex,
		Source:   common.HexToAddress("0x01"),
		Target:   common.HexToAddress("0x02"),
		Treasury: common.HexToAddress("0x03"),
		Clock:    clock,
	})
	require.NoError(t, err)
	return b
}

func TestBridge_SettleBuildsRequest(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ex := &stubExchange{quote: big.NewInt(199), out: big.NewInt(198)}
	b := newTestBridge(t, ex, clock)

	s, err := b.Settle(context.Background(), big.NewInt(2000), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(200), s.SwapAmountIn.Int64())
	assert.Equal(t, int64(199), s.QuotedOut.Int64())
	assert.Equal(t, int64(198), s.SwappedAmount.Int64())
	assert.Equal(t, b.Treasury(), s.Treasury)

	assert.Equal(t, int64(200), ex.lastReq.AmountIn.Int64())
	assert.Zero(t, ex.lastReq.MinAmountOut.Sign())
	assert.Equal(t, b.Treasury(), ex.lastReq.Recipient)
	assert.Equal(t, clock.Now().Add(DefaultSwapDeadline), ex.lastReq.Deadline)
	assert.Equal(t, []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02")}, ex.lastReq.Path)
}

func TestBridge_SettleFailures(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cause := errors.New("reverted")

	b := newTestBridge(t, &stubExchange{quote: big.NewInt(1), err: cause}, clock)
	_, err := b.Settle(context.Background(), big.NewInt(2000), 10)
	require.ErrorIs(t, err, domain.ErrSwapFailed)
	require.ErrorIs(t, err, cause)

	b = newTestBridge(t, &stubExchange{quote: big.NewInt(1)}, clock)
	_, err = b.Settle(context.Background(), big.NewInt(2000), 10)
	require.ErrorIs(t, err, domain.ErrSwapFailed)

	b = newTestBridge(t, &stubExchange{quote: big.NewInt(1), out: big.NewInt(-1)}, clock)
	_, err = b.Settle(context.Background(), big.NewInt(2000), 10)
	require.ErrorIs(t, err, domain.ErrSwapFailed)
}

func TestNewBridge_Validation(t *testing.T) {
	_, err := NewBridge(BridgeConfig{})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = NewBridge(BridgeConfig{
		Exchange: &stubExchange{},
		Source:   common.HexToAddress("0x01"),
		Target:   common.HexToAddress("0x01"),
		Treasury: common.HexToAddress("0x03"),
		Deadline: time.Second,
	})
	require.ErrorIs(t, err, domain.ErrInvalidParameter)
}
