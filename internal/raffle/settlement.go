package raffle

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// DefaultSwapDeadline bounds how long a submitted swap may wait before the
// exchange must reject it.
const DefaultSwapDeadline = 100 * time.Second

// BridgeConfig wires a Bridge.
type BridgeConfig struct {
	Exchange domain.Exchange
	Source   common.Address // currency tickets are priced in
	Target   common.Address // currency the treasury receives
	Treasury common.Address
	Deadline time.Duration
	Clock    clockwork.Clock
}

// Bridge converts the swap slice of each purchase into the target currency
// and routes the output directly to the treasury.
type Bridge struct {
	exchange domain.Exchange
	path     []common.Address
	treasury common.Address
	deadline time.Duration
	clock    clockwork.Clock
}

// NewBridge validates cfg and returns a Bridge.
func NewBridge(cfg BridgeConfig) (*Bridge, error) {
	if cfg.Exchange == nil {
		return nil, fmt.Errorf("raffle: bridge needs an exchange: %w", domain.ErrInvalidParameter)
	}
	if cfg.Treasury == (common.Address{}) {
		return nil, fmt.Errorf("raffle: bridge treasury is the zero address: %w", domain.ErrInvalidParameter)
	}
	if cfg.Source == cfg.Target {
		return nil, fmt.Errorf("raffle: bridge source and target are both %s: %w", cfg.Source.Hex(), domain.ErrInvalidParameter)
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultSwapDeadline
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Bridge{
		exchange: cfg.Exchange,
		path:     []common.Address{cfg.Source, cfg.Target},
		treasury: cfg.Treasury,
		deadline: cfg.Deadline,
		clock:    cfg.Clock,
	}, nil
}

// Treasury returns the address that receives swap output.
func (b *Bridge) Treasury() common.Address {
	return b.treasury
}

// SwapSlice returns floor(gross * pct / 100).
func SwapSlice(gross *big.Int, pct uint8) *big.Int {
	if gross == nil || gross.Sign() <= 0 || pct == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(gross, big.NewInt(int64(pct)))
	return out.Quo(out, big.NewInt(domain.MaxSwapPercent))
}

// Settle swaps the slice of gross selected by pct and sends the output to
// the treasury. A zero slice skips the exchange entirely. Any exchange
// failure is reported as ErrSwapFailed and nothing is forwarded.
func (b *Bridge) Settle(ctx context.Context, gross *big.Int, pct uint8) (domain.Settlement, error) {
	s := domain.Settlement{
		SwapAmountIn:  SwapSlice(gross, pct),
		QuotedOut:     new(big.Int),
		SwappedAmount: new(big.Int),
		Treasury:      b.treasury,
	}
	if s.SwapAmountIn.Sign() == 0 {
		return s, nil
	}

	quoted, err := b.exchange.Quote(ctx, s.SwapAmountIn, b.path)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("raffle: quote %s: %w: %w", s.SwapAmountIn, domain.ErrSwapFailed, err)
	}
	if quoted != nil {
		s.QuotedOut = new(big.Int).Set(quoted)
	}

	out, err := b.exchange.Swap(ctx, domain.SwapRequest{
		AmountIn:     new(big.Int).Set(s.SwapAmountIn),
		MinAmountOut: new(big.Int),
		Path:         append([]common.Address(nil), b.path...),
		Recipient:    b.treasury,
		Deadline:     b.clock.Now().Add(b.deadline),
	})
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("raffle: swap %s: %w: %w", s.SwapAmountIn, domain.ErrSwapFailed, err)
	}
	if out == nil || out.Sign() < 0 {
		return domain.Settlement{}, fmt.Errorf("raffle: swap %s returned %v: %w", s.SwapAmountIn, out, domain.ErrSwapFailed)
	}
	s.SwappedAmount = new(big.Int).Set(out)
	return s, nil
}
