package simchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

var (
	errExpired         = errors.New("router: expired")
	errInsufficientOut = errors.New("router: insufficient output amount")
	errInvalidPath     = errors.New("router: invalid path")
	errNoLiquidity     = errors.New("router: insufficient liquidity")
)

// Pool is a constant-product pair behind a router, priced the way a
// Uniswap V2 pair is: 0.3% fee on the input amount.
type Pool struct {
	router common.Address
	pair   common.Address
	a, b   *Token
	clock  clockwork.Clock

	mu    sync.Mutex
	fault error
}

// NewPool returns an empty pool between a and b.
func NewPool(a, b *Token, clock clockwork.Clock) *Pool {
	return &Pool{
		router: AddressOf("router:" + a.Symbol() + "/" + b.Symbol()),
		pair:   AddressOf("pair:" + a.Symbol() + "/" + b.Symbol()),
		a:      a,
		b:      b,
		clock:  clock,
	}
}

// Router returns the address payers approve before swapping.
func (p *Pool) Router() common.Address { return p.router }

// Pair returns the address holding the reserves.
func (p *Pool) Pair() common.Address { return p.pair }

// AddLiquidity mints reserves straight into the pair.
func (p *Pool) AddLiquidity(amountA, amountB *big.Int) {
	p.a.Mint(p.pair, amountA)
	p.b.Mint(p.pair, amountB)
}

// Reserves returns the pair's balances of the path's input and output tokens.
func (p *Pool) Reserves(path []common.Address) (in, out *big.Int, err error) {
	tin, tout, err := p.tokens(path)
	if err != nil {
		return nil, nil, err
	}
	return tin.Balance(p.pair), tout.Balance(p.pair), nil
}

// SetFault makes every following swap fail with err until cleared with nil.
func (p *Pool) SetFault(err error) {
	p.mu.Lock()
	p.fault = err
	p.mu.Unlock()
}

// AmountOut is getAmountOut for a single hop.
func AmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("router: amount in %s: %w", amountIn, domain.ErrInvalidParameter)
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, errNoLiquidity
	}
	withFee := new(big.Int).Mul(amountIn, big.NewInt(997))
	num := new(big.Int).Mul(withFee, reserveOut)
	den := new(big.Int).Mul(reserveIn, big.NewInt(1000))
	den.Add(den, withFee)
	return num.Quo(num, den), nil
}

// Quote returns the output of swapping amountIn along path now.
func (p *Pool) Quote(_ context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rin, rout, err := p.Reserves(path)
	if err != nil {
		return nil, err
	}
	return AmountOut(amountIn, rin, rout)
}

// SwapExactTokensForTokens pulls AmountIn from payer through the router
// allowance and sends the output to req.Recipient.
func (p *Pool) SwapExactTokensForTokens(payer common.Address, req domain.SwapRequest) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fault != nil {
		return nil, p.fault
	}
	if p.clock.Now().After(req.Deadline) {
		return nil, errExpired
	}
	tin, tout, err := p.tokens(req.Path)
	if err != nil {
		return nil, err
	}
	out, err := AmountOut(req.AmountIn, tin.Balance(p.pair), tout.Balance(p.pair))
	if err != nil {
		return nil, err
	}
	if req.MinAmountOut != nil && out.Cmp(req.MinAmountOut) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", errInsufficientOut, out, req.MinAmountOut)
	}
	if err := tin.TransferFrom(p.router, payer, p.pair, req.AmountIn); err != nil {
		return nil, fmt.Errorf("router: pull input: %w", err)
	}
	if err := tout.Transfer(p.pair, req.Recipient, out); err != nil {
		return nil, fmt.Errorf("router: send output: %w", err)
	}
	return out, nil
}

// Bind returns p as a domain.Exchange that swaps payer's tokens.
func (p *Pool) Bind(payer common.Address) domain.Exchange {
	return &boundPool{p: p, payer: payer}
}

func (p *Pool) tokens(path []common.Address) (in, out *Token, err error) {
	if len(path) != 2 {
		return nil, nil, fmt.Errorf("%w: %d hops", errInvalidPath, len(path))
	}
	switch {
	case path[0] == p.a.Address() && path[1] == p.b.Address():
		return p.a, p.b, nil
	case path[0] == p.b.Address() && path[1] == p.a.Address():
		return p.b, p.a, nil
	}
	return nil, nil, fmt.Errorf("%w: %s -> %s", errInvalidPath, path[0].Hex(), path[1].Hex())
}

type boundPool struct {
	p     *Pool
	payer common.Address
}

func (b *boundPool) Quote(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	return b.p.Quote(ctx, amountIn, path)
}

func (b *boundPool) Swap(_ context.Context, req domain.SwapRequest) (*big.Int, error) {
	return b.p.SwapExactTokensForTokens(b.payer, req)
}
