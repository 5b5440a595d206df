package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// UniswapV2Router binds a Uniswap V2 style router. Swaps spend the backend
// account's tokens; the router is approved on demand.
type UniswapV2Router struct {
	c       *contract
	backend Caller
	logger  *slog.Logger
}

// NewUniswapV2Router binds the router at addr.
func NewUniswapV2Router(backend Caller, addr common.Address, logger *slog.Logger) (*UniswapV2Router, error) {
	c, err := newContract("router", routerABI, addr, backend)
	if err != nil {
		return nil, err
	}
	return &UniswapV2Router{c: c, backend: backend, logger: logger}, nil
}

// Quote returns getAmountsOut(amountIn, path)'s final amount.
func (r *UniswapV2Router) Quote(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	out, err := r.c.call(ctx, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	return lastAmount(out)
}

// Swap runs swapExactTokensForTokens and returns what reached the
// recipient, read from the output token's Transfer logs.
func (r *UniswapV2Router) Swap(ctx context.Context, req domain.SwapRequest) (*big.Int, error) {
	if len(req.Path) < 2 {
		return nil, fmt.Errorf("evm: swap path has %d hops: %w", len(req.Path), domain.ErrInvalidParameter)
	}
	in, err := NewERC20(r.backend, req.Path[0])
	if err != nil {
		return nil, err
	}
	if err := r.ensureAllowance(ctx, in, req.AmountIn); err != nil {
		return nil, err
	}

	receipt, err := r.c.transact(ctx, "swapExactTokensForTokens",
		req.AmountIn,
		req.MinAmountOut,
		req.Path,
		req.Recipient,
		big.NewInt(req.Deadline.Unix()),
	)
	if err != nil {
		return nil, err
	}

	outToken := req.Path[len(req.Path)-1]
	received := transferredTo(receipt.Logs, in.c.transferEventID(), outToken, req.Recipient)
	r.logger.DebugContext(ctx, "swap mined",
		slog.String("tx", receipt.TxHash.Hex()),
		slog.String("amount_in", req.AmountIn.String()),
		slog.String("amount_out", received.String()),
	)
	return received, nil
}

func (r *UniswapV2Router) ensureAllowance(ctx context.Context, token *ERC20, amount *big.Int) error {
	allowed, err := token.Allowance(ctx, r.backend.From(), r.c.addr)
	if err != nil {
		return err
	}
	if allowed.Cmp(amount) >= 0 {
		return nil
	}
	unlimited := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	r.logger.InfoContext(ctx, "approving router", slog.String("token", token.Address().Hex()))
	return token.Approve(ctx, r.c.addr, unlimited)
}

func lastAmount(vals []any) (*big.Int, error) {
	if len(vals) == 0 {
		return nil, fmt.Errorf("evm: empty return data")
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return nil, fmt.Errorf("evm: expected uint256[], got %T", vals[0])
	}
	return amounts[len(amounts)-1], nil
}

// transferredTo sums the Transfer events emitted by token whose recipient is
// to.
func transferredTo(logs []*types.Log, eventID common.Hash, token, to common.Address) *big.Int {
	sum := new(big.Int)
	for _, l := range logs {
		if l.Address != token || len(l.Topics) != 3 || l.Topics[0] != eventID {
			continue
		}
		if common.BytesToAddress(l.Topics[2].Bytes()) != to {
			continue
		}
		sum.Add(sum, new(big.Int).SetBytes(l.Data))
	}
	return sum
}
