package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Currency is a fungible token bound to the raffle's custody account: the
// custody account is the spender in TransferFrom and the sender in Transfer.
type Currency interface {
	Address() common.Address
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	// TransferFrom moves amount from `from` to `to` using the custody
	// account's allowance. Failures wrap ErrInsufficientFunds or
	// ErrInsufficientAllowance where the cause is known.
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
	// Transfer moves amount out of the custody account.
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}

// SwapRequest is an exact-input swap along Path.
type SwapRequest struct {
	AmountIn     *big.Int
	MinAmountOut *big.Int
	Path         []common.Address
	Recipient    common.Address
	Deadline     time.Time
}

// Exchange quotes and executes swaps. Swap either fully executes or returns
// an error; it never partially fills.
type Exchange interface {
	Quote(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error)
	Swap(ctx context.Context, req SwapRequest) (*big.Int, error)
}

// TicketIssuer records per-round ticket ownership.
type TicketIssuer interface {
	Mint(ctx context.Context, to common.Address, roundID, count uint64) error
	// Burn reverses a Mint; it is only used to compensate an aborted
	// purchase.
	Burn(ctx context.Context, from common.Address, roundID, count uint64) error
	BalanceOf(ctx context.Context, holder common.Address, roundID uint64) (uint64, error)
}

// RewardIssuer issues one unique reward token per settled round.
type RewardIssuer interface {
	Mint(ctx context.Context, to common.Address) (*big.Int, error)
	// Burn reverses a Mint for an aborted settlement.
	Burn(ctx context.Context, tokenID *big.Int) error
	BalanceOf(ctx context.Context, holder common.Address) (uint64, error)
}

// EntropySource supplies the seed used to draw a winner. Implementations
// backed by public chain state are predictable to block producers.
type EntropySource interface {
	Entropy(ctx context.Context) ([]byte, error)
}
