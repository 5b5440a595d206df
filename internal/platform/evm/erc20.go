package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ERC20 binds a fungible token. The backend's account is the spender in
// TransferFrom and the sender in Transfer.
type ERC20 struct {
	c *contract
}

// NewERC20 binds the token at addr.
func NewERC20(backend Caller, addr common.Address) (*ERC20, error) {
	c, err := newContract("erc20", erc20ABI, addr, backend)
	if err != nil {
		return nil, err
	}
	return &ERC20{c: c}, nil
}

func (t *ERC20) Address() common.Address {
	return t.c.addr
}

func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := t.c.call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return firstUint(out)
}

// Allowance returns spender's allowance over owner's balance.
func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	out, err := t.c.call(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return firstUint(out)
}

// Approve sets spender's allowance over the backend account's balance.
func (t *ERC20) Approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	_, err := t.c.transact(ctx, "approve", spender, amount)
	return err
}

func (t *ERC20) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	_, err := t.c.transact(ctx, "transferFrom", from, to, amount)
	return err
}

func (t *ERC20) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	_, err := t.c.transact(ctx, "transfer", to, amount)
	return err
}

func firstUint(vals []any) (*big.Int, error) {
	if len(vals) == 0 {
		return nil, fmt.Errorf("evm: empty return data")
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("evm: expected uint256, got %T", vals[0])
	}
	return v, nil
}
