package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TicketContract binds an ERC1155-style ticket collection whose token ID is
// the round ID. The backend account must hold the minter role.
type TicketContract struct {
	c *contract
}

// NewTicketContract binds the ticket collection at addr.
func NewTicketContract(backend Caller, addr common.Address) (*TicketContract, error) {
	c, err := newContract("tickets", ticketABI, addr, backend)
	if err != nil {
		return nil, err
	}
	return &TicketContract{c: c}, nil
}

func (t *TicketContract) Mint(ctx context.Context, to common.Address, roundID, count uint64) error {
	_, err := t.c.transact(ctx, "mint", to, new(big.Int).SetUint64(roundID), new(big.Int).SetUint64(count))
	return err
}

func (t *TicketContract) Burn(ctx context.Context, from common.Address, roundID, count uint64) error {
	_, err := t.c.transact(ctx, "burn", from, new(big.Int).SetUint64(roundID), new(big.Int).SetUint64(count))
	return err
}

func (t *TicketContract) BalanceOf(ctx context.Context, holder common.Address, roundID uint64) (uint64, error) {
	out, err := t.c.call(ctx, "balanceOf", holder, new(big.Int).SetUint64(roundID))
	if err != nil {
		return 0, err
	}
	n, err := firstUint(out)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

// RewardContract binds an ERC721-style reward collection.
type RewardContract struct {
	c *contract
}

// NewRewardContract binds the reward collection at addr.
func NewRewardContract(backend Caller, addr common.Address) (*RewardContract, error) {
	c, err := newContract("rewards", rewardABI, addr, backend)
	if err != nil {
		return nil, err
	}
	return &RewardContract{c: c}, nil
}

// Mint issues one token to `to` and returns its ID, taken from the mint's
// Transfer event.
func (r *RewardContract) Mint(ctx context.Context, to common.Address) (*big.Int, error) {
	receipt, err := r.c.transact(ctx, "mint", to)
	if err != nil {
		return nil, err
	}
	id, ok := mintedTokenID(receipt.Logs, r.c.transferEventID(), r.c.addr, to)
	if !ok {
		return nil, fmt.Errorf("rewards.mint: no Transfer event in %s", receipt.TxHash.Hex())
	}
	return id, nil
}

func (r *RewardContract) Burn(ctx context.Context, tokenID *big.Int) error {
	_, err := r.c.transact(ctx, "burn", tokenID)
	return err
}

func (r *RewardContract) BalanceOf(ctx context.Context, holder common.Address) (uint64, error) {
	out, err := r.c.call(ctx, "balanceOf", holder)
	if err != nil {
		return 0, err
	}
	n, err := firstUint(out)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

func mintedTokenID(logs []*types.Log, eventID common.Hash, collection, to common.Address) (*big.Int, bool) {
	for _, l := range logs {
		if l.Address != collection || len(l.Topics) != 4 || l.Topics[0] != eventID {
			continue
		}
		if l.Topics[1] != (common.Hash{}) || common.BytesToAddress(l.Topics[2].Bytes()) != to {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[3].Bytes()), true
	}
	return nil, false
}
