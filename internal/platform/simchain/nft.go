package simchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// TicketBook is an ERC1155-style multi-token where the token ID is the round.
type TicketBook struct {
	mu       sync.Mutex
	balances map[uint64]map[common.Address]uint64
	fault    error
}

// NewTicketBook returns an empty ticket book.
func NewTicketBook() *TicketBook {
	return &TicketBook{balances: make(map[uint64]map[common.Address]uint64)}
}

// SetFault makes every following Mint fail with err until cleared with nil.
func (t *TicketBook) SetFault(err error) {
	t.mu.Lock()
	t.fault = err
	t.mu.Unlock()
}

func (t *TicketBook) Mint(_ context.Context, to common.Address, roundID, count uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fault != nil {
		return t.fault
	}
	if t.balances[roundID] == nil {
		t.balances[roundID] = make(map[common.Address]uint64)
	}
	t.balances[roundID][to] += count
	return nil
}

func (t *TicketBook) Burn(_ context.Context, from common.Address, roundID, count uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	have := t.balances[roundID][from]
	if have < count {
		return fmt.Errorf("tickets: burn %d of round %d from %s holding %d: %w",
			count, roundID, from.Hex(), have, domain.ErrInsufficientFunds)
	}
	t.balances[roundID][from] = have - count
	return nil
}

func (t *TicketBook) BalanceOf(_ context.Context, holder common.Address, roundID uint64) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[roundID][holder], nil
}

// RewardCollection is an ERC721-style collection with sequential token IDs
// starting at 1.
type RewardCollection struct {
	mu     sync.Mutex
	owners map[string]common.Address
	next   int64
	fault  error
}

// NewRewardCollection returns an empty collection.
func NewRewardCollection() *RewardCollection {
	return &RewardCollection{owners: make(map[string]common.Address), next: 1}
}

// SetFault makes every following Mint fail with err until cleared with nil.
func (r *RewardCollection) SetFault(err error) {
	r.mu.Lock()
	r.fault = err
	r.mu.Unlock()
}

func (r *RewardCollection) Mint(_ context.Context, to common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fault != nil {
		return nil, r.fault
	}
	id := big.NewInt(r.next)
	r.next++
	r.owners[id.String()] = to
	return id, nil
}

func (r *RewardCollection) Burn(_ context.Context, tokenID *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[tokenID.String()]; !ok {
		return fmt.Errorf("rewards: token %s: %w", tokenID, domain.ErrNotFound)
	}
	delete(r.owners, tokenID.String())
	return nil
}

func (r *RewardCollection) BalanceOf(_ context.Context, holder common.Address) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n uint64
	for _, o := range r.owners {
		if o == holder {
			n++
		}
	}
	return n, nil
}

// OwnerOf returns the owner of tokenID.
func (r *RewardCollection) OwnerOf(tokenID *big.Int) (common.Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.owners[tokenID.String()]
	return o, ok
}
