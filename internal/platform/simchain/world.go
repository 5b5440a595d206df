package simchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// World is a ready-made set of contracts: a 6-decimal price token, a
// 6-decimal swap token, a pool between them, ticket and reward collections,
// and the raffle's custody and treasury accounts.
type World struct {
	Clock    clockwork.Clock
	Price    *Token
	Swap     *Token
	Pool     *Pool
	Tickets  *TicketBook
	Rewards  *RewardCollection
	Custody  common.Address
	Treasury common.Address
}

// NewWorld builds a World with liquidity in the pool. Custody has already
// approved the router for every swap.
func NewWorld(clock clockwork.Clock) *World {
	w := &World{
		Clock:    clock,
		Price:    NewToken("USDC", 6),
		Swap:     NewToken("USDT", 6),
		Tickets:  NewTicketBook(),
		Rewards:  NewRewardCollection(),
		Custody:  AddressOf("account:raffle"),
		Treasury: AddressOf("account:treasury"),
	}
	w.Pool = NewPool(w.Price, w.Swap, clock)
	w.Pool.AddLiquidity(w.Price.Units(1_000_000), w.Swap.Units(1_000_000))
	w.Price.Approve(w.Custody, w.Pool.Router(), maxUint256())
	return w
}

// Fund gives holder amount of the price token and raises custody's
// allowance by the same amount.
func (w *World) Fund(holder common.Address, amount *big.Int) {
	w.Price.Mint(holder, amount)
	allowed := w.Price.Allowance(holder, w.Custody)
	w.Price.Approve(holder, w.Custody, allowed.Add(allowed, amount))
}

// Currency returns the price token bound to the custody account.
func (w *World) Currency() domain.Currency {
	return w.Price.Bind(w.Custody)
}

// Exchange returns the pool bound to the custody account.
func (w *World) Exchange() domain.Exchange {
	return w.Pool.Bind(w.Custody)
}

func maxUint256() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
}
