package raffle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// Book is the ticket ledger for one active round: its counters and its
// holdings in first-purchase order. A Book is a working copy; nothing it
// records is visible outside the operation that owns it until committed.
type Book struct {
	round    domain.Round
	holdings []domain.Holding
	pos      map[common.Address]int
	touched  map[common.Address]bool
}

// NewBook copies round and holdings into a fresh working ledger.
func NewBook(round domain.Round, holdings []domain.Holding) *Book {
	b := &Book{
		round:    round.Clone(),
		holdings: make([]domain.Holding, len(holdings)),
		pos:      make(map[common.Address]int, len(holdings)),
		touched:  make(map[common.Address]bool),
	}
	copy(b.holdings, holdings)
	for i, h := range b.holdings {
		b.pos[h.Holder] = i
	}
	return b
}

// Round returns the working copy of the round.
func (b *Book) Round() domain.Round {
	return b.round.Clone()
}

// Holdings returns the holdings in first-purchase order.
func (b *Book) Holdings() []domain.Holding {
	out := make([]domain.Holding, len(b.holdings))
	copy(out, b.holdings)
	return out
}

// Touched returns the holdings changed since the Book was created.
func (b *Book) Touched() []domain.Holding {
	var out []domain.Holding
	for _, h := range b.holdings {
		if b.touched[h.Holder] {
			out = append(out, h)
		}
	}
	return out
}

// Check validates a purchase of count tickets without recording it.
func (b *Book) Check(count, maxPerPurchase uint64) error {
	if count == 0 || count > maxPerPurchase {
		return fmt.Errorf("raffle: %d tickets (max %d): %w", count, maxPerPurchase, domain.ErrExceedsMaxPurchase)
	}
	if b.round.Settled() {
		return fmt.Errorf("raffle: round %d already settled: %w", b.round.ID, domain.ErrExceedsCapacity)
	}
	if count > b.round.Left() {
		return fmt.Errorf("raffle: %d tickets, %d left in round %d: %w", count, b.round.Left(), b.round.ID, domain.ErrExceedsCapacity)
	}
	return nil
}

// RecordPurchase credits buyer with count tickets and returns the round's new
// tickets-sold total. The whole purchase is rejected when it does not fit.
func (b *Book) RecordPurchase(buyer common.Address, count, maxPerPurchase uint64) (uint64, error) {
	if err := b.Check(count, maxPerPurchase); err != nil {
		return b.round.TicketsSold, err
	}

	if i, ok := b.pos[buyer]; ok {
		b.holdings[i].Tickets += count
	} else {
		b.pos[buyer] = len(b.holdings)
		b.holdings = append(b.holdings, domain.Holding{
			RoundID: b.round.ID,
			Holder:  buyer,
			Tickets: count,
			Seq:     len(b.holdings),
		})
	}
	b.touched[buyer] = true
	b.round.TicketsSold += count
	return b.round.TicketsSold, nil
}
