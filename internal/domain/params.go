package domain

import (
	"fmt"
	"math/big"
)

// MaxSwapPercent is the upper bound for Params.SwapPercent.
const MaxSwapPercent = 100

// Params is an immutable snapshot of the raffle's pricing and capacity
// configuration. Setters return a new snapshot; a purchase uses the snapshot
// read at its own start.
type Params struct {
	TicketPrice    *big.Int
	SwapPercent    uint8
	MaxPerPurchase uint64
	Capacity       uint64
}

// Validate checks that every field is inside its allowed range.
func (p Params) Validate() error {
	if p.TicketPrice == nil || p.TicketPrice.Sign() <= 0 {
		return fmt.Errorf("ticket price must be positive: %w", ErrInvalidParameter)
	}
	if p.SwapPercent > MaxSwapPercent {
		return fmt.Errorf("swap percent %d above %d: %w", p.SwapPercent, MaxSwapPercent, ErrInvalidParameter)
	}
	if p.MaxPerPurchase == 0 {
		return fmt.Errorf("max per purchase must be at least 1: %w", ErrInvalidParameter)
	}
	if p.Capacity == 0 {
		return fmt.Errorf("capacity must be at least 1: %w", ErrInvalidParameter)
	}
	return nil
}

// Clone returns a deep copy of p.
func (p Params) Clone() Params {
	out := p
	if p.TicketPrice != nil {
		out.TicketPrice = new(big.Int).Set(p.TicketPrice)
	}
	return out
}

// WithMaxPerPurchase returns a copy of p with MaxPerPurchase replaced.
func (p Params) WithMaxPerPurchase(n uint64) Params {
	out := p.Clone()
	out.MaxPerPurchase = n
	return out
}

// WithSwapPercent returns a copy of p with SwapPercent replaced.
func (p Params) WithSwapPercent(pct uint8) Params {
	out := p.Clone()
	out.SwapPercent = pct
	return out
}
