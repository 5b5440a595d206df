package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RoundStatus tracks where a round is in its lifecycle.
type RoundStatus string

const (
	RoundStatusActive  RoundStatus = "active"
	RoundStatusSettled RoundStatus = "settled"
)

// Round is one raffle cycle. TicketPrice and Capacity are frozen when the
// round opens; only TicketsSold, Status and SettledAt change afterwards.
type Round struct {
	ID          uint64
	TicketPrice *big.Int
	TicketsSold uint64
	Capacity    uint64
	Status      RoundStatus
	OpenedAt    time.Time
	SettledAt   *time.Time
}

// Left returns how many tickets can still be sold in the round.
func (r Round) Left() uint64 {
	if r.TicketsSold >= r.Capacity {
		return 0
	}
	return r.Capacity - r.TicketsSold
}

// Full reports whether the round has reached capacity.
func (r Round) Full() bool {
	return r.Capacity > 0 && r.TicketsSold == r.Capacity
}

// Settled reports whether a winner has been drawn for the round.
func (r Round) Settled() bool {
	return r.Status == RoundStatusSettled
}

// Clone returns a copy that shares no mutable memory with r.
func (r Round) Clone() Round {
	out := r
	if r.TicketPrice != nil {
		out.TicketPrice = new(big.Int).Set(r.TicketPrice)
	}
	if r.SettledAt != nil {
		t := *r.SettledAt
		out.SettledAt = &t
	}
	return out
}

// Holding is a buyer's cumulative ticket count within a single round. Seq is
// the buyer's first-purchase position in the round and fixes the order used
// for winner selection.
type Holding struct {
	RoundID uint64
	Holder  common.Address
	Tickets uint64
	Seq     int
}

// RewardRecord is the permanent record of the reward issued for a settled
// round.
type RewardRecord struct {
	RoundID  uint64
	Winner   common.Address
	TokenID  *big.Int
	IssuedAt time.Time
}
