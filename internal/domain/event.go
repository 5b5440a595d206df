package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names an observation emitted by the raffle.
type EventKind string

const (
	EventTicketSale     EventKind = "ticket_sale"
	EventSwapped        EventKind = "swapped_price_tokens"
	EventRoundCreated   EventKind = "created_lottery"
	EventWinner         EventKind = "winner_for_lottery"
	EventParamsModified EventKind = "params_modified"
)

// Event is an observation published after an operation commits. Only the
// fields relevant to Kind are set.
type Event struct {
	Kind         EventKind       `json:"kind"`
	RoundID      uint64          `json:"round_id"`
	SaleSeq      uint64          `json:"sale_id,omitempty"`
	Buyer        *common.Address `json:"buyer,omitempty"`
	TicketPrice  *big.Int        `json:"ticket_price,omitempty"` // gross amount paid
	TotalTickets uint64          `json:"total_tickets,omitempty"`
	// SwapAmountIn is the price-token slice sent to the exchange, the value
	// the lottery contract's SwappedPriceTokens event calls swappedAmount.
	SwapAmountIn *big.Int `json:"swap_amount_in,omitempty"`
	// SwappedAmount is the swap-token output delivered to the treasury.
	SwappedAmount *big.Int        `json:"swapped_amount,omitempty"`
	NewRoundID    uint64          `json:"new_round_id,omitempty"`
	Winner        *common.Address `json:"winner,omitempty"`
	Params        *ParamsView     `json:"params,omitempty"`
	At            time.Time       `json:"at"`
}

// ParamsView is the JSON-friendly form of Params.
type ParamsView struct {
	TicketPrice    string `json:"ticket_price"`
	SwapPercent    uint8  `json:"swap_percent"`
	MaxPerPurchase uint64 `json:"max_per_purchase"`
	Capacity       uint64 `json:"capacity"`
}

// View converts p into its JSON-friendly form.
func (p Params) View() ParamsView {
	price := "0"
	if p.TicketPrice != nil {
		price = p.TicketPrice.String()
	}
	return ParamsView{
		TicketPrice:    price,
		SwapPercent:    p.SwapPercent,
		MaxPerPurchase: p.MaxPerPurchase,
		Capacity:       p.Capacity,
	}
}
