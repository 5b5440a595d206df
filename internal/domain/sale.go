package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Settlement describes the conversion of a purchase's swap slice into the
// target currency.
type Settlement struct {
	SwapAmountIn  *big.Int // floor(gross * swapPercent / 100)
	QuotedOut     *big.Int // exchange estimate before execution
	SwappedAmount *big.Int // output forwarded to the treasury
	Treasury      common.Address
}

// Sale is a committed ticket purchase.
type Sale struct {
	Seq        uint64
	RoundID    uint64
	Buyer      common.Address
	Tickets    uint64
	Gross      *big.Int
	Settlement Settlement
	CreatedAt  time.Time
}

// Receipt is returned to the buyer after a purchase commits.
type Receipt struct {
	Sale         Sale
	TotalTickets uint64 // tickets sold in the round after this purchase
	RoundSettled bool
	Winner       common.Address
	Reward       *RewardRecord
	NextRoundID  uint64 // zero unless the purchase filled the round
}
