package raffle

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// Selector draws a winner with probability proportional to tickets held.
type Selector struct {
	entropy domain.EntropySource
}

// NewSelector returns a Selector seeded by src.
func NewSelector(src domain.EntropySource) *Selector {
	return &Selector{entropy: src}
}

// SelectWinner returns the holder whose cumulative-weight interval contains
// the drawn index. The round must be exactly full and holdings must be in
// first-purchase order.
func (s *Selector) SelectWinner(ctx context.Context, round domain.Round, holdings []domain.Holding) (common.Address, error) {
	if !round.Full() {
		return common.Address{}, fmt.Errorf("raffle: round %d has %d of %d tickets: %w",
			round.ID, round.TicketsSold, round.Capacity, domain.ErrInvalidParameter)
	}

	var total uint64
	for _, h := range holdings {
		total += h.Tickets
	}
	if total != round.Capacity {
		return common.Address{}, fmt.Errorf("raffle: round %d holdings sum to %d, capacity %d: %w",
			round.ID, total, round.Capacity, domain.ErrInvalidParameter)
	}

	seed, err := s.entropy.Entropy(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("raffle: entropy: %w", err)
	}

	return pickHolder(holdings, DrawIndex(seed, round.ID, round.Capacity))
}

// DrawIndex maps seed and roundID onto a ticket index in [0, capacity).
func DrawIndex(seed []byte, roundID, capacity uint64) uint64 {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], roundID)
	h := new(big.Int).SetBytes(ethcrypto.Keccak256(seed, id[:]))
	return h.Mod(h, new(big.Int).SetUint64(capacity)).Uint64()
}

func pickHolder(holdings []domain.Holding, index uint64) (common.Address, error) {
	var upper uint64
	for _, h := range holdings {
		upper += h.Tickets
		if index < upper {
			return h.Holder, nil
		}
	}
	return common.Address{}, fmt.Errorf("raffle: index %d beyond %d tickets: %w", index, upper, domain.ErrInvalidParameter)
}
