package raffle

import (
	"context"
	"encoding/binary"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"
)

// ChainedEntropy mixes the current time into a running keccak digest, the
// way a block mixes its timestamp with the previous randomness beacon. It is
// public and predictable; use it only where a chain header source is not
// available.
type ChainedEntropy struct {
	clock  clockwork.Clock
	mu     sync.Mutex
	digest []byte
}

// NewChainedEntropy returns a source seeded with seed.
func NewChainedEntropy(clock clockwork.Clock, seed []byte) *ChainedEntropy {
	return &ChainedEntropy{
		clock:  clock,
		digest: ethcrypto.Keccak256(seed),
	}
}

// Entropy advances the digest and returns it.
func (e *ChainedEntropy) Entropy(_ context.Context) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(e.clock.Now().UnixNano()))
	e.digest = ethcrypto.Keccak256(e.digest, ts[:])

	out := make([]byte, len(e.digest))
	copy(out, e.digest)
	return out, nil
}
