package evm

import (
	"context"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// HeaderEntropy seeds winner draws from the latest block header. After the
// merge MixDigest carries the beacon chain's prevRandao. Block proposers can
// bias it.
type HeaderEntropy struct {
	client *Client
}

// NewHeaderEntropy returns an entropy source reading client's head block.
func NewHeaderEntropy(client *Client) *HeaderEntropy {
	return &HeaderEntropy{client: client}
}

func (e *HeaderEntropy) Entropy(ctx context.Context) ([]byte, error) {
	h, err := e.client.LatestHeader(ctx)
	if err != nil {
		return nil, err
	}
	return headerSeed(h), nil
}

func headerSeed(h *types.Header) []byte {
	var num, ts [8]byte
	binary.BigEndian.PutUint64(num[:], h.Number.Uint64())
	binary.BigEndian.PutUint64(ts[:], h.Time)
	return ethcrypto.Keccak256(h.MixDigest.Bytes(), num[:], ts[:], h.ParentHash.Bytes())
}
