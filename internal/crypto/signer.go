package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrBadSignature is returned when a request signature cannot be decoded or
// recovered.
var ErrBadSignature = errors.New("crypto: bad signature")

// Signer signs API requests with an Ethereum account using EIP-191 personal
// messages, so the caller address can be recovered server-side.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ParseKey(privateKeyHex)
	if err != nil {
		return nil, err
	}
	return NewSignerFromKey(pk), nil
}

// NewSignerFromKey wraps an already parsed private key.
func NewSignerFromKey(pk *ecdsa.PrivateKey) *Signer {
	return &Signer{privateKey: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// RequestMessage is the text signed for an API call:
//
//	METHOD \n PATH \n UNIX_SECONDS \n BODY
func RequestMessage(method, path string, ts int64, body []byte) []byte {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte('\n')
	b.WriteString(path)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(ts, 10))
	b.WriteByte('\n')
	b.Write(body)
	return []byte(b.String())
}

// SignRequest signs the request message for ts and returns a 0x-prefixed
// 65-byte signature with v in {27,28}.
func (s *Signer) SignRequest(method, path string, ts time.Time, body []byte) (string, error) {
	return s.signDigest(accounts.TextHash(RequestMessage(method, path, ts.Unix(), body)))
}

// signDigest signs a 32-byte digest and returns r || s || v as hex.
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	// go-ethereum returns v in {0,1}; wallets produce {27,28}.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverRequest returns the address that produced sigHex over the request
// message. Both {0,1} and {27,28} recovery ids are accepted.
func RecoverRequest(method, path string, ts int64, body []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrBadSignature, len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrBadSignature, sig[64])
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash(RequestMessage(method, path, ts, body)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
