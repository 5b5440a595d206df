package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/ticketraffle/internal/crypto"
	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

// Headers carrying a signed caller identity.
const (
	HeaderAddress   = "X-Raffle-Address"
	HeaderTimestamp = "X-Raffle-Timestamp"
	HeaderSignature = "X-Raffle-Signature"
)

// DefaultMaxSkew is how far a request timestamp may be from now.
const DefaultMaxSkew = 5 * time.Minute

const maxSignedBody = 64 << 10

type callerKey struct{}

// CallerFrom returns the verified caller placed in ctx by Signature.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	a, ok := ctx.Value(callerKey{}).(common.Address)
	return a, ok
}

// WithCaller returns ctx carrying caller.
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// Signature verifies that the request was signed by the account named in
// X-Raffle-Address. The signed message covers method, path, timestamp and
// body; timestamps further than maxSkew from now are rejected. Each signed
// message is accepted once: guard remembers it for twice maxSkew, which
// covers every timestamp still inside the window.
func Signature(clock clockwork.Clock, maxSkew time.Duration, guard domain.ReplayGuard) func(http.Handler) http.Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addrHex := strings.TrimSpace(r.Header.Get(HeaderAddress))
			tsRaw := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
			sig := strings.TrimSpace(r.Header.Get(HeaderSignature))
			if addrHex == "" || tsRaw == "" || sig == "" {
				writeUnauthorized(w, "missing signature headers")
				return
			}
			if !common.IsHexAddress(addrHex) {
				writeUnauthorized(w, "invalid caller address")
				return
			}
			ts, err := strconv.ParseInt(tsRaw, 10, 64)
			if err != nil {
				writeUnauthorized(w, "invalid timestamp")
				return
			}
			skew := clock.Now().Sub(time.Unix(ts, 0))
			if skew > maxSkew || skew < -maxSkew {
				writeUnauthorized(w, "stale timestamp")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
			if err != nil {
				writeUnauthorized(w, "unreadable body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			signer, err := crypto.RecoverRequest(r.Method, r.URL.Path, ts, body, sig)
			if err != nil || signer != common.HexToAddress(addrHex) {
				writeUnauthorized(w, "signature does not match caller")
				return
			}
			// Keyed on signer and message so re-encoding the signature does
			// not yield a fresh claim.
			key := ethcrypto.Keccak256Hash(signer.Bytes(), crypto.RequestMessage(r.Method, r.URL.Path, ts, body)).Hex()
			fresh, err := guard.Claim(r.Context(), key, 2*maxSkew)
			if err != nil {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"error":"replay check unavailable"}`))
				return
			}
			if !fresh {
				writeUnauthorized(w, "request already used")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), signer)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
