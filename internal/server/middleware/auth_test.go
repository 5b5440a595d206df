package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/ticketraffle/internal/crypto"
	"github.com/alanyoungcy/ticketraffle/internal/store/memory"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func signedRequest(t *testing.T, s *crypto.Signer, at time.Time, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", strings.NewReader(body))
	sig, err := s.SignRequest(req.Method, req.URL.Path, at, []byte(body))
	require.NoError(t, err)
	req.Header.Set(HeaderAddress, s.Address().Hex())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(at.Unix(), 10))
	req.Header.Set(HeaderSignature, sig)
	return req
}

func TestSignature(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	signer, err := crypto.NewSigner(testKey)
	require.NoError(t, err)

	var seen common.Address
	var body string
	h := Signature(clock, time.Minute, memory.NewReplayGuard(clock))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CallerFrom(r.Context())
		b := new(strings.Builder)
		_, _ = io.Copy(b, r.Body)
		body = b.String()
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, signedRequest(t, signer, clock.Now(), `{"count":1}`))
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, signer.Address(), seen)
		assert.Equal(t, `{"count":1}`, body)
	})

	t.Run("replayed", func(t *testing.T) {
		first := signedRequest(t, signer, clock.Now(), `{"count":2}`)
		again := signedRequest(t, signer, clock.Now(), `{"count":2}`)
		again.Header.Set(HeaderSignature, first.Header.Get(HeaderSignature))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, first)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, again)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "request already used")

		clock.Advance(time.Second)
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, signedRequest(t, signer, clock.Now(), `{"count":2}`))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("stale", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, signedRequest(t, signer, clock.Now().Add(-2*time.Minute), `{}`))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("tampered body", func(t *testing.T) {
		req := signedRequest(t, signer, clock.Now(), `{"count":1}`)
		req.Body = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"count":9}`)).Body
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong address", func(t *testing.T) {
		req := signedRequest(t, signer, clock.Now(), `{}`)
		req.Header.Set(HeaderAddress, common.HexToAddress("0x01").Hex())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing headers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tickets", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing signature headers")
	})
}

type stubLimiter struct{ allow bool }

func (s stubLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return s.allow, nil
}

type failingGuard struct{}

func (failingGuard) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestSignature_ReplayGuardUnavailable(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	signer, err := crypto.NewSigner(testKey)
	require.NoError(t, err)
	h := Signature(clock, time.Minute, failingGuard{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, signer, clock.Now(), `{}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	rec := httptest.NewRecorder()
	RateLimit(stubLimiter{allow: false}, 1, 10*time.Second, nil)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	RateLimit(stubLimiter{allow: true}, 1, time.Second, nil)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExtractClientIP(t *testing.T) {
	trusted := parseNets([]string{"10.0.0.0/8", "192.0.2.1"})
	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"untrusted peer ignores forwarded", "198.51.100.4:4000", "203.0.113.9", "", "198.51.100.4"},
		{"untrusted peer ignores real ip", "198.51.100.4:4000", "", "203.0.113.9", "198.51.100.4"},
		{"trusted cidr uses first forwarded", "10.1.2.3:4000", "203.0.113.9, 10.1.2.3", "", "203.0.113.9"},
		{"trusted ip uses real ip", "192.0.2.1:4000", "", "203.0.113.7", "203.0.113.7"},
		{"trusted without headers", "10.1.2.3:4000", "", "", "10.1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, extractClientIP(req, trusted))
		})
	}
}
