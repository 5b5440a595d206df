package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/ticketraffle/internal/domain"
)

type stubArchives map[uint64]string

func (s stubArchives) Load(_ context.Context, roundID uint64) ([]byte, error) {
	doc, ok := s[roundID]
	if !ok {
		return nil, fmt.Errorf("s3blob: get rounds/%d.json: %w", roundID, domain.ErrNotFound)
	}
	return []byte(doc), nil
}

func TestArchiveHandler_GetArchive(t *testing.T) {
	h := NewArchiveHandler(stubArchives{3: `{"round":{"id":3}}`}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	tests := []struct {
		name   string
		id     string
		status int
		body   string
	}{
		{"stored", "3", http.StatusOK, `{"round":{"id":3}}`},
		{"missing", "4", http.StatusNotFound, "not found"},
		{"bad id", "x", http.StatusBadRequest, "invalid round id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/rounds/"+tt.id+"/archive", nil)
			req.SetPathValue("id", tt.id)
			rec := httptest.NewRecorder()
			h.GetArchive(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrUnauthorized, http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", domain.ErrExceedsMaxPurchase), http.StatusBadRequest},
		{domain.ErrExceedsCapacity, http.StatusConflict},
		{domain.ErrLockHeld, http.StatusConflict},
		{domain.ErrInsufficientAllowance, http.StatusPaymentRequired},
		{domain.ErrSwapFailed, http.StatusBadGateway},
		{domain.ErrRoundNotFound, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
