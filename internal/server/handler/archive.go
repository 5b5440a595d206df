package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// ArchiveLoader returns the stored archive document of a settled round.
type ArchiveLoader interface {
	Load(ctx context.Context, roundID uint64) ([]byte, error)
}

// ArchiveHandler serves settled-round archives from object storage.
type ArchiveHandler struct {
	loader ArchiveLoader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(loader ArchiveLoader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{loader: loader, logger: logHandler(logger, "archive")}
}

// GetArchive streams the archived JSON document as stored.
// GET /api/rounds/{id}/archive
func (h *ArchiveHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	id, err := roundParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	doc, err := h.loader.Load(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}
