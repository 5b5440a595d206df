package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	checks map[string]Check
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler running checks on each request.
func NewHealthHandler(checks map[string]Check, clock clockwork.Clock, logger *slog.Logger) *HealthHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthHandler{checks: checks, clock: clock, logger: logHandler(logger, "health")}
}

// HealthCheck reports ok only when every dependency answers.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency unhealthy", slog.String("dependency", name), slog.String("error", err.Error()))
			deps[name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	writeJSON(w, code, map[string]any{
		"status":       status,
		"dependencies": deps,
		"timestamp":    h.clock.Now().UTC().Format(time.RFC3339),
	})
}
