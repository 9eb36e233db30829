package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/eshaffer321/reconciler-backend/internal/api/dto"
	"github.com/eshaffer321/reconciler-backend/internal/infrastructure/storage"
)

// StatsProvider reports store counters for the health check.
type StatsProvider interface {
	GetStats(ctx context.Context) (*storage.Stats, error)
}

// RunStatus reports whether a reconciliation run is executing.
type RunStatus interface {
	InProgress() bool
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	*Base
	stats StatsProvider
	runs  RunStatus
}

// NewHealthHandler creates a new health handler. Either dependency may be
// nil, in which case the matching part of the report is omitted.
func NewHealthHandler(stats StatsProvider, runs RunStatus, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		Base:  NewBase(logger),
		stats: stats,
		runs:  runs,
	}
}

// ServeHTTP handles the health check request. The body is not wrapped in
// the data envelope so load balancers can read status directly.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := dto.NewHealthResponse()
	if h.runs != nil {
		response.RunInProgress = h.runs.InProgress()
	}

	if h.stats != nil {
		stats, err := h.stats.GetStats(r.Context())
		if err != nil {
			h.logger.Warn("health check could not read store", "error", err)
			response.Status = "degraded"
			h.WriteJSON(w, http.StatusServiceUnavailable, response)
			return
		}
		response.SchemaVersion = stats.SchemaVersion
		response.ActiveRules = stats.ActiveRules
		response.TotalRuns = stats.TotalRuns
		response.Transactions = &dto.TransactionCounts{
			Total:     stats.TotalTransactions,
			Raw:       stats.RawCount,
			Matched:   stats.MatchedCount,
			Unmatched: stats.UnmatchedCount,
			BySource:  stats.SourceCounts,
		}
	}

	h.WriteJSON(w, http.StatusOK, response)
}
