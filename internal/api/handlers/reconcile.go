package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/eshaffer321/reconciler-backend/internal/api/dto"
	"github.com/eshaffer321/reconciler-backend/internal/application/reconcile"
	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
)

// RunTrigger starts reconciliation runs.
type RunTrigger interface {
	TriggerRun(ctx context.Context) (*reconcile.RunResult, error)
	InProgress() bool
}

// RunHistory reads the run ledger.
type RunHistory interface {
	History(ctx context.Context, limit int) ([]model.Run, error)
	Get(ctx context.Context, id int64) (*model.RunDetail, error)
}

// ReconcileHandler handles reconciliation runs and their history.
type ReconcileHandler struct {
	*Base
	trigger RunTrigger
	history RunHistory
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(trigger RunTrigger, history RunHistory, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		Base:    NewBase(logger),
		trigger: trigger,
		history: history,
	}
}

// Trigger handles POST /transactions/reconcile - runs one reconciliation
// pass and returns its result. 409 when a run is already in flight.
func (h *ReconcileHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.trigger.TriggerRun(r.Context())
	if err != nil {
		h.WriteServiceError(w, r, "run", err)
		return
	}

	response := dto.RunResultResponse{
		RunResponse:  toRunResponse(result.Run),
		Pairs:        toPairResponses(result.Pairs),
		SkippedRules: make([]dto.SkippedRuleResponse, 0, len(result.SkippedRules)),
		DurationMs:   result.Duration.Milliseconds(),
	}
	for _, s := range result.SkippedRules {
		reason := ""
		if s.Err != nil {
			reason = s.Err.Error()
		}
		response.SkippedRules = append(response.SkippedRules, dto.SkippedRuleResponse{
			RuleID:   s.RuleID,
			RuleName: s.RuleName,
			RuleType: string(s.RuleType),
			Reason:   reason,
		})
	}

	h.WriteData(w, http.StatusOK, response)
}

// History handles GET /reconciliation/history - most recent first.
// limit=0 or absent returns every run.
func (h *ReconcileHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, ok := ParseOptionalInt(r, "limit")
	if !ok || (limit != nil && *limit < 0) {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("limit must be a non-negative integer"))
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}

	runs, err := h.history.History(r.Context(), n)
	if err != nil {
		h.WriteServiceError(w, r, "run", err)
		return
	}

	response := make([]dto.RunResponse, 0, len(runs))
	for _, run := range runs {
		response = append(response, toRunResponse(run))
	}

	h.WriteData(w, http.StatusOK, response)
}

// HistoryGet handles GET /reconciliation/history/{id}.
func (h *ReconcileHandler) HistoryGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ParseID(w, r, "run")
	if !ok {
		return
	}

	detail, err := h.history.Get(r.Context(), id)
	if err != nil {
		h.WriteServiceError(w, r, "run", err)
		return
	}

	h.WriteData(w, http.StatusOK, dto.RunDetailResponse{
		RunResponse: toRunResponse(detail.Run),
		Pairs:       toPairResponses(detail.Pairs),
	})
}

func toRunResponse(run model.Run) dto.RunResponse {
	return dto.RunResponse{
		ID:             run.ID,
		MatchedCount:   run.MatchedCount,
		UnmatchedCount: run.UnmatchedCount,
		RawCount:       run.RawCount,
		CreatedAt:      run.CreatedAt.UTC(),
	}
}

func toPairResponses(pairs []model.MatchedPair) []dto.PairResponse {
	out := make([]dto.PairResponse, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, dto.PairResponse{
			BankTransactionID:   p.BankID,
			SystemTransactionID: p.SystemID,
			RuleID:              p.RuleID,
		})
	}
	return out
}
