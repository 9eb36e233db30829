package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconciler-backend/internal/api/dto"
	"github.com/eshaffer321/reconciler-backend/internal/api/handlers"
	"github.com/eshaffer321/reconciler-backend/internal/application/reconcile"
	"github.com/eshaffer321/reconciler-backend/internal/domain/matcher"
	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
	"github.com/eshaffer321/reconciler-backend/internal/domain/rules"
	"github.com/eshaffer321/reconciler-backend/internal/infrastructure/storage"
)

type mockTrigger struct {
	mock.Mock
}

func (m *mockTrigger) TriggerRun(ctx context.Context) (*reconcile.RunResult, error) {
	args := m.Called(ctx)
	result, _ := args.Get(0).(*reconcile.RunResult)
	return result, args.Error(1)
}

func (m *mockTrigger) InProgress() bool {
	return m.Called().Bool(0)
}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) History(ctx context.Context, limit int) ([]model.Run, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]model.Run)
	return runs, args.Error(1)
}

func (m *mockHistory) Get(ctx context.Context, id int64) (*model.RunDetail, error) {
	args := m.Called(ctx, id)
	detail, _ := args.Get(0).(*model.RunDetail)
	return detail, args.Error(1)
}

func TestReconcileHandler_Trigger(t *testing.T) {
	t.Run("returns run result", func(t *testing.T) {
		trigger := new(mockTrigger)
		trigger.On("TriggerRun", mock.Anything).Return(&reconcile.RunResult{
			Run:   model.Run{ID: 3, MatchedCount: 2, UnmatchedCount: 1, RawCount: 3, CreatedAt: day},
			Pairs: []model.MatchedPair{{BankID: 1, SystemID: 2, RuleID: 9}},
			SkippedRules: []matcher.SkippedRule{{
				RuleID: 4, RuleName: "legacy", RuleType: "FUZZY",
				Err: &rules.UnknownTypeError{RuleType: "FUZZY"},
			}},
			Duration: 1500 * time.Millisecond,
		}, nil)
		h := handlers.NewReconcileHandler(trigger, new(mockHistory), nil)

		rec := serve(t, http.MethodPost, "/transactions/reconcile", "/transactions/reconcile", "", h.Trigger)

		require.Equal(t, http.StatusOK, rec.Code)
		var result dto.RunResultResponse
		decodeData(t, rec, &result)
		assert.Equal(t, int64(3), result.ID)
		assert.Equal(t, 2, result.MatchedCount)
		assert.Equal(t, 1, result.UnmatchedCount)
		assert.Equal(t, 3, result.RawCount)
		assert.Equal(t, []dto.PairResponse{{BankTransactionID: 1, SystemTransactionID: 2, RuleID: 9}}, result.Pairs)
		require.Len(t, result.SkippedRules, 1)
		assert.Equal(t, int64(4), result.SkippedRules[0].RuleID)
		assert.Contains(t, result.SkippedRules[0].Reason, "FUZZY")
		assert.Equal(t, int64(1500), result.DurationMs)
		trigger.AssertExpectations(t)
	})

	t.Run("returns 409 when a run is in progress", func(t *testing.T) {
		trigger := new(mockTrigger)
		trigger.On("TriggerRun", mock.Anything).Return(nil, reconcile.ErrRunInProgress)
		h := handlers.NewReconcileHandler(trigger, new(mockHistory), nil)

		rec := serve(t, http.MethodPost, "/transactions/reconcile", "/transactions/reconcile", "", h.Trigger)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, dto.ErrCodeRunInProgress, decodeError(t, rec).Code)
	})

	t.Run("returns 500 on store failure", func(t *testing.T) {
		trigger := new(mockTrigger)
		trigger.On("TriggerRun", mock.Anything).Return(nil,
			&reconcile.StoreError{Op: reconcile.OpPersist, Err: storage.ErrStaleSnapshot})
		h := handlers.NewReconcileHandler(trigger, new(mockHistory), nil)

		rec := serve(t, http.MethodPost, "/transactions/reconcile", "/transactions/reconcile", "", h.Trigger)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		apiErr := decodeError(t, rec)
		assert.Equal(t, dto.ErrCodeStoreFailure, apiErr.Code)
		assert.Contains(t, apiErr.Message, "persist")
	})
}

func TestReconcileHandler_History(t *testing.T) {
	runs := []model.Run{
		{ID: 2, MatchedCount: 0, UnmatchedCount: 0, RawCount: 0, CreatedAt: day.Add(time.Hour)},
		{ID: 1, MatchedCount: 4, UnmatchedCount: 1, RawCount: 5, CreatedAt: day},
	}

	t.Run("returns runs with default limit", func(t *testing.T) {
		history := new(mockHistory)
		history.On("History", mock.Anything, 0).Return(runs, nil)
		h := handlers.NewReconcileHandler(new(mockTrigger), history, nil)

		rec := serve(t, http.MethodGet, "/reconciliation/history", "/reconciliation/history", "", h.History)

		require.Equal(t, http.StatusOK, rec.Code)
		var got []dto.RunResponse
		decodeData(t, rec, &got)
		require.Len(t, got, 2)
		assert.Equal(t, int64(2), got[0].ID)
		assert.Equal(t, 4, got[1].MatchedCount)
		history.AssertExpectations(t)
	})

	t.Run("passes limit through", func(t *testing.T) {
		history := new(mockHistory)
		history.On("History", mock.Anything, 1).Return(runs[:1], nil)
		h := handlers.NewReconcileHandler(new(mockTrigger), history, nil)

		rec := serve(t, http.MethodGet, "/reconciliation/history", "/reconciliation/history?limit=1", "", h.History)

		require.Equal(t, http.StatusOK, rec.Code)
		history.AssertExpectations(t)
	})

	t.Run("returns empty array when no runs", func(t *testing.T) {
		history := new(mockHistory)
		history.On("History", mock.Anything, 0).Return([]model.Run{}, nil)
		h := handlers.NewReconcileHandler(new(mockTrigger), history, nil)

		rec := serve(t, http.MethodGet, "/reconciliation/history", "/reconciliation/history", "", h.History)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
	})

	t.Run("rejects invalid limit", func(t *testing.T) {
		h := handlers.NewReconcileHandler(new(mockTrigger), new(mockHistory), nil)

		for _, q := range []string{"?limit=-1", "?limit=ten"} {
			rec := serve(t, http.MethodGet, "/reconciliation/history", "/reconciliation/history"+q, "", h.History)
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
	})

	t.Run("returns 500 when ledger read fails", func(t *testing.T) {
		history := new(mockHistory)
		history.On("History", mock.Anything, 0).Return(nil, errors.New("disk I/O error"))
		h := handlers.NewReconcileHandler(new(mockTrigger), history, nil)

		rec := serve(t, http.MethodGet, "/reconciliation/history", "/reconciliation/history", "", h.History)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, dto.ErrCodeInternalError, decodeError(t, rec).Code)
	})
}

func TestReconcileHandler_HistoryGet(t *testing.T) {
	history := new(mockHistory)
	history.On("Get", mock.Anything, int64(1)).Return(&model.RunDetail{
		Run:   model.Run{ID: 1, MatchedCount: 2, RawCount: 2, CreatedAt: day},
		Pairs: []model.MatchedPair{{BankID: 10, SystemID: 11, RuleID: 1}},
	}, nil)
	history.On("Get", mock.Anything, int64(2)).Return(nil, storage.ErrNotFound)
	h := handlers.NewReconcileHandler(new(mockTrigger), history, nil)

	rec := serve(t, http.MethodGet, "/reconciliation/history/{id}", "/reconciliation/history/1", "", h.HistoryGet)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail dto.RunDetailResponse
	decodeData(t, rec, &detail)
	assert.Equal(t, int64(1), detail.ID)
	assert.Equal(t, []dto.PairResponse{{BankTransactionID: 10, SystemTransactionID: 11, RuleID: 1}}, detail.Pairs)

	rec = serve(t, http.MethodGet, "/reconciliation/history/{id}", "/reconciliation/history/2", "", h.HistoryGet)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
