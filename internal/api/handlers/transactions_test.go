package handlers_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconciler-backend/internal/api/dto"
	"github.com/eshaffer321/reconciler-backend/internal/api/handlers"
	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
	"github.com/eshaffer321/reconciler-backend/internal/infrastructure/storage"
)

var day = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func addTxn(repo *storage.MockRepository, id int64, source model.Source, status model.Status, amount string) {
	repo.AddTransaction(model.Transaction{
		ID:          id,
		Description: fmt.Sprintf("txn %d", id),
		Amount:      decimal.RequireFromString(amount),
		Source:      source,
		Status:      status,
		CreatedAt:   day.Add(time.Duration(id) * time.Minute),
	})
}

func TestTransactionsHandler_List(t *testing.T) {
	t.Run("returns empty page when no transactions", func(t *testing.T) {
		h := handlers.NewTransactionsHandler(storage.NewMockRepository(), nil)

		rec := serve(t, http.MethodGet, "/transactions", "/transactions", "", h.List)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var page dto.TransactionPageResponse
		decodeData(t, rec, &page)
		assert.Empty(t, page.Transactions)
		assert.NotNil(t, page.Transactions)
		assert.Equal(t, 1, page.PageNumber)
		assert.Equal(t, storage.DefaultPageSize, page.PageSize)
		assert.Equal(t, 0, page.TotalElements)
		assert.Equal(t, 1, page.TotalPages)
	})

	t.Run("pages newest first", func(t *testing.T) {
		repo := storage.NewMockRepository()
		for i := int64(1); i <= 5; i++ {
			addTxn(repo, i, model.SourceBank, model.StatusRaw, "10.00")
		}
		h := handlers.NewTransactionsHandler(repo, nil)

		rec := serve(t, http.MethodGet, "/transactions", "/transactions?pageNumber=2&pageSize=2", "", h.List)

		require.Equal(t, http.StatusOK, rec.Code)
		var page dto.TransactionPageResponse
		decodeData(t, rec, &page)
		require.Len(t, page.Transactions, 2)
		assert.Equal(t, int64(3), page.Transactions[0].ID)
		assert.Equal(t, int64(2), page.Transactions[1].ID)
		assert.Equal(t, 5, page.TotalElements)
		assert.Equal(t, 3, page.TotalPages)
	})

	t.Run("filters by status and source", func(t *testing.T) {
		repo := storage.NewMockRepository()
		addTxn(repo, 1, model.SourceBank, model.StatusRaw, "1")
		addTxn(repo, 2, model.SourceSystem, model.StatusRaw, "1")
		addTxn(repo, 3, model.SourceBank, model.StatusMatched, "1")
		h := handlers.NewTransactionsHandler(repo, nil)

		rec := serve(t, http.MethodGet, "/transactions", "/transactions?status=RAW&source=BANK", "", h.List)

		require.Equal(t, http.StatusOK, rec.Code)
		var page dto.TransactionPageResponse
		decodeData(t, rec, &page)
		require.Len(t, page.Transactions, 1)
		assert.Equal(t, int64(1), page.Transactions[0].ID)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		h := handlers.NewTransactionsHandler(storage.NewMockRepository(), nil)

		rec := serve(t, http.MethodGet, "/transactions", "/transactions?status=PENDING", "", h.List)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, dto.ErrCodeBadRequest, decodeError(t, rec).Code)
	})

	t.Run("rejects unknown source", func(t *testing.T) {
		h := handlers.NewTransactionsHandler(storage.NewMockRepository(), nil)

		rec := serve(t, http.MethodGet, "/transactions", "/transactions?source=CARD", "", h.List)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTransactionsHandler_Get(t *testing.T) {
	repo := storage.NewMockRepository()
	addTxn(repo, 7, model.SourceSystem, model.StatusUnmatched, "42.50")
	h := handlers.NewTransactionsHandler(repo, nil)

	t.Run("returns transaction with exact amount", func(t *testing.T) {
		rec := serve(t, http.MethodGet, "/transactions/{id}", "/transactions/7", "", h.Get)

		require.Equal(t, http.StatusOK, rec.Code)
		var txn dto.TransactionResponse
		decodeData(t, rec, &txn)
		assert.Equal(t, int64(7), txn.ID)
		assert.Equal(t, "42.5", txn.Amount.String())
		assert.Equal(t, "SYSTEM", txn.Source)
		assert.Equal(t, "UNMATCHED", txn.Status)
	})

	t.Run("returns 404 for missing transaction", func(t *testing.T) {
		rec := serve(t, http.MethodGet, "/transactions/{id}", "/transactions/99", "", h.Get)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decodeError(t, rec).Code)
	})

	t.Run("returns 400 for invalid id", func(t *testing.T) {
		rec := serve(t, http.MethodGet, "/transactions/{id}", "/transactions/abc", "", h.Get)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTransactionsHandler_Create(t *testing.T) {
	t.Run("creates RAW transaction", func(t *testing.T) {
		repo := storage.NewMockRepository()
		h := handlers.NewTransactionsHandler(repo, nil)

		rec := serve(t, http.MethodPost, "/transactions", "/transactions",
			`{"description":"coffee","amount":4.35,"source":"BANK"}`, h.Create)

		require.Equal(t, http.StatusCreated, rec.Code)
		var txn dto.TransactionResponse
		decodeData(t, rec, &txn)
		assert.Equal(t, "coffee", txn.Description)
		assert.Equal(t, "4.35", txn.Amount.String())
		assert.Equal(t, "RAW", txn.Status)

		stored := repo.Transactions()
		require.Len(t, stored, 1)
		assert.True(t, stored[0].Amount.Equal(decimal.RequireFromString("4.35")))
	})

	t.Run("accepts string amount and createdAt", func(t *testing.T) {
		repo := storage.NewMockRepository()
		h := handlers.NewTransactionsHandler(repo, nil)

		rec := serve(t, http.MethodPost, "/transactions", "/transactions",
			`{"description":"rent","amount":"-1200.00","source":"SYSTEM","createdAt":"2024-03-01T09:00:00Z"}`, h.Create)

		require.Equal(t, http.StatusCreated, rec.Code)
		stored := repo.Transactions()
		require.Len(t, stored, 1)
		assert.True(t, stored[0].Amount.Equal(decimal.NewFromInt(-1200)))
		assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), stored[0].CreatedAt)
	})

	t.Run("ignores client status", func(t *testing.T) {
		repo := storage.NewMockRepository()
		h := handlers.NewTransactionsHandler(repo, nil)

		rec := serve(t, http.MethodPost, "/transactions", "/transactions",
			`{"description":"x","amount":1,"source":"BANK","status":"MATCHED"}`, h.Create)

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, model.StatusRaw, repo.Transactions()[0].Status)
	})

	tests := []struct {
		name string
		body string
	}{
		{"missing amount", `{"description":"x","source":"BANK"}`},
		{"missing source", `{"description":"x","amount":1}`},
		{"invalid source", `{"description":"x","amount":1,"source":"CARD"}`},
		{"malformed json", `{"description":`},
		{"non-numeric amount", `{"description":"x","amount":"lots","source":"BANK"}`},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			repo := storage.NewMockRepository()
			h := handlers.NewTransactionsHandler(repo, nil)

			rec := serve(t, http.MethodPost, "/transactions", "/transactions", tt.body, h.Create)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, repo.Transactions())
		})
	}
}

func TestTransactionsHandler_Update(t *testing.T) {
	t.Run("edits RAW transaction", func(t *testing.T) {
		repo := storage.NewMockRepository()
		addTxn(repo, 1, model.SourceBank, model.StatusRaw, "10")
		h := handlers.NewTransactionsHandler(repo, nil)

		rec := serve(t, http.MethodPut, "/transactions/{id}", "/transactions/1",
			`{"description":"fixed","amount":"11.00","source":"SYSTEM"}`, h.Update)

		require.Equal(t, http.StatusOK, rec.Code)
		var txn dto.TransactionResponse
		decodeData(t, rec, &txn)
		assert.Equal(t, "fixed", txn.Description)
		assert.Equal(t, "SYSTEM", txn.Source)
		assert.Equal(t, "RAW", txn.Status)
	})

	t.Run("returns 409 for reconciled transaction", func(t *testing.T) {
		repo := storage.NewMockRepository()
		addTxn(repo, 1, model.SourceBank, model.StatusMatched, "10")
		h := handlers.NewTransactionsHandler(repo, nil)

		rec := serve(t, http.MethodPut, "/transactions/{id}", "/transactions/1",
			`{"description":"fixed","amount":"11.00","source":"BANK"}`, h.Update)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, dto.ErrCodeConflict, decodeError(t, rec).Code)
		assert.Equal(t, "txn 1", repo.Transactions()[0].Description)
	})

	t.Run("returns 404 for missing transaction", func(t *testing.T) {
		h := handlers.NewTransactionsHandler(storage.NewMockRepository(), nil)

		rec := serve(t, http.MethodPut, "/transactions/{id}", "/transactions/5",
			`{"description":"x","amount":1,"source":"BANK"}`, h.Update)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTransactionsHandler_DeleteAndReset(t *testing.T) {
	repo := storage.NewMockRepository()
	addTxn(repo, 1, model.SourceBank, model.StatusMatched, "10")
	addTxn(repo, 2, model.SourceBank, model.StatusRaw, "10")
	h := handlers.NewTransactionsHandler(repo, nil)

	rec := serve(t, http.MethodPost, "/transactions/{id}/reset", "/transactions/1/reset", "", h.Reset)
	require.Equal(t, http.StatusOK, rec.Code)
	var txn dto.TransactionResponse
	decodeData(t, rec, &txn)
	assert.Equal(t, "RAW", txn.Status)

	rec = serve(t, http.MethodDelete, "/transactions/{id}", "/transactions/2", "", h.Delete)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, repo.Transactions(), 1)

	rec = serve(t, http.MethodDelete, "/transactions/{id}", "/transactions/2", "", h.Delete)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, http.MethodPost, "/transactions/{id}/reset", "/transactions/2/reset", "", h.Reset)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
