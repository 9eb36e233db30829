package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/eshaffer321/reconciler-backend/internal/api/dto"
	"github.com/eshaffer321/reconciler-backend/internal/domain/model"
	"github.com/eshaffer321/reconciler-backend/internal/infrastructure/storage"
)

// TransactionsHandler handles transaction-related HTTP requests.
type TransactionsHandler struct {
	*Base
	repo storage.TransactionRepository
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo storage.TransactionRepository, logger *slog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		Base: NewBase(logger),
		repo: repo,
	}
}

// List handles GET /transactions - returns a page of transactions.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := storage.TransactionFilter{
		PageNumber: ParseIntParam(r, "pageNumber", 1),
		PageSize:   ParseIntParam(r, "pageSize", storage.DefaultPageSize),
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := model.ParseStatus(raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(err.Error()))
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("source"); raw != "" {
		source, err := model.ParseSource(raw)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(err.Error()))
			return
		}
		filter.Source = source
	}

	page, err := h.repo.ListTransactions(r.Context(), filter)
	if err != nil {
		h.WriteServiceError(w, r, "transaction", err)
		return
	}

	response := dto.TransactionPageResponse{
		Transactions:  make([]dto.TransactionResponse, 0, len(page.Transactions)),
		PageNumber:    page.PageNumber,
		PageSize:      page.PageSize,
		TotalElements: page.TotalElements,
		TotalPages:    page.TotalPages,
	}
	for _, t := range page.Transactions {
		response.Transactions = append(response.Transactions, toTransactionResponse(t))
	}

	h.WriteData(w, http.StatusOK, response)
}

// Get handles GET /transactions/{id}.
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ParseID(w, r, "transaction")
	if !ok {
		return
	}

	txn, err := h.repo.GetTransaction(r.Context(), id)
	if err != nil {
		h.WriteServiceError(w, r, "transaction", err)
		return
	}

	h.WriteData(w, http.StatusOK, toTransactionResponse(*txn))
}

// Create handles POST /transactions. New transactions are always RAW.
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTransactionRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	input := storage.TransactionInput{
		Description: req.Description,
		Amount:      *req.Amount,
		Source:      model.Source(req.Source),
	}
	if req.CreatedAt != nil {
		input.CreatedAt = *req.CreatedAt
	}

	txn, err := h.repo.CreateTransaction(r.Context(), input)
	if err != nil {
		h.WriteServiceError(w, r, "transaction", err)
		return
	}

	h.WriteData(w, http.StatusCreated, toTransactionResponse(*txn))
}

// Update handles PUT /transactions/{id}. Only RAW transactions can be edited.
func (h *TransactionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ParseID(w, r, "transaction")
	if !ok {
		return
	}

	var req dto.UpdateTransactionRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	txn, err := h.repo.UpdateTransaction(r.Context(), id, storage.TransactionEdit{
		Description: req.Description,
		Amount:      *req.Amount,
		Source:      model.Source(req.Source),
	})
	if err != nil {
		h.WriteServiceError(w, r, "transaction", err)
		return
	}

	h.WriteData(w, http.StatusOK, toTransactionResponse(*txn))
}

// Delete handles DELETE /transactions/{id}.
func (h *TransactionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ParseID(w, r, "transaction")
	if !ok {
		return
	}

	if err := h.repo.DeleteTransaction(r.Context(), id); err != nil {
		h.WriteServiceError(w, r, "transaction", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reset handles POST /transactions/{id}/reset - puts a reconciled
// transaction back to RAW so the next run considers it again.
func (h *TransactionsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ParseID(w, r, "transaction")
	if !ok {
		return
	}

	txn, err := h.repo.ResetTransaction(r.Context(), id)
	if err != nil {
		h.WriteServiceError(w, r, "transaction", err)
		return
	}

	h.WriteData(w, http.StatusOK, toTransactionResponse(*txn))
}

// toTransactionResponse converts a transaction to an API response.
func toTransactionResponse(t model.Transaction) dto.TransactionResponse {
	return dto.TransactionResponse{
		ID:          t.ID,
		Description: t.Description,
		Amount:      json.Number(t.Amount.String()),
		Source:      string(t.Source),
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt.UTC(),
	}
}
