/**
 * @description
 * HTTP handlers for ledger history: filtered listing, a summary aggregate,
 * and single-entry lookup. Ownership is enforced through the account join in
 * the store, so these handlers only parse filters and forward.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fintra/banking-service/internal/domain"
)

type transactionListResponse struct {
	Transactions []domain.Transaction `json:"transactions"`
	Total        int64                `json:"total"`
	Page         int                  `json:"page"`
	Limit        int                  `json:"limit"`
}

// ListTransactionsHandler returns one filtered page of the caller's ledger history.
func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	filter := domain.TransactionFilter{
		Type:   r.URL.Query().Get("type"),
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
		Page:   queryInt(r, "page", 1),
		Limit:  queryInt(r, "limit", 20),
	}
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		accountID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid account_id filter")
			return
		}
		filter.AccountID = &accountID
	}
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		start, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start_date must be RFC 3339")
			return
		}
		filter.StartDate = &start
	}
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		end, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "end_date must be RFC 3339")
			return
		}
		filter.EndDate = &end
	}

	entries, total, err := h.transfers.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionListResponse{Transactions: entries, Total: total, Page: filter.Page, Limit: filter.Limit})
}

// TransactionSummaryHandler returns aggregate counts and totals.
func (h *Handlers) TransactionSummaryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summary, err := h.transfers.GetTransactionSummary(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetTransactionHandler returns one of the caller's ledger entries.
func (h *Handlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	transactionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	entry, err := h.transfers.GetTransaction(r.Context(), userID, transactionID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
