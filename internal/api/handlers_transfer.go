/**
 * @description
 * HTTP handlers for transfers. Internal account transfers settle
 * synchronously (201), bank transfers are accepted pending webhook
 * settlement (202), and bulk transfers report per-line outcomes (207).
 */

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fintra/banking-service/internal/domain"
)

type transferListResponse struct {
	Transfers []domain.Transfer `json:"transfers"`
	Total     int64             `json:"total"`
	Page      int               `json:"page"`
	Limit     int               `json:"limit"`
}

// AccountTransferHandler handles internal account-to-account transfers.
func (h *Handlers) AccountTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req domain.AccountTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	transfer, err := h.transfers.AccountTransfer(r.Context(), userID, req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, transfer)
}

// BankTransferHandler initiates an external bank transfer.
func (h *Handlers) BankTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req domain.BankTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	transfer, err := h.transfers.BankTransfer(r.Context(), userID, req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, transfer)
}

// BulkTransferHandler runs a batch of internal transfers and reports
// per-line outcomes with a multi-status response.
func (h *Handlers) BulkTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req domain.BulkTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	results, err := h.transfers.BulkTransfer(r.Context(), userID, req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusMultiStatus, map[string]any{"results": results})
}

// ListTransfersHandler returns one page of the caller's transfers.
func (h *Handlers) ListTransfersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)

	transfers, total, err := h.transfers.ListTransfers(r.Context(), userID, page, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transferListResponse{Transfers: transfers, Total: total, Page: page, Limit: limit})
}

// GetTransferHandler returns one of the caller's transfers.
func (h *Handlers) GetTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	transferID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	transfer, err := h.transfers.GetTransfer(r.Context(), userID, transferID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

// GetTransferStatusHandler returns local transfer state plus the provider's
// live status for unsettled bank transfers.
func (h *Handlers) GetTransferStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	transferID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transfer id")
		return
	}

	view, err := h.transfers.GetTransferStatus(r.Context(), userID, transferID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
