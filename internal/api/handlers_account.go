/**
 * @description
 * HTTP handlers for virtual account provisioning and queries. All routes
 * here sit behind the auth middleware; ownership checks happen in the
 * account service.
 */

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fintra/banking-service/internal/domain"
)

type createAccountRequest struct {
	AccountType string `json:"account_type"`
}

// CreateAccountHandler provisions a new account for the caller.
func (h *Handlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createAccountRequest
	if r.Body != nil {
		// An empty body defaults to a savings account.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	account, err := h.accounts.CreateAccount(r.Context(), userID, req.AccountType)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// ListAccountsHandler returns all of the caller's accounts.
func (h *Handlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	accounts, err := h.accounts.ListAccounts(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// GetAccountHandler returns one of the caller's accounts.
func (h *Handlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), userID, accountID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// UpdateAccountHandler changes an account's status or limits.
func (h *Handlers) UpdateAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return
	}

	var update domain.AccountUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.accounts.UpdateAccount(r.Context(), userID, accountID, update)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}
