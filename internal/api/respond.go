/**
 * @description
 * Shared response helpers for the API layer. Domain sentinel errors map to
 * HTTP statuses in exactly one place; anything unrecognized becomes a
 * generic 500 with the detail kept server-side.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/fintra/banking-service/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// respondError translates a service error into an HTTP response.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, "insufficient funds")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusUnprocessableEntity, "invalid state transition")
	case errors.Is(err, domain.ErrGateway):
		writeError(w, http.StatusBadGateway, "payment gateway error")
	default:
		log.Printf("level=error component=api msg=\"unhandled error\" err=%v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
