/**
 * @description
 * HTTP handler for inbound provider webhooks. The raw body is read before
 * parsing so the HMAC signature covers exactly the bytes the provider sent.
 * Idempotent no-ops and unknown events still return 200 so the provider
 * stops redelivering.
 */

package api

import (
	"io"
	"net/http"
)

// webhookSignatureHeader carries the provider's hex HMAC-SHA256 of the body.
const webhookSignatureHeader = "X-Raven-Signature"

// RavenWebhookHandler verifies and applies one provider webhook delivery.
func (h *Handlers) RavenWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	signature := r.Header.Get(webhookSignatureHeader)
	if err := h.webhooks.Process(r.Context(), body, signature); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
