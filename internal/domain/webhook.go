/**
 * @description
 * Payload types for inbound provider webhooks. The provider signs the raw
 * request body with HMAC-SHA256; these types describe the decoded shape
 * after the signature check passes.
 */

package domain

// Webhook event names delivered by the provider.
const (
	WebhookTransferCompleted = "transfer.completed"
	WebhookTransferFailed    = "transfer.failed"
	WebhookTransferReversed  = "transfer.reversed"
	WebhookDepositCompleted  = "deposit.completed"
)

// WebhookEvent is the provider's notification envelope.
type WebhookEvent struct {
	Event string           `json:"event"`
	Data  WebhookEventData `json:"data"`
}

// WebhookEventData carries the event payload. Which fields are populated
// depends on the event; Reference is always present for transfer events and
// deposit events carry AccountNumber.
type WebhookEventData struct {
	ID            string `json:"id,omitempty"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount,omitempty"` // in kobo
	AccountNumber string `json:"account_number,omitempty"`
	BankCode      string `json:"bank_code,omitempty"`
	Status        string `json:"status,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}
