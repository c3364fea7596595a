/**
 * @description
 * WebhookProcessor reconciles provider outcomes delivered over HTTP. Every
 * delivery is authenticated by an HMAC-SHA256 signature over the raw body
 * before any payload is parsed. Settlement is idempotent: duplicate
 * deliveries and out-of-order events resolve to a single state because the
 * store transitions are conditional on the current status.
 *
 * Handled events:
 * - transfer.completed: pending -> completed, debit the sender account.
 * - transfer.failed:    pending -> failed, no balance change.
 * - transfer.reversed:  completed -> reversed, credit the amount back.
 * - deposit.completed:  credit the account matched by account number.
 * Unknown events are logged and acknowledged so the provider stops retrying.
 *
 * After a successful transition the processor publishes a lifecycle event to
 * RabbitMQ. Publishing is best effort and never fails the webhook.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256: Signature verification.
 * - pkg/rabbitmq: Lifecycle event publishing.
 * - internal/store: Conditional settlement transitions.
 */

package app

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fintra/banking-service/internal/domain"
	"github.com/fintra/banking-service/internal/store"
	"github.com/fintra/banking-service/pkg/rabbitmq"
)

// WebhookProcessor verifies and applies provider webhook deliveries.
type WebhookProcessor struct {
	repo     store.Repository
	secret   string
	producer rabbitmq.Publisher
}

// NewWebhookProcessor creates a new WebhookProcessor.
func NewWebhookProcessor(repo store.Repository, secret string, producer rabbitmq.Publisher) *WebhookProcessor {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	return &WebhookProcessor{repo: repo, secret: secret, producer: producer}
}

// VerifySignature checks the hex HMAC-SHA256 of the raw body in constant time.
func (p *WebhookProcessor) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(p.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Process authenticates and applies one webhook delivery. A nil return means
// the delivery is acknowledged, including idempotent no-ops and unknown
// events; Unauthorized means the signature did not verify.
func (p *WebhookProcessor) Process(ctx context.Context, body []byte, signature string) error {
	if !p.VerifySignature(body, signature) {
		return fmt.Errorf("webhook signature mismatch: %w", domain.ErrUnauthorized)
	}

	var event domain.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("malformed webhook payload: %w", domain.ErrValidation)
	}

	switch event.Event {
	case domain.WebhookTransferCompleted:
		return p.settleTransfer(ctx, event, domain.TransferStatusCompleted)
	case domain.WebhookTransferFailed:
		return p.settleTransfer(ctx, event, domain.TransferStatusFailed)
	case domain.WebhookTransferReversed:
		return p.settleTransfer(ctx, event, domain.TransferStatusReversed)
	case domain.WebhookDepositCompleted:
		return p.applyDeposit(ctx, event)
	default:
		log.Printf("level=warn component=webhook_processor msg=\"ignoring unknown event\" event=%s reference=%s", event.Event, event.Data.Reference)
		return nil
	}
}

// settleTransfer applies a terminal outcome to the transfer holding the
// event's reference.
func (p *WebhookProcessor) settleTransfer(ctx context.Context, event domain.WebhookEvent, target string) error {
	reference := event.Data.Reference
	if reference == "" {
		return fmt.Errorf("webhook missing reference: %w", domain.ErrValidation)
	}

	transfer, err := p.repo.FindTransferByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, store.ErrTransferNotFound) {
			log.Printf("level=warn component=webhook_processor msg=\"no transfer for reference, acknowledging\" event=%s reference=%s", event.Event, reference)
			return nil
		}
		return err
	}

	if transfer.Type != domain.TransferTypeBank {
		// Only bank transfers settle by webhook. Internal transfers already
		// settled in the ledger; a provider event naming one is acknowledged
		// without touching balances.
		log.Printf("level=warn component=webhook_processor msg=\"event for non-bank transfer, acknowledging\" event=%s reference=%s type=%s", event.Event, reference, transfer.Type)
		return nil
	}
	if transfer.Status == target {
		log.Printf("level=info component=webhook_processor msg=\"duplicate delivery, no-op\" event=%s reference=%s", event.Event, reference)
		return nil
	}
	if !CanTransition(transfer.Status, target) {
		log.Printf("level=warn component=webhook_processor msg=\"transition not allowed, acknowledging\" event=%s reference=%s from=%s to=%s", event.Event, reference, transfer.Status, target)
		return nil
	}

	var applied bool
	switch target {
	case domain.TransferStatusCompleted:
		applied, err = p.repo.CompleteBankTransfer(ctx, transfer.ID, event.Data.ID)
	case domain.TransferStatusFailed:
		reason := event.Data.FailureReason
		if reason == "" {
			reason = "provider reported failure"
		}
		applied, err = p.repo.FailBankTransfer(ctx, transfer.ID, reason)
	case domain.TransferStatusReversed:
		applied, err = p.repo.ReverseBankTransfer(ctx, transfer.ID)
	}
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent delivery won the race; the state is already settled.
		log.Printf("level=info component=webhook_processor msg=\"transition lost race, no-op\" event=%s reference=%s", event.Event, reference)
		return nil
	}

	log.Printf("level=info component=webhook_processor msg=\"transfer settled\" event=%s reference=%s status=%s", event.Event, reference, target)
	p.publishLifecycleEvent(ctx, transfer, target)
	return nil
}

// applyDeposit credits an inbound bank deposit to the matching account.
// Idempotency rides on the ledger's unique reference.
func (p *WebhookProcessor) applyDeposit(ctx context.Context, event domain.WebhookEvent) error {
	data := event.Data
	if data.AccountNumber == "" || data.Reference == "" || data.Amount <= 0 {
		return fmt.Errorf("deposit webhook missing account number, reference, or amount: %w", domain.ErrValidation)
	}

	account, err := p.repo.FindAccountByNumber(ctx, data.AccountNumber)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			log.Printf("level=warn component=webhook_processor msg=\"no account for deposit, acknowledging\" account_number=%s reference=%s", data.AccountNumber, data.Reference)
			return nil
		}
		return err
	}

	_, err = p.repo.ApplyEntry(ctx, store.EntryParams{
		AccountID: account.ID,
		Amount:    data.Amount,
		Reference: data.Reference,
		Type:      domain.EntryTypeDeposit,
		Narration: "bank deposit",
		Metadata:  map[string]string{"bank_code": data.BankCode},
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateReference) {
			log.Printf("level=info component=webhook_processor msg=\"duplicate deposit, no-op\" reference=%s", data.Reference)
			return nil
		}
		return err
	}

	log.Printf("level=info component=webhook_processor msg=\"deposit credited\" account_number=%s reference=%s amount=%d", data.AccountNumber, data.Reference, data.Amount)
	return nil
}

func (p *WebhookProcessor) publishLifecycleEvent(ctx context.Context, transfer *domain.Transfer, status string) {
	err := p.producer.PublishTransferLifecycleEvent(ctx, rabbitmq.TransferLifecycleEvent{
		TransferID: transfer.ID,
		UserID:     transfer.UserID,
		Reference:  transfer.Reference,
		Status:     status,
		Amount:     transfer.Amount,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		log.Printf("level=warn component=webhook_processor msg=\"lifecycle event publish failed\" reference=%s status=%s err=%v", transfer.Reference, status, err)
	}
}
