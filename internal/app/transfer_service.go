/**
 * @description
 * TransferService owns the transfer lifecycle: internal account-to-account
 * transfers settled synchronously through the ledger, external bank
 * transfers initiated on the provider rail and settled later by webhook,
 * bulk transfers, and transfer/transaction queries.
 *
 * Key invariants:
 * - The reference is the idempotency key. A duplicate reference returns the
 *   existing transfer instead of creating or settling a second one.
 * - Bank transfers record a pending row before the provider call, so a crash
 *   between initiation and the webhook leaves a reconcilable trace.
 * - Funds move only through the ledger core; this service never writes
 *   balances directly.
 *
 * @dependencies
 * - pkg/ravenclient: The provider gateway client.
 * - internal/store: Persistence interface.
 * - internal/domain: Models and sentinel errors.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/fintra/banking-service/internal/domain"
	"github.com/fintra/banking-service/internal/store"
	"github.com/fintra/banking-service/pkg/ravenclient"
)

// ProviderClient is the subset of the Raven Atlas client the services use.
type ProviderClient interface {
	CreateAccount(ctx context.Context, req ravenclient.CreateAccountRequest) (*ravenclient.CreateAccountResponse, error)
	InitiateTransfer(ctx context.Context, req ravenclient.TransferRequest) (*ravenclient.TransferResponse, error)
	GetTransferStatus(ctx context.Context, reference string) (*ravenclient.TransferResponse, error)
}

// TransferService implements transfer operations and transaction queries.
type TransferService struct {
	repo     store.Repository
	raven    ProviderClient
	currency string
}

// NewTransferService creates a new TransferService.
func NewTransferService(repo store.Repository, raven ProviderClient, currency string) *TransferService {
	if currency == "" {
		currency = "NGN"
	}
	return &TransferService{repo: repo, raven: raven, currency: currency}
}

// AccountTransfer moves funds between two local accounts synchronously.
// Debit, credit, and the completed transfer row settle in one database
// transaction inside the ledger core.
func (s *TransferService) AccountTransfer(ctx context.Context, userID uuid.UUID, req domain.AccountTransferRequest) (*domain.Transfer, error) {
	return s.internalTransfer(ctx, userID, req, domain.TransferTypeAccount)
}

// internalTransfer is the shared settlement path for single and bulk-line
// internal transfers; transferType tags how the transfer originated.
func (s *TransferService) internalTransfer(ctx context.Context, userID uuid.UUID, req domain.AccountTransferRequest, transferType string) (*domain.Transfer, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %w", domain.ErrValidation)
	}
	if req.SenderAccountID == req.RecipientAccountID {
		return nil, fmt.Errorf("sender and recipient must differ: %w", domain.ErrValidation)
	}

	sender, err := s.ownedActiveAccount(ctx, userID, req.SenderAccountID)
	if err != nil {
		return nil, err
	}

	recipient, err := s.repo.FindAccountByID(ctx, req.RecipientAccountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, fmt.Errorf("recipient account not found: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	if recipient.Status != domain.AccountStatusActive {
		return nil, fmt.Errorf("recipient account is %s: %w", recipient.Status, domain.ErrInvalidState)
	}

	senderID := sender.ID
	recipientID := recipient.ID
	transfer := &domain.Transfer{
		UserID:             userID,
		Reference:          NewReference("TRF-"),
		SenderAccountID:    &senderID,
		RecipientAccountID: &recipientID,
		Amount:             req.Amount,
		Currency:           sender.Currency,
		Type:               transferType,
		Narration:          req.Narration,
		Metadata:           req.Metadata,
	}

	completed, err := s.repo.TransferInternal(ctx, transfer)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientFunds):
			return nil, fmt.Errorf("sender balance too low: %w", domain.ErrInsufficientFunds)
		case errors.Is(err, store.ErrAccountNotFound):
			return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
		case errors.Is(err, store.ErrDuplicateReference):
			return s.existingTransfer(ctx, userID, transfer.Reference)
		}
		return nil, err
	}

	log.Printf("level=info component=transfer_service msg=\"internal transfer completed\" reference=%s amount=%d", completed.Reference, completed.Amount)
	return completed, nil
}

// BankTransfer initiates an external transfer on the provider rail. The
// transfer is recorded pending before the provider call; the sender account
// is debited only when the completion webhook arrives.
func (s *TransferService) BankTransfer(ctx context.Context, userID uuid.UUID, req domain.BankTransferRequest) (*domain.Transfer, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %w", domain.ErrValidation)
	}
	if len(req.RecipientAccountNumber) != 10 {
		return nil, fmt.Errorf("recipient account number must be 10 digits: %w", domain.ErrValidation)
	}
	if req.RecipientBankCode == "" {
		return nil, fmt.Errorf("recipient bank code is required: %w", domain.ErrValidation)
	}

	reference := req.Reference
	if reference == "" {
		reference = NewReference("BNK-")
	} else if !ValidReference(reference) {
		return nil, fmt.Errorf("reference must match [A-Za-z0-9_-]{8,64}: %w", domain.ErrValidation)
	}

	sender, err := s.ownedActiveAccount(ctx, userID, req.SenderAccountID)
	if err != nil {
		return nil, err
	}
	if sender.Balance < req.Amount {
		return nil, fmt.Errorf("sender balance too low: %w", domain.ErrInsufficientFunds)
	}

	senderID := sender.ID
	transfer := &domain.Transfer{
		UserID:          userID,
		Reference:       reference,
		SenderAccountID: &senderID,
		Amount:          req.Amount,
		Currency:        sender.Currency,
		Status:          domain.TransferStatusPending,
		Type:            domain.TransferTypeBank,
		Narration:       req.Narration,
		Metadata:        mergeRecipientMetadata(req),
	}

	created, err := s.repo.CreateTransfer(ctx, transfer)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateReference) {
			// Idempotent accept: surface the transfer already holding this reference.
			return s.existingTransfer(ctx, userID, reference)
		}
		return nil, err
	}

	resp, err := s.raven.InitiateTransfer(ctx, ravenclient.TransferRequest{
		Amount:        req.Amount,
		BankCode:      req.RecipientBankCode,
		AccountNumber: req.RecipientAccountNumber,
		AccountName:   req.RecipientName,
		Narration:     req.Narration,
		Reference:     reference,
		Currency:      sender.Currency,
	})
	if err != nil {
		reason := err.Error()
		if _, failErr := s.repo.FailBankTransfer(ctx, created.ID, reason); failErr != nil {
			log.Printf("level=error component=transfer_service msg=\"failed to mark transfer failed after provider error\" reference=%s err=%v", reference, failErr)
		}
		return nil, fmt.Errorf("provider initiation failed: %w", domain.ErrGateway)
	}

	if resp.TRXRef != "" {
		if err := s.repo.UpdateTransferExternalReference(ctx, created.ID, resp.TRXRef); err != nil {
			log.Printf("level=warn component=transfer_service msg=\"failed to record external reference\" reference=%s err=%v", reference, err)
		} else {
			created.ExternalReference = &resp.TRXRef
		}
	}

	log.Printf("level=info component=transfer_service msg=\"bank transfer initiated\" reference=%s trx_ref=%s amount=%d", reference, resp.TRXRef, req.Amount)
	return created, nil
}

// BulkTransfer runs the line items sequentially as internal transfers from
// one sender account. A failed line is captured in its result and does not
// roll back lines that already settled.
func (s *TransferService) BulkTransfer(ctx context.Context, userID uuid.UUID, req domain.BulkTransferRequest) ([]domain.BulkTransferResult, error) {
	if len(req.Transfers) == 0 {
		return nil, fmt.Errorf("at least one transfer line is required: %w", domain.ErrValidation)
	}

	results := make([]domain.BulkTransferResult, 0, len(req.Transfers))
	for i := range req.Transfers {
		item := req.Transfers[i]
		transfer, err := s.internalTransfer(ctx, userID, domain.AccountTransferRequest{
			SenderAccountID:    req.SenderAccountID,
			RecipientAccountID: item.RecipientAccountID,
			Amount:             item.Amount,
			Narration:          item.Narration,
		}, domain.TransferTypeBulk)
		if err != nil {
			results = append(results, domain.BulkTransferResult{Success: false, Item: &item, Error: err.Error()})
			continue
		}
		results = append(results, domain.BulkTransferResult{Success: true, Transfer: transfer})
	}
	return results, nil
}

// GetTransfer retrieves one transfer owned by the user.
func (s *TransferService) GetTransfer(ctx context.Context, userID, transferID uuid.UUID) (*domain.Transfer, error) {
	transfer, err := s.repo.FindTransferByID(ctx, transferID)
	if err != nil {
		if errors.Is(err, store.ErrTransferNotFound) {
			return nil, fmt.Errorf("transfer not found: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	if transfer.UserID != userID {
		return nil, fmt.Errorf("transfer belongs to another user: %w", domain.ErrForbidden)
	}
	return transfer, nil
}

// GetTransferStatus reports local state, enriched with the provider's live
// view for bank transfers that have not settled yet. A provider lookup
// failure degrades to local state only.
func (s *TransferService) GetTransferStatus(ctx context.Context, userID, transferID uuid.UUID) (*domain.TransferStatusView, error) {
	transfer, err := s.GetTransfer(ctx, userID, transferID)
	if err != nil {
		return nil, err
	}

	view := &domain.TransferStatusView{Transfer: transfer}
	if transfer.Type != domain.TransferTypeBank || transfer.Terminal() {
		return view, nil
	}

	lookupRef := transfer.Reference
	if transfer.ExternalReference != nil && *transfer.ExternalReference != "" {
		lookupRef = *transfer.ExternalReference
	}
	resp, err := s.raven.GetTransferStatus(ctx, lookupRef)
	if err != nil {
		log.Printf("level=warn component=transfer_service msg=\"provider status lookup failed\" reference=%s err=%v", transfer.Reference, err)
		return view, nil
	}
	view.ProviderStatus = resp.Status
	return view, nil
}

// ListTransfers returns one page of the user's transfers plus the total count.
func (s *TransferService) ListTransfers(ctx context.Context, userID uuid.UUID, page, limit int) ([]domain.Transfer, int64, error) {
	return s.repo.ListTransfersByUserID(ctx, userID, page, limit)
}

// GetTransaction retrieves one ledger entry owned by the user.
func (s *TransferService) GetTransaction(ctx context.Context, userID, transactionID uuid.UUID) (*domain.Transaction, error) {
	entry, err := s.repo.FindTransactionByID(ctx, transactionID, userID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			return nil, fmt.Errorf("transaction not found: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return entry, nil
}

// ListTransactions returns one filtered page of the user's ledger history.
func (s *TransferService) ListTransactions(ctx context.Context, userID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	return s.repo.ListTransactions(ctx, userID, filter)
}

// GetTransactionSummary aggregates the user's ledger history.
func (s *TransferService) GetTransactionSummary(ctx context.Context, userID uuid.UUID) (*domain.TransactionSummary, error) {
	return s.repo.GetTransactionSummary(ctx, userID)
}

// ownedActiveAccount loads an account and checks ownership and status.
func (s *TransferService) ownedActiveAccount(ctx context.Context, userID, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, fmt.Errorf("sender account not found: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	if account.UserID != userID {
		return nil, fmt.Errorf("account belongs to another user: %w", domain.ErrForbidden)
	}
	if account.Status != domain.AccountStatusActive {
		return nil, fmt.Errorf("account is %s: %w", account.Status, domain.ErrInvalidState)
	}
	return account, nil
}

// existingTransfer resolves a duplicate reference to the transfer that holds
// it, but only for its owner. A reference claimed by another user is a plain
// conflict so nothing about the foreign transfer leaks.
func (s *TransferService) existingTransfer(ctx context.Context, userID uuid.UUID, reference string) (*domain.Transfer, error) {
	existing, err := s.repo.FindTransferByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("duplicate reference: %w", domain.ErrConflict)
	}
	if existing.UserID != userID {
		return nil, fmt.Errorf("reference already in use: %w", domain.ErrConflict)
	}
	return existing, nil
}

func mergeRecipientMetadata(req domain.BankTransferRequest) map[string]string {
	metadata := make(map[string]string, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["recipient_account_number"] = req.RecipientAccountNumber
	metadata["recipient_bank_code"] = req.RecipientBankCode
	if req.RecipientName != "" {
		metadata["recipient_name"] = req.RecipientName
	}
	return metadata
}
