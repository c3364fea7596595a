package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/fintra/banking-service/internal/domain"
	"github.com/fintra/banking-service/internal/store"
	"github.com/fintra/banking-service/pkg/ravenclient"
)

// transferStubRepository implements the repository surface the transfer
// service touches.
type transferStubRepository struct {
	store.Repository

	accounts  map[uuid.UUID]*domain.Account
	transfers map[string]*domain.Transfer

	transferInternalErr error
	createTransferErr   error
	failedTransfers     []uuid.UUID
	externalRefs        map[uuid.UUID]string
	internalCalls       int
}

func newTransferStub() *transferStubRepository {
	return &transferStubRepository{
		accounts:     make(map[uuid.UUID]*domain.Account),
		transfers:    make(map[string]*domain.Transfer),
		externalRefs: make(map[uuid.UUID]string),
	}
}

func (s *transferStubRepository) addAccount(account *domain.Account) {
	s.accounts[account.ID] = account
}

func (s *transferStubRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return account, nil
}

func (s *transferStubRepository) TransferInternal(ctx context.Context, transfer *domain.Transfer) (*domain.Transfer, error) {
	s.internalCalls++
	if s.transferInternalErr != nil {
		return nil, s.transferInternalErr
	}
	sender := s.accounts[*transfer.SenderAccountID]
	if sender.Balance < transfer.Amount {
		return nil, store.ErrInsufficientFunds
	}
	sender.Balance -= transfer.Amount
	s.accounts[*transfer.RecipientAccountID].Balance += transfer.Amount
	transfer.ID = uuid.New()
	transfer.Status = domain.TransferStatusCompleted
	s.transfers[transfer.Reference] = transfer
	return transfer, nil
}

func (s *transferStubRepository) CreateTransfer(ctx context.Context, transfer *domain.Transfer) (*domain.Transfer, error) {
	if s.createTransferErr != nil {
		return nil, s.createTransferErr
	}
	if _, exists := s.transfers[transfer.Reference]; exists {
		return nil, store.ErrDuplicateReference
	}
	transfer.ID = uuid.New()
	s.transfers[transfer.Reference] = transfer
	return transfer, nil
}

func (s *transferStubRepository) FindTransferByReference(ctx context.Context, reference string) (*domain.Transfer, error) {
	transfer, ok := s.transfers[reference]
	if !ok {
		return nil, store.ErrTransferNotFound
	}
	return transfer, nil
}

func (s *transferStubRepository) FailBankTransfer(ctx context.Context, transferID uuid.UUID, reason string) (bool, error) {
	s.failedTransfers = append(s.failedTransfers, transferID)
	for _, transfer := range s.transfers {
		if transfer.ID == transferID && transfer.Status == domain.TransferStatusPending {
			transfer.Status = domain.TransferStatusFailed
			transfer.FailureReason = &reason
			return true, nil
		}
	}
	return false, nil
}

func (s *transferStubRepository) UpdateTransferExternalReference(ctx context.Context, transferID uuid.UUID, externalReference string) error {
	s.externalRefs[transferID] = externalReference
	return nil
}

// stubProvider fakes the Raven client.
type stubProvider struct {
	initiateResp *ravenclient.TransferResponse
	initiateErr  error
	initiated    []ravenclient.TransferRequest
	statusResp   *ravenclient.TransferResponse
	statusErr    error
}

func (p *stubProvider) CreateAccount(ctx context.Context, req ravenclient.CreateAccountRequest) (*ravenclient.CreateAccountResponse, error) {
	return &ravenclient.CreateAccountResponse{AccountNumber: "9900112233", AccountName: "Test", Bank: "Raven"}, nil
}

func (p *stubProvider) InitiateTransfer(ctx context.Context, req ravenclient.TransferRequest) (*ravenclient.TransferResponse, error) {
	p.initiated = append(p.initiated, req)
	if p.initiateErr != nil {
		return nil, p.initiateErr
	}
	return p.initiateResp, nil
}

func (p *stubProvider) GetTransferStatus(ctx context.Context, reference string) (*ravenclient.TransferResponse, error) {
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	return p.statusResp, nil
}

func seedAccounts(repo *transferStubRepository, userID uuid.UUID, senderBalance int64) (sender, recipient *domain.Account) {
	sender = &domain.Account{
		ID:       uuid.New(),
		UserID:   userID,
		Balance:  senderBalance,
		Currency: "NGN",
		Status:   domain.AccountStatusActive,
	}
	recipient = &domain.Account{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		Balance:  0,
		Currency: "NGN",
		Status:   domain.AccountStatusActive,
	}
	repo.addAccount(sender)
	repo.addAccount(recipient)
	return sender, recipient
}

func TestAccountTransfer_MovesBalances(t *testing.T) {
	repo := newTransferStub()
	userID := uuid.New()
	sender, recipient := seedAccounts(repo, userID, 10_000)
	svc := NewTransferService(repo, &stubProvider{}, "NGN")

	transfer, err := svc.AccountTransfer(context.Background(), userID, domain.AccountTransferRequest{
		SenderAccountID:    sender.ID,
		RecipientAccountID: recipient.ID,
		Amount:             4_000,
		Narration:          "rent split",
	})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if transfer.Status != domain.TransferStatusCompleted {
		t.Fatalf("expected completed status, got %s", transfer.Status)
	}
	if sender.Balance != 6_000 || recipient.Balance != 4_000 {
		t.Fatalf("unexpected balances: sender=%d recipient=%d", sender.Balance, recipient.Balance)
	}
	if !ValidReference(transfer.Reference) {
		t.Fatalf("generated reference %q is invalid", transfer.Reference)
	}
}

func TestAccountTransfer_InsufficientFunds(t *testing.T) {
	repo := newTransferStub()
	userID := uuid.New()
	sender, recipient := seedAccounts(repo, userID, 1_000)
	svc := NewTransferService(repo, &stubProvider{}, "NGN")

	_, err := svc.AccountTransfer(context.Background(), userID, domain.AccountTransferRequest{
		SenderAccountID:    sender.ID,
		RecipientAccountID: recipient.ID,
		Amount:             5_000,
	})
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if sender.Balance != 1_000 || recipient.Balance != 0 {
		t.Fatal("balances must be untouched after a rejected transfer")
	}
}

func TestAccountTransfer_RejectsNonPositiveAmount(t *testing.T) {
	svc := NewTransferService(newTransferStub(), &stubProvider{}, "NGN")

	for _, amount := range []int64{0, -500} {
		_, err := svc.AccountTransfer(context.Background(), uuid.New(), domain.AccountTransferRequest{
			SenderAccountID:    uuid.New(),
			RecipientAccountID: uuid.New(),
			Amount:             amount,
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("amount %d: expected validation error, got %v", amount, err)
		}
	}
}

func TestAccountTransfer_RejectsSelfTransfer(t *testing.T) {
	svc := NewTransferService(newTransferStub(), &stubProvider{}, "NGN")
	accountID := uuid.New()

	_, err := svc.AccountTransfer(context.Background(), uuid.New(), domain.AccountTransferRequest{
		SenderAccountID:    accountID,
		RecipientAccountID: accountID,
		Amount:             100,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAccountTransfer_ForeignSenderForbidden(t *testing.T) {
	repo := newTransferStub()
	sender, recipient := seedAccounts(repo, uuid.New(), 10_000)
	svc := NewTransferService(repo, &stubProvider{}, "NGN")

	_, err := svc.AccountTransfer(context.Background(), uuid.New(), domain.AccountTransferRequest{
		SenderAccountID:    sender.ID,
		RecipientAccountID: recipient.ID,
		Amount:             100,
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestBankTransfer_RecordsPendingBeforeProviderCall(t *testing.T) {
	repo := newTransferStub()
	userID := uuid.New()
	sender, _ := seedAccounts(repo, userID, 50_000)
	provider := &stubProvider{initiateResp: &ravenclient.TransferResponse{TRXRef: "rvn-123", Status: "processing"}}
	svc := NewTransferService(repo, provider, "NGN")

	transfer, err := svc.BankTransfer(context.Background(), userID, domain.BankTransferRequest{
		SenderAccountID:        sender.ID,
		RecipientAccountNumber: "0123456789",
		RecipientBankCode:      "058",
		RecipientName:          "Chika Obi",
		Amount:                 20_000,
	})
	if err != nil {
		t.Fatalf("bank transfer failed: %v", err)
	}
	if transfer.Status != domain.TransferStatusPending {
		t.Fatalf("expected pending status, got %s", transfer.Status)
	}
	// The sender is debited only when the completion webhook lands.
	if sender.Balance != 50_000 {
		t.Fatalf("expected untouched balance before settlement, got %d", sender.Balance)
	}
	if len(provider.initiated) != 1 {
		t.Fatalf("expected one provider initiation, got %d", len(provider.initiated))
	}
	if got := repo.externalRefs[transfer.ID]; got != "rvn-123" {
		t.Fatalf("expected external reference recorded, got %q", got)
	}
}

func TestBankTransfer_ProviderFailureMarksFailed(t *testing.T) {
	repo := newTransferStub()
	userID := uuid.New()
	sender, _ := seedAccounts(repo, userID, 50_000)
	provider := &stubProvider{initiateErr: &ravenclient.Error{StatusCode: 502, Message: "retries exhausted"}}
	svc := NewTransferService(repo, provider, "NGN")

	_, err := svc.BankTransfer(context.Background(), userID, domain.BankTransferRequest{
		SenderAccountID:        sender.ID,
		RecipientAccountNumber: "0123456789",
		RecipientBankCode:      "058",
		Amount:                 20_000,
	})
	if !errors.Is(err, domain.ErrGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if len(repo.failedTransfers) != 1 {
		t.Fatal("expected the pending transfer to be marked failed")
	}
	if sender.Balance != 50_000 {
		t.Fatal("balance must be untouched on provider failure")
	}
}

func TestBankTransfer_DuplicateReferenceReturnsExisting(t *testing.T) {
	repo := newTransferStub()
	userID := uuid.New()
	sender, _ := seedAccounts(repo, userID, 50_000)
	provider := &stubProvider{initiateResp: &ravenclient.TransferResponse{TRXRef: "rvn-1", Status: "processing"}}
	svc := NewTransferService(repo, provider, "NGN")

	req := domain.BankTransferRequest{
		SenderAccountID:        sender.ID,
		RecipientAccountNumber: "0123456789",
		RecipientBankCode:      "058",
		Amount:                 20_000,
		Reference:              "client-ref-0001",
	}

	first, err := svc.BankTransfer(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("first transfer failed: %v", err)
	}

	second, err := svc.BankTransfer(context.Background(), userID, req)
	if err != nil {
		t.Fatalf("repeat with same reference must not fail: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("expected the existing transfer back for a duplicate reference")
	}
	if len(provider.initiated) != 1 {
		t.Fatalf("duplicate reference must not re-initiate with the provider, got %d calls", len(provider.initiated))
	}
}

func TestBankTransfer_ForeignReferenceConflicts(t *testing.T) {
	repo := newTransferStub()
	firstUser := uuid.New()
	firstSender, _ := seedAccounts(repo, firstUser, 100_000)
	provider := &stubProvider{initiateResp: &ravenclient.TransferResponse{TRXRef: "rvn-1", Status: "processing"}}
	svc := NewTransferService(repo, provider, "NGN")

	first, err := svc.BankTransfer(context.Background(), firstUser, domain.BankTransferRequest{
		SenderAccountID:        firstSender.ID,
		RecipientAccountNumber: "0123456789",
		RecipientBankCode:      "058",
		Amount:                 40_000,
		Reference:              "shared-ref-0001",
	})
	if err != nil {
		t.Fatalf("first transfer failed: %v", err)
	}

	secondUser := uuid.New()
	secondSender, _ := seedAccounts(repo, secondUser, 100_000)
	result, err := svc.BankTransfer(context.Background(), secondUser, domain.BankTransferRequest{
		SenderAccountID:        secondSender.ID,
		RecipientAccountNumber: "0123456789",
		RecipientBankCode:      "058",
		Amount:                 40_000,
		Reference:              "shared-ref-0001",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for a reference owned by another user, got %v", err)
	}
	if result != nil {
		t.Fatalf("another user's transfer must never be returned, got id=%s owner=%s", result.ID, result.UserID)
	}
	if repo.transfers["shared-ref-0001"].ID != first.ID {
		t.Fatal("the original transfer must keep the reference")
	}
}

func TestAccountTransfer_SuspendedSenderInvalidState(t *testing.T) {
	repo := newTransferStub()
	userID := uuid.New()
	sender, recipient := seedAccounts(repo, userID, 10_000)
	sender.Status = domain.AccountStatusSuspended
	svc := NewTransferService(repo, &stubProvider{}, "NGN")

	_, err := svc.AccountTransfer(context.Background(), userID, domain.AccountTransferRequest{
		SenderAccountID:    sender.ID,
		RecipientAccountID: recipient.ID,
		Amount:             100,
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state for suspended sender, got %v", err)
	}
}

func TestBankTransfer_RejectsBadReferenceFormat(t *testing.T) {
	repo := newTransferStub()
	userID := uuid.New()
	sender, _ := seedAccounts(repo, userID, 50_000)
	svc := NewTransferService(repo, &stubProvider{}, "NGN")

	_, err := svc.BankTransfer(context.Background(), userID, domain.BankTransferRequest{
		SenderAccountID:        sender.ID,
		RecipientAccountNumber: "0123456789",
		RecipientBankCode:      "058",
		Amount:                 1_000,
		Reference:              "bad ref!",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBulkTransfer_PartialFailureKeepsEarlierLines(t *testing.T) {
	repo := newTransferStub()
	userID := uuid.New()
	sender, recipient := seedAccounts(repo, userID, 5_000)
	svc := NewTransferService(repo, &stubProvider{}, "NGN")

	results, err := svc.BulkTransfer(context.Background(), userID, domain.BulkTransferRequest{
		SenderAccountID: sender.ID,
		Transfers: []domain.BulkTransferItem{
			{RecipientAccountID: recipient.ID, Amount: 3_000},
			{RecipientAccountID: recipient.ID, Amount: 3_000}, // exceeds remaining balance
			{RecipientAccountID: recipient.ID, Amount: 1_000},
		},
	})
	if err != nil {
		t.Fatalf("bulk transfer failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Success || results[1].Success || !results[2].Success {
		t.Fatalf("unexpected outcome pattern: %+v", results)
	}
	// Line 1 and 3 settle; line 2's failure rolls nothing back.
	if sender.Balance != 1_000 || recipient.Balance != 4_000 {
		t.Fatalf("unexpected balances: sender=%d recipient=%d", sender.Balance, recipient.Balance)
	}
	if results[1].Error == "" || results[1].Item == nil {
		t.Fatal("failed line must carry its error and original item")
	}
	for _, result := range results {
		if result.Transfer != nil && result.Transfer.Type != domain.TransferTypeBulk {
			t.Fatalf("bulk line transfer typed %q, want %q", result.Transfer.Type, domain.TransferTypeBulk)
		}
	}
}

func TestGetTransferStatus_QueriesProviderForPendingBankTransfer(t *testing.T) {
	repo := newTransferStub()
	userID := uuid.New()
	senderID := uuid.New()
	transfer := &domain.Transfer{
		ID:        uuid.New(),
		UserID:    userID,
		Reference: "bank-ref-001",
		Amount:    500,
		Status:    domain.TransferStatusPending,
		Type:      domain.TransferTypeBank,
	}
	transfer.SenderAccountID = &senderID
	repo.transfers[transfer.Reference] = transfer

	provider := &stubProvider{statusResp: &ravenclient.TransferResponse{Status: "processing"}}
	svc := NewTransferService(&findByIDStub{transferStubRepository: repo}, provider, "NGN")

	view, err := svc.GetTransferStatus(context.Background(), userID, transfer.ID)
	if err != nil {
		t.Fatalf("status lookup failed: %v", err)
	}
	if view.ProviderStatus != "processing" {
		t.Fatalf("expected provider status, got %q", view.ProviderStatus)
	}
}

// findByIDStub adds FindTransferByID over the map-backed stub.
type findByIDStub struct {
	*transferStubRepository
}

func (s *findByIDStub) FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error) {
	for _, transfer := range s.transfers {
		if transfer.ID == transferID {
			return transfer, nil
		}
	}
	return nil, store.ErrTransferNotFound
}
