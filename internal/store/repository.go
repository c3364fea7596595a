/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access required by the banking-service. Business services depend on this
 * interface rather than on PostgreSQL directly, which keeps them testable
 * with in-memory stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fintra/banking-service/internal/domain"
)

// EntryParams describes one ledger posting. Amount is signed relative to the
// account: positive credits, negative debits.
type EntryParams struct {
	AccountID uuid.UUID
	Amount    int64
	Reference string
	Type      string
	Narration string
	Metadata  map[string]string
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User methods
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error
	VerifyUserByToken(ctx context.Context, token string) (*domain.User, error)
	// UpdatePasswordAndRevokeTokens swaps the password hash and deletes every
	// refresh token row for the user inside one transaction.
	UpdatePasswordAndRevokeTokens(ctx context.Context, userID uuid.UUID, newHash string) error

	// Refresh token methods
	CreateRefreshToken(ctx context.Context, token *domain.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error)
	// RotateRefreshToken conditionally replaces the stored token string.
	// It reports false when the old token no longer matches any row, which
	// is how a concurrent refresh loses the race.
	RotateRefreshToken(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (bool, error)
	RevokeRefreshToken(ctx context.Context, token string) error
	// DeleteRefreshToken removes a single dead token row, e.g. one presented
	// after its expiry.
	DeleteRefreshToken(ctx context.Context, token string) error

	// Account methods
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	FindAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Account, error)
	UpdateAccount(ctx context.Context, accountID uuid.UUID, update domain.AccountUpdate) (*domain.Account, error)

	// Ledger methods
	// ApplyEntry posts one balance mutation and its transaction row atomically.
	ApplyEntry(ctx context.Context, params EntryParams) (*domain.Transaction, error)
	// TransferInternal moves funds between two local accounts and records the
	// completed transfer plus both ledger rows in a single transaction.
	TransferInternal(ctx context.Context, transfer *domain.Transfer) (*domain.Transfer, error)

	// Transfer methods
	CreateTransfer(ctx context.Context, transfer *domain.Transfer) (*domain.Transfer, error)
	FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error)
	FindTransferByReference(ctx context.Context, reference string) (*domain.Transfer, error)
	ListTransfersByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]domain.Transfer, int64, error)
	UpdateTransferExternalReference(ctx context.Context, transferID uuid.UUID, externalReference string) error
	// Webhook settlement methods. Each performs a conditional status
	// transition plus any balance effect in one transaction, and reports
	// false when the transfer was not in the expected source state.
	CompleteBankTransfer(ctx context.Context, transferID uuid.UUID, externalReference string) (bool, error)
	FailBankTransfer(ctx context.Context, transferID uuid.UUID, reason string) (bool, error)
	ReverseBankTransfer(ctx context.Context, transferID uuid.UUID) (bool, error)

	// Transaction history methods
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID, userID uuid.UUID) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, int64, error)
	GetTransactionSummary(ctx context.Context, userID uuid.UUID) (*domain.TransactionSummary, error)
}
