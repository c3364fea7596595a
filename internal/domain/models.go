/**
 * @description
 * This file defines the core domain models for the banking-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Using distinct types for API requests, database models, and external service
 *   payloads ensures clear separation of concerns and type safety.
 * - Amounts are stored as `int64` in the smallest currency unit (kobo), which
 *   avoids floating-point inaccuracies with financial data.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transfer statuses. Transitions are monotonic along
// pending -> {completed, failed} and completed -> reversed.
const (
	TransferStatusPending   = "pending"
	TransferStatusCompleted = "completed"
	TransferStatusFailed    = "failed"
	TransferStatusReversed  = "reversed"
)

// Transfer types.
const (
	TransferTypeAccount = "account_transfer"
	TransferTypeBank    = "bank_transfer"
	TransferTypeBulk    = "bulk_transfer"
)

// Ledger entry types.
const (
	EntryTypeDeposit    = "deposit"
	EntryTypeWithdrawal = "withdrawal"
	EntryTypeTransfer   = "transfer"
	EntryTypeFee        = "fee"
	EntryTypeInterest   = "interest"
)

// Account statuses. Accounts are never physically deleted.
const (
	AccountStatusActive    = "active"
	AccountStatusInactive  = "inactive"
	AccountStatusSuspended = "suspended"
)

// User represents an identity record. PasswordHash never leaves the service.
type User struct {
	ID                uuid.UUID  `json:"id"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	Email             string     `json:"email"`
	Phone             string     `json:"phone"`
	PasswordHash      string     `json:"-"`
	IsVerified        bool       `json:"is_verified"`
	VerificationToken *string    `json:"-"`
	LastLogin         *time.Time `json:"last_login,omitempty"`
	DeletedAt         *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Account represents an internal or provider-backed store of value.
// Balance mutations happen only through the ledger core.
type Account struct {
	ID            uuid.UUID         `json:"id"`
	UserID        uuid.UUID         `json:"user_id"`
	AccountNumber string            `json:"account_number"`
	AccountType   string            `json:"account_type"` // 'savings' or 'current'
	Currency      string            `json:"currency"`
	Balance       int64             `json:"balance"` // in kobo
	Status        string            `json:"status"`
	DailyLimit    *int64            `json:"daily_limit,omitempty"`
	MonthlyLimit  *int64            `json:"monthly_limit,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Transfer represents a request to move value. The reference doubles as the
// idempotency key: a repeated reference must never create a second transfer.
type Transfer struct {
	ID                 uuid.UUID         `json:"id"`
	UserID             uuid.UUID         `json:"user_id"`
	Reference          string            `json:"reference"`
	SenderAccountID    *uuid.UUID        `json:"sender_account_id,omitempty"`
	RecipientAccountID *uuid.UUID        `json:"recipient_account_id,omitempty"`
	Amount             int64             `json:"amount"` // in kobo
	Currency           string            `json:"currency"`
	Status             string            `json:"status"`
	Type               string            `json:"type"`
	Narration          string            `json:"narration,omitempty"`
	ExternalReference  *string           `json:"external_reference,omitempty"`
	FailureReason      *string           `json:"failure_reason,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Terminal reports whether no further provider outcome can change the transfer.
func (t *Transfer) Terminal() bool {
	return t.Status == TransferStatusCompleted ||
		t.Status == TransferStatusFailed ||
		t.Status == TransferStatusReversed
}

// Transaction is one immutable ledger entry tied to an account.
// balance_after = balance_before ± amount, captured inside the same atomic
// unit as the balance update. Rows are append-only.
type Transaction struct {
	ID            uuid.UUID         `json:"id"`
	AccountID     uuid.UUID         `json:"account_id"`
	Reference     string            `json:"reference"`
	Amount        int64             `json:"amount"` // signed relative to the account
	Currency      string            `json:"currency"`
	Type          string            `json:"type"`
	Status        string            `json:"status"`
	BalanceBefore int64             `json:"balance_before"`
	BalanceAfter  int64             `json:"balance_after"`
	Narration     string            `json:"narration,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// RefreshToken is a session-continuation credential. A revoked or expired
// token must never yield a new session; each refresh replaces the stored row.
type RefreshToken struct {
	ID          int64     `json:"id"`
	Token       string    `json:"-"`
	UserID      uuid.UUID `json:"user_id"`
	TokenFamily string    `json:"token_family"`
	ExpiresAt   time.Time `json:"expires_at"`
	IsRevoked   bool      `json:"is_revoked"`
	UserAgent   *string   `json:"user_agent,omitempty"`
	IPAddress   *string   `json:"ip_address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the token's validity window has passed.
func (t *RefreshToken) Expired() bool {
	return time.Now().After(t.ExpiresAt)
}

// RegisterRequest is the DTO for new user registration.
type RegisterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

// LoginRequest is the DTO for authentication attempts.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ClientInfo carries request metadata persisted alongside refresh tokens.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// Session is the result of a successful login or refresh.
type Session struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// AccountTransferRequest is the DTO for internal account-to-account transfers.
type AccountTransferRequest struct {
	SenderAccountID    uuid.UUID         `json:"sender_account_id"`
	RecipientAccountID uuid.UUID         `json:"recipient_account_id"`
	Amount             int64             `json:"amount"` // in kobo
	Narration          string            `json:"narration"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// BankTransferRequest is the DTO for external bank-rail transfers.
type BankTransferRequest struct {
	SenderAccountID        uuid.UUID         `json:"sender_account_id"`
	RecipientAccountNumber string            `json:"recipient_account_number"`
	RecipientBankCode      string            `json:"recipient_bank_code"`
	RecipientName          string            `json:"recipient_name"`
	Amount                 int64             `json:"amount"` // in kobo
	Reference              string            `json:"reference,omitempty"`
	Narration              string            `json:"narration"`
	Metadata               map[string]string `json:"metadata,omitempty"`
}

// BulkTransferRequest applies one internal transfer per line item from a
// single sender account. Lines are independent: one failure never rolls back
// prior successful lines.
type BulkTransferRequest struct {
	SenderAccountID uuid.UUID          `json:"sender_account_id"`
	Transfers       []BulkTransferItem `json:"transfers"`
}

// BulkTransferItem is one recipient instruction within a bulk request.
type BulkTransferItem struct {
	RecipientAccountID uuid.UUID `json:"recipient_account_id"`
	Amount             int64     `json:"amount"` // in kobo
	Narration          string    `json:"narration"`
}

// BulkTransferResult tags the outcome of one bulk line item.
type BulkTransferResult struct {
	Success  bool              `json:"success"`
	Transfer *Transfer         `json:"data,omitempty"`
	Item     *BulkTransferItem `json:"item,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// TransferStatusView joins local transfer state with the provider's
// authoritative view for non-terminal bank transfers.
type TransferStatusView struct {
	Transfer       *Transfer `json:"transfer"`
	ProviderStatus string    `json:"provider_status,omitempty"`
}

// AccountUpdate carries the mutable account fields. Nil means unchanged.
type AccountUpdate struct {
	Status       *string `json:"status,omitempty"`
	DailyLimit   *int64  `json:"daily_limit,omitempty"`
	MonthlyLimit *int64  `json:"monthly_limit,omitempty"`
}

// TransactionFilter narrows transaction history queries.
type TransactionFilter struct {
	Type      string
	Status    string
	AccountID *uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
	Search    string
	Page      int
	Limit     int
}

// TransactionSummary aggregates a user's ledger history.
type TransactionSummary struct {
	TotalCount       int64 `json:"total_count"`
	CompletedCount   int64 `json:"completed_count"`
	FailedCount      int64 `json:"failed_count"`
	PendingCount     int64 `json:"pending_count"`
	TotalDeposits    int64 `json:"total_deposits"`
	TotalWithdrawals int64 `json:"total_withdrawals"`
	TotalTransfers   int64 `json:"total_transfers"`
}
