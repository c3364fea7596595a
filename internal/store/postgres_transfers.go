/**
 * @description
 * Transfer and transaction-history persistence for the PostgreSQL repository.
 * Transfers carry a unique reference that doubles as the idempotency key, so
 * a duplicate insert surfaces ErrDuplicateReference instead of a second row.
 * The webhook settlement methods perform the status transition and the
 * balance effect in one database transaction, conditioned on the current
 * status so duplicate deliveries and races resolve to a single outcome.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: Transactions, row locking, error inspection.
 * - internal/domain: Transfer and transaction models.
 */

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fintra/banking-service/internal/domain"
)

const transferColumns = `
	id, user_id, reference, sender_account_id, recipient_account_id, amount,
	currency, status, type, narration, external_reference, failure_reason,
	metadata, created_at, updated_at
`

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	var t domain.Transfer
	var rawMetadata []byte
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Reference,
		&t.SenderAccountID,
		&t.RecipientAccountID,
		&t.Amount,
		&t.Currency,
		&t.Status,
		&t.Type,
		&t.Narration,
		&t.ExternalReference,
		&t.FailureReason,
		&rawMetadata,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	if t.Metadata, err = unmarshalMetadata(rawMetadata); err != nil {
		return nil, err
	}
	return &t, nil
}

// insertTransferTx inserts a transfer row inside an existing transaction.
func (r *PostgresRepository) insertTransferTx(ctx context.Context, tx pgx.Tx, transfer *domain.Transfer) error {
	metadata, err := marshalMetadata(transfer.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO transfers (user_id, reference, sender_account_id, recipient_account_id, amount, currency, status, type, narration, external_reference, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		transfer.UserID,
		transfer.Reference,
		transfer.SenderAccountID,
		transfer.RecipientAccountID,
		transfer.Amount,
		transfer.Currency,
		transfer.Status,
		transfer.Type,
		transfer.Narration,
		transfer.ExternalReference,
		metadata,
	).Scan(&transfer.ID, &transfer.CreatedAt, &transfer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

// CreateTransfer inserts a new transfer row. A reference collision returns
// ErrDuplicateReference so the caller can surface the existing transfer.
func (r *PostgresRepository) CreateTransfer(ctx context.Context, transfer *domain.Transfer) (*domain.Transfer, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.insertTransferTx(ctx, tx, transfer); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}
	return transfer, nil
}

// FindTransferByID retrieves a transfer by its ID.
func (r *PostgresRepository) FindTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE id = $1`
	return scanTransfer(r.db.QueryRow(ctx, query, transferID))
}

// FindTransferByReference retrieves a transfer by its idempotency reference.
func (r *PostgresRepository) FindTransferByReference(ctx context.Context, reference string) (*domain.Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers WHERE reference = $1`
	return scanTransfer(r.db.QueryRow(ctx, query, reference))
}

// ListTransfersByUserID returns one page of a user's transfers, newest first,
// plus the total count for pagination.
func (r *PostgresRepository) ListTransfersByUserID(ctx context.Context, userID uuid.UUID, page, limit int) ([]domain.Transfer, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := (page - 1) * limit

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transfers WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + transferColumns + ` FROM transfers WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	transfers := make([]domain.Transfer, 0, limit)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, 0, err
		}
		transfers = append(transfers, *t)
	}
	return transfers, total, rows.Err()
}

// UpdateTransferExternalReference records the provider's transfer id after a
// successful initiation call.
func (r *PostgresRepository) UpdateTransferExternalReference(ctx context.Context, transferID uuid.UUID, externalReference string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE transfers SET external_reference = $1, updated_at = NOW() WHERE id = $2`,
		externalReference, transferID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

// CompleteBankTransfer settles a pending bank transfer: the status moves to
// completed and the sender account is debited, all in one transaction. It
// reports false when the transfer was not pending, leaving the row untouched.
func (r *PostgresRepository) CompleteBankTransfer(ctx context.Context, transferID uuid.UUID, externalReference string) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	transfer, err := scanTransfer(tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1 FOR UPDATE`, transferID))
	if err != nil {
		return false, err
	}
	if transfer.Status != domain.TransferStatusPending {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE transfers
		SET status = $1, external_reference = COALESCE(NULLIF($2, ''), external_reference), updated_at = NOW()
		WHERE id = $3
	`, domain.TransferStatusCompleted, externalReference, transferID)
	if err != nil {
		return false, fmt.Errorf("failed to complete transfer %s: %w", transferID, err)
	}

	if transfer.SenderAccountID != nil {
		if _, err := r.applyEntryTx(ctx, tx, EntryParams{
			AccountID: *transfer.SenderAccountID,
			Amount:    -transfer.Amount,
			Reference: transfer.Reference + "-debit",
			Type:      domain.EntryTypeWithdrawal,
			Narration: transfer.Narration,
			Metadata:  transfer.Metadata,
		}); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return true, nil
}

// FailBankTransfer moves a pending transfer to failed with the provider's
// reason. No balance changes; the debit never happened.
func (r *PostgresRepository) FailBankTransfer(ctx context.Context, transferID uuid.UUID, reason string) (bool, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE transfers
		SET status = $1, failure_reason = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, domain.TransferStatusFailed, reason, transferID, domain.TransferStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark transfer %s failed: %w", transferID, err)
	}
	return result.RowsAffected() == 1, nil
}

// ReverseBankTransfer moves a completed transfer to reversed and credits the
// debited amount back to the sender account in the same transaction.
func (r *PostgresRepository) ReverseBankTransfer(ctx context.Context, transferID uuid.UUID) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	transfer, err := scanTransfer(tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1 FOR UPDATE`, transferID))
	if err != nil {
		return false, err
	}
	if transfer.Status != domain.TransferStatusCompleted {
		return false, nil
	}

	_, err = tx.Exec(ctx, `UPDATE transfers SET status = $1, updated_at = NOW() WHERE id = $2`,
		domain.TransferStatusReversed, transferID)
	if err != nil {
		return false, fmt.Errorf("failed to reverse transfer %s: %w", transferID, err)
	}

	if transfer.SenderAccountID != nil {
		if _, err := r.applyEntryTx(ctx, tx, EntryParams{
			AccountID: *transfer.SenderAccountID,
			Amount:    transfer.Amount,
			Reference: transfer.Reference + "-reversal",
			Type:      domain.EntryTypeDeposit,
			Narration: "reversal of " + transfer.Reference,
		}); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit reversal: %w", err)
	}
	return true, nil
}

const transactionColumns = `
	t.id, t.account_id, t.reference, t.amount, t.currency, t.type, t.status,
	t.balance_before, t.balance_after, t.narration, t.metadata, t.created_at
`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var entry domain.Transaction
	var rawMetadata []byte
	err := row.Scan(
		&entry.ID,
		&entry.AccountID,
		&entry.Reference,
		&entry.Amount,
		&entry.Currency,
		&entry.Type,
		&entry.Status,
		&entry.BalanceBefore,
		&entry.BalanceAfter,
		&entry.Narration,
		&rawMetadata,
		&entry.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if entry.Metadata, err = unmarshalMetadata(rawMetadata); err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindTransactionByID retrieves a ledger entry, scoped to the owning user via
// the account join so one user can never read another's history.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID, userID uuid.UUID) (*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE t.id = $1 AND a.user_id = $2
	`
	return scanTransaction(r.db.QueryRow(ctx, query, transactionID, userID))
}

// ListTransactions returns one filtered page of a user's ledger history plus
// the total match count. Filters compose with AND; the search term matches
// references and narrations.
func (r *PostgresRepository) ListTransactions(ctx context.Context, userID uuid.UUID, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	conditions := []string{"a.user_id = $1"}
	args := []any{userID}

	addArg := func(clause string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.Type != "" {
		addArg("t.type = $%d", filter.Type)
	}
	if filter.Status != "" {
		addArg("t.status = $%d", filter.Status)
	}
	if filter.AccountID != nil {
		addArg("t.account_id = $%d", *filter.AccountID)
	}
	if filter.StartDate != nil {
		addArg("t.created_at >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		addArg("t.created_at <= $%d", *filter.EndDate)
	}
	if filter.Search != "" {
		args = append(args, filter.Search)
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(t.reference ILIKE $%d || '%%' OR t.narration ILIKE '%%' || $%d || '%%')", n, n))
	}

	where := strings.Join(conditions, " AND ")
	base := ` FROM transactions t JOIN accounts a ON a.id = t.account_id WHERE ` + where

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}
	args = append(args, limit, (page-1)*limit)
	query := `SELECT ` + transactionColumns + base +
		fmt.Sprintf(` ORDER BY t.created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *entry)
	}
	return entries, total, rows.Err()
}

// GetTransactionSummary aggregates a user's ledger history: counts by status
// and absolute-amount totals by entry type.
func (r *PostgresRepository) GetTransactionSummary(ctx context.Context, userID uuid.UUID) (*domain.TransactionSummary, error) {
	var summary domain.TransactionSummary
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE t.status = 'completed'),
			COUNT(*) FILTER (WHERE t.status = 'failed'),
			COUNT(*) FILTER (WHERE t.status = 'pending'),
			COALESCE(SUM(ABS(t.amount)) FILTER (WHERE t.type = 'deposit'), 0),
			COALESCE(SUM(ABS(t.amount)) FILTER (WHERE t.type = 'withdrawal'), 0),
			COALESCE(SUM(ABS(t.amount)) FILTER (WHERE t.type = 'transfer'), 0)
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.user_id = $1
	`
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&summary.TotalCount,
		&summary.CompletedCount,
		&summary.FailedCount,
		&summary.PendingCount,
		&summary.TotalDeposits,
		&summary.TotalWithdrawals,
		&summary.TotalTransfers,
	)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
