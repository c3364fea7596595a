/**
 * @description
 * Ledger core for the PostgreSQL repository. Every balance mutation in the
 * service flows through ApplyEntry or TransferInternal: the account row is
 * locked with SELECT ... FOR UPDATE, the balance is updated, and an immutable
 * transactions row records balance_before and balance_after from inside the
 * same database transaction. Transaction rows are append-only; there is no
 * update or delete path for them.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: Transactions and row locking.
 * - internal/domain: Ledger entry and transfer models.
 */

package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fintra/banking-service/internal/domain"
)

// applyEntryTx posts one ledger entry inside an existing transaction. The
// caller owns commit and rollback.
func (r *PostgresRepository) applyEntryTx(ctx context.Context, tx pgx.Tx, params EntryParams) (*domain.Transaction, error) {
	var balanceBefore int64
	var currency, status string
	query := `SELECT balance, currency, status FROM accounts WHERE id = $1 FOR UPDATE`
	err := tx.QueryRow(ctx, query, params.AccountID).Scan(&balanceBefore, &currency, &status)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to lock account %s: %w", params.AccountID, err)
	}

	balanceAfter := balanceBefore + params.Amount
	if balanceAfter < 0 {
		return nil, ErrInsufficientFunds
	}

	_, err = tx.Exec(ctx, `UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2`, balanceAfter, params.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance for account %s: %w", params.AccountID, err)
	}

	metadata, err := marshalMetadata(params.Metadata)
	if err != nil {
		return nil, err
	}

	entry := &domain.Transaction{
		AccountID:     params.AccountID,
		Reference:     params.Reference,
		Amount:        params.Amount,
		Currency:      currency,
		Type:          params.Type,
		Status:        domain.TransferStatusCompleted,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		Narration:     params.Narration,
		Metadata:      params.Metadata,
	}
	insert := `
		INSERT INTO transactions (account_id, reference, amount, currency, type, status, balance_before, balance_after, narration, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, insert,
		entry.AccountID,
		entry.Reference,
		entry.Amount,
		entry.Currency,
		entry.Type,
		entry.Status,
		entry.BalanceBefore,
		entry.BalanceAfter,
		entry.Narration,
		metadata,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return entry, nil
}

// ApplyEntry posts a single signed ledger entry atomically. A debit that
// would leave the balance negative fails with ErrInsufficientFunds and
// nothing is written.
func (r *PostgresRepository) ApplyEntry(ctx context.Context, params EntryParams) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := r.applyEntryTx(ctx, tx, params)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit ledger entry: %w", err)
	}
	return entry, nil
}

// TransferInternal moves funds between two local accounts. Debit, credit, the
// completed transfer row, and both ledger entries commit or roll back as one
// unit. Accounts are locked in a fixed order by ID so two opposing transfers
// cannot deadlock.
func (r *PostgresRepository) TransferInternal(ctx context.Context, transfer *domain.Transfer) (*domain.Transfer, error) {
	if transfer.SenderAccountID == nil || transfer.RecipientAccountID == nil {
		return nil, ErrAccountNotFound
	}
	senderID := *transfer.SenderAccountID
	recipientID := *transfer.RecipientAccountID

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock both rows up front in ID order before touching balances.
	first, second := senderID, recipientID
	if second.String() < first.String() {
		first, second = second, first
	}
	for _, id := range []uuid.UUID{first, second} {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			if err == pgx.ErrNoRows {
				return nil, ErrAccountNotFound
			}
			return nil, fmt.Errorf("failed to lock account %s: %w", id, err)
		}
	}

	if _, err := r.applyEntryTx(ctx, tx, EntryParams{
		AccountID: senderID,
		Amount:    -transfer.Amount,
		Reference: transfer.Reference + "-debit",
		Type:      domain.EntryTypeTransfer,
		Narration: transfer.Narration,
		Metadata:  transfer.Metadata,
	}); err != nil {
		return nil, err
	}

	if _, err := r.applyEntryTx(ctx, tx, EntryParams{
		AccountID: recipientID,
		Amount:    transfer.Amount,
		Reference: transfer.Reference + "-credit",
		Type:      domain.EntryTypeTransfer,
		Narration: transfer.Narration,
		Metadata:  transfer.Metadata,
	}); err != nil {
		return nil, err
	}

	transfer.Status = domain.TransferStatusCompleted
	if err := r.insertTransferTx(ctx, tx, transfer); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit internal transfer: %w", err)
	}
	return transfer, nil
}
