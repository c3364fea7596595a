/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface for users, refresh tokens, and accounts. Ledger and transfer
 * persistence live in their own files alongside this one.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fintra/banking-service/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTokenNotFound       = errors.New("refresh token not found")
	ErrTransferNotFound    = errors.New("transfer not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateUser       = errors.New("user already exists")
	ErrDuplicateReference  = errors.New("duplicate reference")
	ErrInsufficientFunds   = errors.New("insufficient funds")
)

// uniqueViolation is the Postgres error code for unique constraint violations.
const uniqueViolation = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// marshalMetadata serializes metadata for a jsonb column. Empty maps store NULL.
func marshalMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalMetadata(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return m, nil
}

// CreateUser inserts a new user row and returns it with generated fields set.
func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (first_name, last_name, email, phone, password_hash, is_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		user.FirstName,
		user.LastName,
		user.Email,
		user.Phone,
		user.PasswordHash,
		user.IsVerified,
		user.VerificationToken,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

const userColumns = `
	id, first_name, last_name, email, phone, password_hash, is_verified,
	verification_token, last_login, deleted_at, created_at, updated_at
`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&user.IsVerified,
		&user.VerificationToken,
		&user.LastLogin,
		&user.DeletedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByEmail retrieves an active user by email. Soft-deleted rows are excluded.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) AND deleted_at IS NULL`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

// FindUserByID retrieves an active user by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	return scanUser(r.db.QueryRow(ctx, query, userID))
}

// UpdateLastLogin stamps the user's last successful login time.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `UPDATE users SET last_login = NOW(), updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// VerifyUserByToken marks the user holding the verification token as verified
// and clears the token so it cannot be replayed.
func (r *PostgresRepository) VerifyUserByToken(ctx context.Context, token string) (*domain.User, error) {
	query := `
		UPDATE users
		SET is_verified = TRUE, verification_token = NULL, updated_at = NOW()
		WHERE verification_token = $1 AND deleted_at IS NULL
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query, token))
}

// UpdatePasswordAndRevokeTokens swaps the password hash and deletes all of the
// user's refresh tokens in one transaction, so no session survives a password
// change.
func (r *PostgresRepository) UpdatePasswordAndRevokeTokens(ctx context.Context, userID uuid.UUID, newHash string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`, newHash, userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}

	return tx.Commit(ctx)
}

// CreateRefreshToken persists a new refresh token row.
func (r *PostgresRepository) CreateRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (token, user_id, token_family, expires_at, is_revoked, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		token.Token,
		token.UserID,
		token.TokenFamily,
		token.ExpiresAt,
		token.IsRevoked,
		token.UserAgent,
		token.IPAddress,
	).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken retrieves a refresh token row by its token string.
func (r *PostgresRepository) FindRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	var rt domain.RefreshToken
	query := `
		SELECT id, token, user_id, token_family, expires_at, is_revoked, user_agent, ip_address, created_at
		FROM refresh_tokens
		WHERE token = $1
	`
	err := r.db.QueryRow(ctx, query, token).Scan(
		&rt.ID,
		&rt.Token,
		&rt.UserID,
		&rt.TokenFamily,
		&rt.ExpiresAt,
		&rt.IsRevoked,
		&rt.UserAgent,
		&rt.IPAddress,
		&rt.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &rt, nil
}

// RotateRefreshToken replaces the token string in place, keyed on the old
// value. When two refreshes race, only one UPDATE matches a row; the other
// sees zero rows affected and reports false.
func (r *PostgresRepository) RotateRefreshToken(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET token = $1, expires_at = $2
		WHERE token = $3 AND is_revoked = FALSE
	`
	result, err := r.db.Exec(ctx, query, newToken, expiresAt, oldToken)
	if err != nil {
		return false, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// RevokeRefreshToken marks a single token row revoked. Unknown tokens are a
// no-op so logout is idempotent.
func (r *PostgresRepository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx, `UPDATE refresh_tokens SET is_revoked = TRUE WHERE token = $1`, token)
	return err
}

// DeleteRefreshToken removes a single token row. Unknown tokens are a no-op.
func (r *PostgresRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token)
	return err
}

// CreateAccount inserts a new account row.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	query := `
		INSERT INTO accounts (user_id, account_number, account_type, currency, balance, status, daily_limit, monthly_limit, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	metadata, err := marshalMetadata(account.Metadata)
	if err != nil {
		return nil, err
	}
	err = r.db.QueryRow(ctx, query,
		account.UserID,
		account.AccountNumber,
		account.AccountType,
		account.Currency,
		account.Balance,
		account.Status,
		account.DailyLimit,
		account.MonthlyLimit,
		metadata,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

const accountColumns = `
	id, user_id, account_number, account_type, currency, balance, status,
	daily_limit, monthly_limit, metadata, created_at, updated_at
`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	var rawMetadata []byte
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.AccountNumber,
		&account.AccountType,
		&account.Currency,
		&account.Balance,
		&account.Status,
		&account.DailyLimit,
		&account.MonthlyLimit,
		&rawMetadata,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if account.Metadata, err = unmarshalMetadata(rawMetadata); err != nil {
		return nil, err
	}
	return &account, nil
}

// FindAccountByID retrieves an account by its ID.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, accountID))
}

// FindAccountByNumber retrieves an account by its 10-digit account number.
func (r *PostgresRepository) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return scanAccount(r.db.QueryRow(ctx, query, accountNumber))
}

// FindAccountsByUserID lists all of a user's accounts, newest first.
func (r *PostgresRepository) FindAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// UpdateAccount applies the non-nil fields of the update. Accounts are never
// deleted; deactivation goes through the status field.
func (r *PostgresRepository) UpdateAccount(ctx context.Context, accountID uuid.UUID, update domain.AccountUpdate) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET status = COALESCE($2, status),
		    daily_limit = COALESCE($3, daily_limit),
		    monthly_limit = COALESCE($4, monthly_limit),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns
	return scanAccount(r.db.QueryRow(ctx, query, accountID, update.Status, update.DailyLimit, update.MonthlyLimit))
}
