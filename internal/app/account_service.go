/**
 * @description
 * AccountService owns virtual account provisioning and queries. New accounts
 * get a random 10-digit account number and start at zero balance. When a
 * provider client is configured the service also provisions a Raven-backed
 * collection account so the account can receive bank deposits; the provider
 * details land in the account metadata.
 *
 * Accounts are never deleted. Deactivation and limits go through UpdateAccount.
 *
 * @dependencies
 * - pkg/ravenclient: Provider account provisioning.
 * - internal/store: Persistence interface.
 * - internal/domain: Models and sentinel errors.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"github.com/google/uuid"

	"github.com/fintra/banking-service/internal/domain"
	"github.com/fintra/banking-service/internal/store"
	"github.com/fintra/banking-service/pkg/ravenclient"
)

// accountNumberAttempts bounds retries when a generated number collides.
const accountNumberAttempts = 5

// AccountService implements account provisioning and queries.
type AccountService struct {
	repo     store.Repository
	raven    ProviderClient
	currency string
}

// NewAccountService creates a new AccountService. raven may be nil when
// provider-backed collection accounts are disabled.
func NewAccountService(repo store.Repository, raven ProviderClient, currency string) *AccountService {
	if currency == "" {
		currency = "NGN"
	}
	return &AccountService{repo: repo, raven: raven, currency: currency}
}

// CreateAccount provisions a new virtual account for the user.
func (s *AccountService) CreateAccount(ctx context.Context, userID uuid.UUID, accountType string) (*domain.Account, error) {
	if accountType == "" {
		accountType = "savings"
	}
	if accountType != "savings" && accountType != "current" {
		return nil, fmt.Errorf("account type must be savings or current: %w", domain.ErrValidation)
	}

	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return nil, err
	}

	account := &domain.Account{
		UserID:      user.ID,
		AccountType: accountType,
		Currency:    s.currency,
		Balance:     0,
		Status:      domain.AccountStatusActive,
	}

	if s.raven != nil {
		resp, err := s.raven.CreateAccount(ctx, ravenclient.CreateAccountRequest{
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Phone:     user.Phone,
			Email:     user.Email,
		})
		if err != nil {
			log.Printf("level=warn component=account_service msg=\"provider account provisioning failed, continuing with local account\" user_id=%s err=%v", user.ID, err)
		} else {
			account.Metadata = map[string]string{
				"provider_account_number": resp.AccountNumber,
				"provider_account_name":   resp.AccountName,
				"provider_bank":           resp.Bank,
			}
		}
	}

	var created *domain.Account
	for attempt := 0; attempt < accountNumberAttempts; attempt++ {
		account.AccountNumber = generateAccountNumber()
		created, err = s.repo.CreateAccount(ctx, account)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrDuplicateReference) {
			return nil, err
		}
	}
	if err != nil {
		return nil, fmt.Errorf("could not allocate a unique account number: %w", err)
	}

	log.Printf("level=info component=account_service msg=\"account created\" user_id=%s account_number=%s type=%s", user.ID, created.AccountNumber, accountType)
	return created, nil
}

// GetAccount retrieves one account owned by the user.
func (s *AccountService) GetAccount(ctx context.Context, userID, accountID uuid.UUID) (*domain.Account, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	if account.UserID != userID {
		return nil, fmt.Errorf("account belongs to another user: %w", domain.ErrForbidden)
	}
	return account, nil
}

// ListAccounts returns all accounts for the user.
func (s *AccountService) ListAccounts(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	return s.repo.FindAccountsByUserID(ctx, userID)
}

// UpdateAccount applies status and limit changes after an ownership check.
func (s *AccountService) UpdateAccount(ctx context.Context, userID, accountID uuid.UUID, update domain.AccountUpdate) (*domain.Account, error) {
	if update.Status != nil {
		switch *update.Status {
		case domain.AccountStatusActive, domain.AccountStatusInactive, domain.AccountStatusSuspended:
		default:
			return nil, fmt.Errorf("unknown account status %q: %w", *update.Status, domain.ErrValidation)
		}
	}

	if _, err := s.GetAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}
	return s.repo.UpdateAccount(ctx, accountID, update)
}

// generateAccountNumber produces a random 10-digit account number.
func generateAccountNumber() string {
	return fmt.Sprintf("%010d", rand.Int63n(10_000_000_000))
}
