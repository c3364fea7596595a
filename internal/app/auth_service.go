/**
 * @description
 * AuthService owns the credential and session lifecycle: registration,
 * login, refresh token rotation, logout, password change, and email
 * verification. Password hashes are bcrypt; tokens come from TokenManager.
 *
 * Session invariants:
 * - A refresh token is single-use. Each successful refresh replaces the
 *   stored token string, and the replacement is conditional on the old value
 *   so concurrent refreshes of the same token resolve to one winner.
 * - Changing the password revokes every live session for the user.
 *
 * @dependencies
 * - golang.org/x/crypto/bcrypt: Password hashing.
 * - internal/store: Persistence interface.
 * - internal/domain: Models and sentinel errors.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fintra/banking-service/internal/domain"
	"github.com/fintra/banking-service/internal/store"
)

const (
	bcryptCost        = 10
	minPasswordLength = 8
)

// AuthService implements the credential and session operations.
type AuthService struct {
	repo   store.Repository
	tokens *TokenManager
}

// NewAuthService creates a new AuthService.
func NewAuthService(repo store.Repository, tokens *TokenManager) *AuthService {
	return &AuthService{repo: repo, tokens: tokens}
}

// Register creates a new unverified user and returns it. The verification
// token is logged in place of an outbound email integration.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	verificationToken := uuid.NewString()
	user := &domain.User{
		FirstName:         strings.TrimSpace(req.FirstName),
		LastName:          strings.TrimSpace(req.LastName),
		Email:             strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:             strings.TrimSpace(req.Phone),
		PasswordHash:      string(hash),
		IsVerified:        false,
		VerificationToken: &verificationToken,
	}

	created, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
		}
		return nil, err
	}

	log.Printf("level=info component=auth_service msg=\"user registered\" user_id=%s verification_token=%s", created.ID, verificationToken)
	return created, nil
}

// Login verifies the credentials and opens a new session. Unknown emails and
// wrong passwords return the same Unauthorized error.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest, client domain.ClientInfo) (*domain.Session, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("email and password are required: %w", domain.ErrValidation)
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}

	if !user.IsVerified {
		return nil, fmt.Errorf("email not verified: %w", domain.ErrForbidden)
	}

	session, err := s.openSession(ctx, user, client)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID); err != nil {
		log.Printf("level=warn component=auth_service msg=\"failed to update last login\" user_id=%s err=%v", user.ID, err)
	}
	return session, nil
}

// openSession issues a token pair and persists the refresh token row.
func (s *AuthService) openSession(ctx context.Context, user *domain.User, client domain.ClientInfo) (*domain.Session, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	refreshToken, expiresAt, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, err
	}

	row := &domain.RefreshToken{
		Token:       refreshToken,
		UserID:      user.ID,
		TokenFamily: uuid.NewString(),
		ExpiresAt:   expiresAt,
		UserAgent:   optionalString(client.UserAgent),
		IPAddress:   optionalString(client.IPAddress),
	}
	if err := s.repo.CreateRefreshToken(ctx, row); err != nil {
		return nil, err
	}

	return &domain.Session{AccessToken: accessToken, RefreshToken: refreshToken, User: user}, nil
}

// RefreshSession rotates a refresh token: the presented token must match a
// live stored row and verify against the user's current password hash, and
// the stored row is swapped to a new token in one conditional update. A
// token that loses the rotation race is treated as invalid.
func (s *AuthService) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token required: %w", domain.ErrUnauthorized)
	}

	row, err := s.repo.FindRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			return nil, fmt.Errorf("unknown refresh token: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}
	if row.Expired() {
		// The row can never yield a session again; clean it up on sight.
		if err := s.repo.DeleteRefreshToken(ctx, refreshToken); err != nil {
			log.Printf("level=warn component=auth_service msg=\"failed to delete expired refresh token\" user_id=%s err=%v", row.UserID, err)
		}
		return nil, fmt.Errorf("refresh token expired: %w", domain.ErrUnauthorized)
	}
	if row.IsRevoked {
		return nil, fmt.Errorf("refresh token revoked: %w", domain.ErrUnauthorized)
	}

	user, err := s.repo.FindUserByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("user gone: %w", domain.ErrUnauthorized)
		}
		return nil, err
	}

	if err := s.tokens.VerifyRefreshToken(refreshToken, user); err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	newRefreshToken, expiresAt, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, err
	}

	rotated, err := s.repo.RotateRefreshToken(ctx, refreshToken, newRefreshToken, expiresAt)
	if err != nil {
		return nil, err
	}
	if !rotated {
		return nil, fmt.Errorf("refresh token already rotated: %w", domain.ErrUnauthorized)
	}

	return &domain.Session{AccessToken: accessToken, RefreshToken: newRefreshToken, User: user}, nil
}

// Logout revokes the presented refresh token. Unknown tokens succeed so the
// operation is idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.repo.RevokeRefreshToken(ctx, refreshToken)
}

// ChangePassword swaps the password hash after re-verifying the old password
// and revokes every session the user holds.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, domain.ErrValidation)
	}

	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return fmt.Errorf("current password incorrect: %w", domain.ErrUnauthorized)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.repo.UpdatePasswordAndRevokeTokens(ctx, userID, string(hash)); err != nil {
		return err
	}
	log.Printf("level=info component=auth_service msg=\"password changed, sessions revoked\" user_id=%s", userID)
	return nil
}

// VerifyEmail consumes a verification token and marks the user verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, fmt.Errorf("verification token required: %w", domain.ErrValidation)
	}
	user, err := s.repo.VerifyUserByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("invalid verification token: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return user, nil
}

func validateRegistration(req domain.RegisterRequest) error {
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return fmt.Errorf("first and last name are required: %w", domain.ErrValidation)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		return fmt.Errorf("invalid email address: %w", domain.ErrValidation)
	}
	if len(req.Password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLength, domain.ErrValidation)
	}
	return nil
}
