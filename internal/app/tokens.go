/**
 * @description
 * Token issuance and verification for the auth service. Access tokens are
 * short-lived HS256 JWTs signed with the server secret. Refresh tokens are
 * HS256 JWTs signed with the server secret concatenated with the user's
 * current password hash, so changing the password invalidates every
 * outstanding refresh token cryptographically as well as in the database.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: JWT signing and parsing.
 * - internal/domain: User model and sentinel errors.
 */

package app

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fintra/banking-service/internal/domain"
)

// TokenManager issues and verifies the service's JWTs.
type TokenManager struct {
	secret          string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// NewTokenManager builds a TokenManager. TTLs are given in days.
func NewTokenManager(secret string, accessDays, refreshDays int) *TokenManager {
	if accessDays <= 0 {
		accessDays = 1
	}
	if refreshDays <= 0 {
		refreshDays = 30
	}
	return &TokenManager{
		secret:          secret,
		accessTokenTTL:  time.Duration(accessDays) * 24 * time.Hour,
		refreshTokenTTL: time.Duration(refreshDays) * 24 * time.Hour,
	}
}

// RefreshTokenTTL exposes the configured refresh token lifetime.
func (m *TokenManager) RefreshTokenTTL() time.Duration {
	return m.refreshTokenTTL
}

// IssueAccessToken signs a short-lived access token carrying the user's
// identity claims.
func (m *TokenManager) IssueAccessToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":    user.ID.String(),
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(m.accessTokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken validates an access token and returns the user ID and
// email claims. Any parse, signature, or expiry failure maps to Unauthorized.
func (m *TokenManager) VerifyAccessToken(tokenString string) (uuid.UUID, string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(m.secret), nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, "", domain.ErrUnauthorized
	}

	rawID, _ := claims["id"].(string)
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return uuid.Nil, "", domain.ErrUnauthorized
	}
	email, _ := claims["email"].(string)
	return userID, email, nil
}

// IssueRefreshToken signs a long-lived refresh token bound to the user's
// current password hash. The jti claim makes every issued token unique, so
// a rotation always swaps the stored row to a different string even when
// two issuances share the same second-granularity iat.
func (m *TokenManager) IssueRefreshToken(user *domain.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.refreshTokenTTL)
	claims := jwt.MapClaims{
		"id":  user.ID.String(),
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.secret + user.PasswordHash))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyRefreshToken checks a refresh token's signature and expiry against
// the user's current password hash.
func (m *TokenManager) VerifyRefreshToken(tokenString string, user *domain.User) error {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(m.secret + user.PasswordHash), nil
	})
	if err != nil || !token.Valid {
		return domain.ErrUnauthorized
	}
	if rawID, _ := claims["id"].(string); rawID != user.ID.String() {
		return domain.ErrUnauthorized
	}
	return nil
}
