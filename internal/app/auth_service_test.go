package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fintra/banking-service/internal/domain"
	"github.com/fintra/banking-service/internal/store"
)

// authStubRepository implements the repository surface the auth service
// touches. Unimplemented methods panic via the embedded interface.
type authStubRepository struct {
	store.Repository

	usersByEmail map[string]*domain.User
	usersByID    map[uuid.UUID]*domain.User
	tokens       map[string]*domain.RefreshToken

	createUserErr     error
	rotateResult      bool
	rotateCalled      bool
	passwordChangedTo string
	tokensRevokedFor  []uuid.UUID
	lastLoginRecorded bool
	createdTokenRows  []*domain.RefreshToken
	deletedTokens     []string
}

func newAuthStub() *authStubRepository {
	return &authStubRepository{
		usersByEmail: make(map[string]*domain.User),
		usersByID:    make(map[uuid.UUID]*domain.User),
		tokens:       make(map[string]*domain.RefreshToken),
		rotateResult: true,
	}
}

func (s *authStubRepository) addUser(user *domain.User) {
	s.usersByEmail[user.Email] = user
	s.usersByID[user.ID] = user
}

func (s *authStubRepository) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	if s.createUserErr != nil {
		return nil, s.createUserErr
	}
	user.ID = uuid.New()
	s.addUser(user)
	return user, nil
}

func (s *authStubRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, ok := s.usersByEmail[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func (s *authStubRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, ok := s.usersByID[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func (s *authStubRepository) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	s.lastLoginRecorded = true
	return nil
}

func (s *authStubRepository) CreateRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	s.tokens[token.Token] = token
	s.createdTokenRows = append(s.createdTokenRows, token)
	return nil
}

func (s *authStubRepository) FindRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	row, ok := s.tokens[token]
	if !ok {
		return nil, store.ErrTokenNotFound
	}
	return row, nil
}

func (s *authStubRepository) RotateRefreshToken(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (bool, error) {
	s.rotateCalled = true
	if !s.rotateResult {
		return false, nil
	}
	row, ok := s.tokens[oldToken]
	if !ok {
		return false, nil
	}
	delete(s.tokens, oldToken)
	row.Token = newToken
	row.ExpiresAt = expiresAt
	s.tokens[newToken] = row
	return true, nil
}

func (s *authStubRepository) RevokeRefreshToken(ctx context.Context, token string) error {
	if row, ok := s.tokens[token]; ok {
		row.IsRevoked = true
	}
	return nil
}

func (s *authStubRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	delete(s.tokens, token)
	s.deletedTokens = append(s.deletedTokens, token)
	return nil
}

func (s *authStubRepository) UpdatePasswordAndRevokeTokens(ctx context.Context, userID uuid.UUID, newHash string) error {
	user, ok := s.usersByID[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	user.PasswordHash = newHash
	s.passwordChangedTo = newHash
	s.tokensRevokedFor = append(s.tokensRevokedFor, userID)
	for token := range s.tokens {
		if s.tokens[token].UserID == userID {
			delete(s.tokens, token)
		}
	}
	return nil
}

func newTestAuthService(repo store.Repository) *AuthService {
	return NewAuthService(repo, NewTokenManager("test-secret", 1, 30))
}

func verifiedUser(t *testing.T, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	return &domain.User{
		ID:           uuid.New(),
		FirstName:    "Ada",
		LastName:     "Okafor",
		Email:        "ada@example.com",
		PasswordHash: string(hash),
		IsVerified:   true,
	}
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	repo := newAuthStub()
	repo.createUserErr = store.ErrDuplicateUser
	svc := newTestAuthService(repo)

	_, err := svc.Register(context.Background(), domain.RegisterRequest{
		FirstName: "Ada",
		LastName:  "Okafor",
		Email:     "ada@example.com",
		Password:  "supersecret",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestRegister_RejectsShortPassword(t *testing.T) {
	svc := newTestAuthService(newAuthStub())

	_, err := svc.Register(context.Background(), domain.RegisterRequest{
		FirstName: "Ada",
		LastName:  "Okafor",
		Email:     "ada@example.com",
		Password:  "short",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLogin_WrongPasswordUnauthorized(t *testing.T) {
	repo := newAuthStub()
	repo.addUser(verifiedUser(t, "correct-password"))
	svc := newTestAuthService(repo)

	_, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "ada@example.com",
		Password: "wrong-password",
	}, domain.ClientInfo{})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLogin_UnknownEmailUnauthorized(t *testing.T) {
	svc := newTestAuthService(newAuthStub())

	_, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever12",
	}, domain.ClientInfo{})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLogin_UnverifiedUserForbidden(t *testing.T) {
	repo := newAuthStub()
	user := verifiedUser(t, "correct-password")
	user.IsVerified = false
	repo.addUser(user)
	svc := newTestAuthService(repo)

	_, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "ada@example.com",
		Password: "correct-password",
	}, domain.ClientInfo{})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestLogin_OpensSessionAndPersistsRefreshToken(t *testing.T) {
	repo := newAuthStub()
	repo.addUser(verifiedUser(t, "correct-password"))
	svc := newTestAuthService(repo)

	session, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "ada@example.com",
		Password: "correct-password",
	}, domain.ClientInfo{UserAgent: "test-agent", IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatal("expected both tokens in session")
	}
	if len(repo.createdTokenRows) != 1 {
		t.Fatalf("expected one persisted refresh token, got %d", len(repo.createdTokenRows))
	}
	row := repo.createdTokenRows[0]
	if row.UserAgent == nil || *row.UserAgent != "test-agent" {
		t.Fatal("expected user agent recorded on refresh token row")
	}
	if !repo.lastLoginRecorded {
		t.Fatal("expected last login stamp")
	}
}

func TestRefreshSession_RotatesToken(t *testing.T) {
	repo := newAuthStub()
	repo.addUser(verifiedUser(t, "correct-password"))
	svc := newTestAuthService(repo)

	session, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "ada@example.com",
		Password: "correct-password",
	}, domain.ClientInfo{})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	refreshed, err := svc.RefreshSession(context.Background(), session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if refreshed.RefreshToken == session.RefreshToken {
		t.Fatal("expected a new refresh token after rotation")
	}
	if _, ok := repo.tokens[session.RefreshToken]; ok {
		t.Fatal("expected old token row to be replaced")
	}

	// The old token must not refresh again.
	if _, err := svc.RefreshSession(context.Background(), session.RefreshToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for consumed token, got %v", err)
	}
}

func TestRefreshSession_LostRaceUnauthorized(t *testing.T) {
	repo := newAuthStub()
	repo.addUser(verifiedUser(t, "correct-password"))
	svc := newTestAuthService(repo)

	session, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "ada@example.com",
		Password: "correct-password",
	}, domain.ClientInfo{})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	repo.rotateResult = false
	if _, err := svc.RefreshSession(context.Background(), session.RefreshToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized when rotation loses the race, got %v", err)
	}
	if !repo.rotateCalled {
		t.Fatal("expected conditional rotation to be attempted")
	}
}

func TestRefreshSession_RevokedTokenUnauthorized(t *testing.T) {
	repo := newAuthStub()
	user := verifiedUser(t, "correct-password")
	repo.addUser(user)
	svc := newTestAuthService(repo)

	session, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "ada@example.com",
		Password: "correct-password",
	}, domain.ClientInfo{})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := svc.Logout(context.Background(), session.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := svc.RefreshSession(context.Background(), session.RefreshToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for revoked token, got %v", err)
	}
}

func TestRefreshSession_ExpiredTokenUnauthorized(t *testing.T) {
	repo := newAuthStub()
	user := verifiedUser(t, "correct-password")
	repo.addUser(user)
	svc := newTestAuthService(repo)

	session, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "ada@example.com",
		Password: "correct-password",
	}, domain.ClientInfo{})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	repo.tokens[session.RefreshToken].ExpiresAt = time.Now().Add(-time.Hour)

	if _, err := svc.RefreshSession(context.Background(), session.RefreshToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for expired token, got %v", err)
	}
	if len(repo.deletedTokens) != 1 || repo.deletedTokens[0] != session.RefreshToken {
		t.Fatal("expected the expired token row to be deleted")
	}
	if _, ok := repo.tokens[session.RefreshToken]; ok {
		t.Fatal("expected expired token row gone from the store")
	}
}

func TestIssueRefreshToken_UniquePerIssue(t *testing.T) {
	tokens := NewTokenManager("test-secret", 1, 30)
	user := verifiedUser(t, "correct-password")

	// Two tokens minted back to back share the same second-granularity iat;
	// they must still differ so rotation always stores a new string.
	first, _, err := tokens.IssueRefreshToken(user)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	second, _, err := tokens.IssueRefreshToken(user)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct refresh tokens from consecutive issuances")
	}
	if err := tokens.VerifyRefreshToken(second, user); err != nil {
		t.Fatalf("fresh token failed verification: %v", err)
	}
}

func TestChangePassword_RevokesSessionsAndInvalidatesOldTokens(t *testing.T) {
	repo := newAuthStub()
	user := verifiedUser(t, "correct-password")
	repo.addUser(user)
	svc := newTestAuthService(repo)

	session, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "ada@example.com",
		Password: "correct-password",
	}, domain.ClientInfo{})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := svc.ChangePassword(context.Background(), user.ID, "correct-password", "new-password-123"); err != nil {
		t.Fatalf("change password failed: %v", err)
	}
	if len(repo.tokensRevokedFor) != 1 || repo.tokensRevokedFor[0] != user.ID {
		t.Fatal("expected all refresh tokens revoked for the user")
	}

	// The pre-change refresh token can never mint a new session.
	if _, err := svc.RefreshSession(context.Background(), session.RefreshToken); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized after password change, got %v", err)
	}

	// The new password must verify against the stored hash.
	if err := bcrypt.CompareHashAndPassword([]byte(repo.passwordChangedTo), []byte("new-password-123")); err != nil {
		t.Fatalf("new password does not match stored hash: %v", err)
	}
}

func TestChangePassword_WrongOldPasswordUnauthorized(t *testing.T) {
	repo := newAuthStub()
	user := verifiedUser(t, "correct-password")
	repo.addUser(user)
	svc := newTestAuthService(repo)

	err := svc.ChangePassword(context.Background(), user.ID, "not-the-password", "new-password-123")
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if repo.passwordChangedTo != "" {
		t.Fatal("expected password to remain unchanged")
	}
}
