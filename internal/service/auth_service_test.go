package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/openpermit/ahj-registry-api/internal/models"
	appErrors "github.com/openpermit/ahj-registry-api/pkg/errors"
)

type authRepoStub struct {
	usersByEmail map[string]*models.User
	usersByID    map[string]*models.User
	activated    []string
	passwords    map[string]string
	tokens       map[string]*models.RefreshToken
	revokedAll   []string
	revokedIDs   []string
	lastLogin    map[string]time.Time
	audits       []*models.AuditLog
}

func newAuthRepoStub() *authRepoStub {
	return &authRepoStub{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[string]*models.User),
		passwords:    make(map[string]string),
		tokens:       make(map[string]*models.RefreshToken),
		lastLogin:    make(map[string]time.Time),
	}
}

func (s *authRepoStub) seed(user *models.User) {
	s.usersByEmail[user.Email] = user
	s.usersByID[user.ID] = user
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, ok := s.usersByEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := s.usersByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (s *authRepoStub) Create(ctx context.Context, user *models.User) error {
	s.seed(user)
	return nil
}

func (s *authRepoStub) Activate(ctx context.Context, id string) error {
	s.activated = append(s.activated, id)
	if user, ok := s.usersByID[id]; ok {
		user.Active = true
	}
	return nil
}

func (s *authRepoStub) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	s.passwords[id] = passwordHash
	if user, ok := s.usersByID[id]; ok {
		user.PasswordHash = passwordHash
	}
	return nil
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	s.lastLogin[id] = ts
	return nil
}

func (s *authRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	s.revokedAll = append(s.revokedAll, userID)
	return nil
}

func (s *authRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.tokens[token.Token] = token
	return nil
}

func (s *authRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := s.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (s *authRepoStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	s.revokedIDs = append(s.revokedIDs, id)
	for _, rt := range s.tokens {
		if rt.ID == id {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (s *authRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.audits = append(s.audits, log)
	return nil
}

func newAuthServiceForTest(repo *authRepoStub) *AuthService {
	return NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "ahj-registry-api",
		Audience:           []string{"ahj-registry"},
	})
}

func seedActiveUser(repo *authRepoStub, password string) *models.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user := &models.User{
		ID:           "user-1",
		Email:        "jo@example.com",
		PasswordHash: string(hash),
		Username:     "jo",
		Role:         models.RoleMember,
		Active:       true,
	}
	repo.seed(user)
	return user
}

func TestAuthServiceRegisterAndActivate(t *testing.T) {
	repo := newAuthRepoStub()
	svc := newAuthServiceForTest(repo)

	user, activation, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "new@example.com",
		Password: "password123",
		Username: "newbie",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, user.Role)
	assert.False(t, user.Active)
	assert.NotEqual(t, "password123", user.PasswordHash)
	require.NotEmpty(t, activation)

	require.NoError(t, svc.Activate(context.Background(), models.ActivateRequest{Token: activation}))
	assert.Equal(t, []string{user.ID}, repo.activated)
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	repo := newAuthRepoStub()
	seedActiveUser(repo, "password123")
	svc := newAuthServiceForTest(repo)

	_, _, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:    "jo@example.com",
		Password: "password123",
		Username: "someone",
	})
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(t, err))
}

func TestAuthServiceLoginIssuesTokens(t *testing.T) {
	repo := newAuthRepoStub()
	user := seedActiveUser(repo, "password123")
	svc := newAuthServiceForTest(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "jo@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, user.ID, res.User.ID)
	assert.Contains(t, repo.tokens, res.RefreshToken)
	assert.Contains(t, repo.lastLogin, user.ID)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionLogin, repo.audits[0].Action)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleMember, claims.Role)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newAuthRepoStub()
	seedActiveUser(repo, "password123")
	svc := newAuthServiceForTest(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "jo@example.com",
		Password: "wrong-password",
	})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, errorCode(t, err))
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	repo := newAuthRepoStub()
	user := seedActiveUser(repo, "password123")
	user.Active = false
	svc := newAuthServiceForTest(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "jo@example.com",
		Password: "password123",
	})
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, errorCode(t, err))
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	repo := newAuthRepoStub()
	seedActiveUser(repo, "password123")
	svc := newAuthServiceForTest(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "jo@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, res.RefreshToken)
	// The consumed token is single use.
	assert.True(t, repo.tokens[login.RefreshToken].Revoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, err))
}

func TestAuthServiceRefreshExpiredToken(t *testing.T) {
	repo := newAuthRepoStub()
	seedActiveUser(repo, "password123")
	repo.tokens["stale"] = &models.RefreshToken{
		ID:        "rt-1",
		UserID:    "user-1",
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	svc := newAuthServiceForTest(repo)

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, err))
}

func TestAuthServiceLogoutRejectsForeignToken(t *testing.T) {
	repo := newAuthRepoStub()
	seedActiveUser(repo, "password123")
	repo.tokens["other"] = &models.RefreshToken{
		ID:        "rt-2",
		UserID:    "someone-else",
		Token:     "other",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	svc := newAuthServiceForTest(repo)

	err := svc.Logout(context.Background(), "other", "user-1", models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))
}

func TestAuthServiceValidateTokenWrongSecret(t *testing.T) {
	repo := newAuthRepoStub()
	seedActiveUser(repo, "password123")
	svc := newAuthServiceForTest(repo)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "jo@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	other := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "different-secret"})
	_, err = other.ValidateToken(login.AccessToken)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, err))
}

func TestAuthServiceChangePassword(t *testing.T) {
	repo := newAuthRepoStub()
	user := seedActiveUser(repo, "password123")
	svc := newAuthServiceForTest(repo)

	err := svc.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{
		OldPassword: "password123",
		NewPassword: "brand-new-pass",
	})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("brand-new-pass")))
	// Every open session is closed after a rotation.
	assert.Equal(t, []string{user.ID}, repo.revokedAll)
}

func TestAuthServiceChangePasswordWrongCurrent(t *testing.T) {
	repo := newAuthRepoStub()
	user := seedActiveUser(repo, "password123")
	svc := newAuthServiceForTest(repo)

	err := svc.ChangePassword(context.Background(), user.ID, models.ChangePasswordRequest{
		OldPassword: "not-the-password",
		NewPassword: "brand-new-pass",
	})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, errorCode(t, err))
	assert.Empty(t, repo.revokedAll)
}
