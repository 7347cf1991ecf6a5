package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kurdsoft/erp-attendance-api/internal/models"
	appErrors "github.com/kurdsoft/erp-attendance-api/pkg/errors"
)

type fakeAuthRepo struct {
	user         *models.User
	storedToken  *models.RefreshToken
	findTokenErr error

	createdTokens   []*models.RefreshToken
	revokedIDs      []string
	revokedAllUsers []string
	auditLogs       []*models.AuditLog
	lastLogin       *time.Time
}

func (f *fakeAuthRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if f.user == nil || f.user.Email != email {
		return nil, sql.ErrNoRows
	}
	return f.user, nil
}

func (f *fakeAuthRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return f.user, nil
}

func (f *fakeAuthRepo) UpdateLastLogin(_ context.Context, _ string, ts time.Time) error {
	f.lastLogin = &ts
	return nil
}

func (f *fakeAuthRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	f.createdTokens = append(f.createdTokens, token)
	return nil
}

func (f *fakeAuthRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	if f.findTokenErr != nil {
		return nil, f.findTokenErr
	}
	if f.storedToken == nil || f.storedToken.Token != token {
		return nil, sql.ErrNoRows
	}
	return f.storedToken, nil
}

func (f *fakeAuthRepo) RevokeRefreshToken(_ context.Context, id string, _ time.Time) error {
	f.revokedIDs = append(f.revokedIDs, id)
	return nil
}

func (f *fakeAuthRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	f.revokedAllUsers = append(f.revokedAllUsers, userID)
	return nil
}

func (f *fakeAuthRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	f.auditLogs = append(f.auditLogs, log)
	return nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "unit-test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "erp-attendance-api",
	}
}

func activeUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "usr-1",
		Email:        "aram@example.com",
		PasswordHash: string(hash),
		FullName:     "Aram Salih",
		Role:         models.RoleEmployee,
		Active:       true,
	}
}

func TestLoginSuccess(t *testing.T) {
	repo := &fakeAuthRepo{user: activeUser(t, "s3cret")}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "aram@example.com",
		Password: "s3cret",
		IP:       "10.0.0.5",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, int64(900), resp.ExpiresIn)
	assert.Equal(t, "usr-1", resp.User.ID)

	require.Len(t, repo.createdTokens, 1)
	assert.Equal(t, "10.0.0.5", repo.createdTokens[0].IPAddress)
	require.NotNil(t, repo.lastLogin)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)

	// The issued access token must round-trip through validation.
	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "usr-1", claims.UserID)
	assert.Equal(t, models.RoleEmployee, claims.Role)
	assert.Equal(t, "erp-attendance-api", claims.Issuer)
}

func TestLoginWrongPassword(t *testing.T) {
	repo := &fakeAuthRepo{user: activeUser(t, "s3cret")}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "aram@example.com", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.createdTokens)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := NewAuthService(&fakeAuthRepo{}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "s3cret"})
	require.Error(t, err)
	// Unknown accounts get the same error as bad passwords.
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	user := activeUser(t, "s3cret")
	user.Active = false
	svc := NewAuthService(&fakeAuthRepo{user: user}, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "aram@example.com", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestRefreshTokenRotation(t *testing.T) {
	user := activeUser(t, "s3cret")
	repo := &fakeAuthRepo{
		user: user,
		storedToken: &models.RefreshToken{
			ID:        "rt-1",
			UserID:    user.ID,
			Token:     "old-refresh-token",
			ExpiresAt: time.Now().UTC().Add(time.Hour),
		},
	}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	resp, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-refresh-token"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, "old-refresh-token", resp.RefreshToken)

	// The presented token is rotated out and a fresh one persisted.
	assert.Equal(t, []string{"rt-1"}, repo.revokedIDs)
	require.Len(t, repo.createdTokens, 1)
	assert.Equal(t, resp.RefreshToken, repo.createdTokens[0].Token)
}

func TestRefreshTokenExpired(t *testing.T) {
	user := activeUser(t, "s3cret")
	repo := &fakeAuthRepo{
		user: user,
		storedToken: &models.RefreshToken{
			ID:        "rt-1",
			UserID:    user.ID,
			Token:     "old-refresh-token",
			ExpiresAt: time.Now().UTC().Add(-time.Minute),
		},
	}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old-refresh-token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.revokedIDs)
	// Expiry alone is not reuse; other sessions stay alive.
	assert.Empty(t, repo.revokedAllUsers)
}

// Presenting a refresh token that was already rotated out is treated as a
// leak: every session the user holds gets revoked.
func TestRefreshTokenReuseRevokesAllSessions(t *testing.T) {
	user := activeUser(t, "s3cret")
	repo := &fakeAuthRepo{
		user: user,
		storedToken: &models.RefreshToken{
			ID:        "rt-1",
			UserID:    user.ID,
			Token:     "stolen-refresh-token",
			ExpiresAt: time.Now().UTC().Add(time.Hour),
			Revoked:   true,
		},
	}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stolen-refresh-token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{"usr-1"}, repo.revokedAllUsers)
	assert.Empty(t, repo.createdTokens)
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	repo := &fakeAuthRepo{
		storedToken: &models.RefreshToken{
			ID:        "rt-1",
			UserID:    "usr-2",
			Token:     "their-token",
			ExpiresAt: time.Now().UTC().Add(time.Hour),
		},
	}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	err := svc.Logout(context.Background(), "their-token", "usr-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.revokedIDs)
}

func TestLogoutRevokesToken(t *testing.T) {
	repo := &fakeAuthRepo{
		storedToken: &models.RefreshToken{
			ID:        "rt-1",
			UserID:    "usr-1",
			Token:     "my-token",
			ExpiresAt: time.Now().UTC().Add(time.Hour),
		},
	}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	require.NoError(t, svc.Logout(context.Background(), "my-token", "usr-1", models.LoginRequest{}))
	assert.Equal(t, []string{"rt-1"}, repo.revokedIDs)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogout, repo.auditLogs[0].Action)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	repo := &fakeAuthRepo{user: activeUser(t, "s3cret")}
	svc := NewAuthService(repo, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "aram@example.com", Password: "s3cret"})
	require.NoError(t, err)

	other := NewAuthService(repo, nil, nil, AuthConfig{
		AccessTokenSecret: "different-secret",
		AccessTokenExpiry: 15 * time.Minute,
	})
	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
