package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/litholog/rock-registry-api/internal/models"
	"github.com/litholog/rock-registry-api/internal/service"
)

type fakeAuthRepo struct {
	user    *models.User
	created *models.User
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

func (f *fakeAuthRepo) FindConflicts(context.Context, string, *string) ([]string, error) {
	return nil, nil
}

func (f *fakeAuthRepo) Create(_ context.Context, user *models.User) error {
	f.created = user
	return nil
}

func (f *fakeAuthRepo) UpdateLastLogin(context.Context, string, time.Time) error { return nil }

func (f *fakeAuthRepo) UpdatePassword(context.Context, string, string, time.Time) error {
	return nil
}

func (f *fakeAuthRepo) RevokeUserRefreshTokens(context.Context, string) error { return nil }

func (f *fakeAuthRepo) CreateRefreshToken(context.Context, *models.RefreshToken) error { return nil }

func (f *fakeAuthRepo) FindRefreshToken(context.Context, string) (*models.RefreshToken, error) {
	return nil, sql.ErrNoRows
}

func (f *fakeAuthRepo) RevokeRefreshToken(context.Context, string, time.Time) error { return nil }

type noopActivity struct{}

func (noopActivity) Append(context.Context, *models.ActivityLog) error { return nil }

func newAuthHandler(repo *fakeAuthRepo) *AuthHandler {
	svc := service.NewAuthService(repo, noopActivity{}, nil, nil, service.AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "rock-registry-test",
	})
	return NewAuthHandler(svc)
}

func postJSON(t *testing.T, path string, payload interface{}) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return rec, c
}

func TestAuthHandlerLoginSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &fakeAuthRepo{user: &models.User{
		ID:           "user-1",
		Email:        "student@example.edu",
		PasswordHash: string(hash),
		FullName:     "Test Student",
		Role:         models.RoleStudent,
		Active:       true,
	}}
	handler := newAuthHandler(repo)

	rec, c := postJSON(t, "/auth/login", map[string]string{
		"email":    "student@example.edu",
		"password": "secret123",
	})

	handler.Login(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data models.LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.NotEmpty(t, envelope.Data.AccessToken)
	assert.NotEmpty(t, envelope.Data.RefreshToken)
	assert.Equal(t, "user-1", envelope.Data.User.ID)
}

func TestAuthHandlerLoginWrongPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hash, _ := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	repo := &fakeAuthRepo{user: &models.User{
		ID:           "user-1",
		Email:        "student@example.edu",
		PasswordHash: string(hash),
		Active:       true,
	}}
	handler := newAuthHandler(repo)

	rec, c := postJSON(t, "/auth/login", map[string]string{
		"email":    "student@example.edu",
		"password": "wrong",
	})

	handler.Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerLoginMalformedPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAuthHandler(&fakeAuthRepo{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader([]byte("{not json")))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Login(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerSignupCreatesStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &fakeAuthRepo{}
	handler := newAuthHandler(repo)

	rec, c := postJSON(t, "/auth/signup", map[string]string{
		"full_name": "New Student",
		"email":     "new@example.edu",
		"password":  "secret123",
		"school_id": "2026-0042",
	})

	handler.Signup(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, repo.created)
	assert.Equal(t, models.RoleStudent, repo.created.Role)
	assert.True(t, repo.created.Active)
}

func TestAuthHandlerRefreshRejectsUnknownToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newAuthHandler(&fakeAuthRepo{})

	rec, c := postJSON(t, "/auth/refresh", map[string]string{
		"refresh_token": "no-such-token",
	})

	handler.Refresh(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
