package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/gigmarket/gigauth/internal/domain/entity"
	apperrors "github.com/gigmarket/gigauth/internal/pkg/errors"
	"github.com/gigmarket/gigauth/internal/service"
	"github.com/gigmarket/gigauth/internal/service/verification"
)

func testUser() *entity.User {
	return &entity.User{ID: 7, Name: "Ada", Email: "ada@x.com", Password: "$2a$hash", Role: entity.RoleFreelancer}
}

func testTokens() *service.TokenPair {
	return &service.TokenPair{
		User:         testUser(),
		AccessToken:  "access",
		RefreshToken: "7.refresh",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(15 * time.Minute),
	}
}

// ============================================================================
// Валидация запросов: сервис не вызывается
// ============================================================================

func TestRegister_ValidationErrors(t *testing.T) {
	svc := new(MockAuthUseCase)
	handler := NewAuthHandler(svc)

	tests := []struct {
		name string
		body interface{}
	}{
		{"empty body", nil},
		{"missing name", map[string]string{"email": "a@x.com", "password": "password123"}},
		{"invalid email", map[string]string{"name": "A", "email": "nope", "password": "password123"}},
		{"short password", map[string]string{"name": "A", "email": "a@x.com", "password": "short"}},
		{"admin role", map[string]string{"name": "A", "email": "a@x.com", "password": "password123", "role": "admin"}},
		{"long country", map[string]string{"name": "A", "email": "a@x.com", "password": "password123", "country": "DEU"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("POST", "/api/auth/register", tt.body)
			handler.Register(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Equal(t, "validation_error", resp["error_type"])
		})
	}
	svc.AssertNotCalled(t, "Register", mock.Anything, mock.Anything)
}

func TestCodeEndpoints_ValidationErrors(t *testing.T) {
	handler := NewAuthHandler(new(MockAuthUseCase))
	bodies := []interface{}{
		nil,
		map[string]string{"email": "a@x.com"},
		map[string]string{"email": "a@x.com", "code": "12ab56"},
		map[string]string{"email": "bad", "code": "123456"},
	}
	for i, body := range bodies {
		for name, fn := range map[string]func(c *gin.Context){
			"2fa":     handler.VerifyTwoFactor,
			"email":   handler.ConfirmEmail,
			"account": handler.ConfirmAccount,
		} {
			t.Run(fmt.Sprintf("%s/%d", name, i), func(t *testing.T) {
				c, w := newTestGinContext("POST", "/", body)
				fn(c)
				assert.Equal(t, http.StatusBadRequest, w.Code)
			})
		}
	}
}

// ============================================================================
// Register / Login
// ============================================================================

func TestRegister_Success(t *testing.T) {
	svc := new(MockAuthUseCase)
	svc.On("Register", mock.Anything, mock.MatchedBy(func(in service.RegisterInput) bool {
		return in.Email == "ada@x.com" && in.Role == "freelancer"
	})).Return(&service.RegisterResult{User: testUser(), Warning: service.WarningVerificationNotSent}, nil)

	c, w := newTestGinContext("POST", "/api/auth/register", map[string]string{
		"name": "Ada", "email": "ada@x.com", "password": "password123", "role": "freelancer",
	})
	NewAuthHandler(svc).Register(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, service.WarningVerificationNotSent, resp["warning"])
	user := resp["user"].(map[string]interface{})
	assert.Equal(t, "ada@x.com", user["email"])
	assert.NotContains(t, user, "password", "пароль не должен попадать в ответ")
}

func TestRegister_Conflict(t *testing.T) {
	svc := new(MockAuthUseCase)
	svc.On("Register", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("create user: %w", apperrors.ErrConflict))

	c, w := newTestGinContext("POST", "/api/auth/register", map[string]string{
		"name": "Ada", "email": "ada@x.com", "password": "password123",
	})
	NewAuthHandler(svc).Register(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", parseJSONResponse(t, w)["error_type"])
}

func TestLogin_Success(t *testing.T) {
	svc := new(MockAuthUseCase)
	svc.On("Login", mock.Anything, "ada@x.com", "password123", mock.Anything).
		Return(&service.LoginResult{Tokens: testTokens()}, nil)

	c, w := newTestGinContext("POST", "/api/auth/login", map[string]string{"email": "ada@x.com", "password": "password123"})
	NewAuthHandler(svc).Login(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "access", resp["access_token"])
	assert.Equal(t, "7.refresh", resp["refresh_token"])
	assert.Equal(t, "Bearer", resp["token_type"])
	assert.Greater(t, resp["expires_in"].(float64), float64(0))
	assert.NotContains(t, resp, "mfa_required")
}

func TestLogin_MFARequired(t *testing.T) {
	svc := new(MockAuthUseCase)
	svc.On("Login", mock.Anything, "ada@x.com", "password123", mock.Anything).
		Return(&service.LoginResult{MFARequired: true}, nil)

	c, w := newTestGinContext("POST", "/api/auth/login", map[string]string{"email": "ada@x.com", "password": "password123"})
	NewAuthHandler(svc).Login(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, true, resp["mfa_required"])
	assert.NotContains(t, resp, "access_token")
}

func TestLogin_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"invalid credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{"rate limited", fmt.Errorf("login: %w", apperrors.ErrRateLimited), http.StatusTooManyRequests, "rate_limited"},
		{"redis down", fmt.Errorf("counter: %w", apperrors.ErrCacheUnavailable), http.StatusServiceUnavailable, "cache_unavailable"},
		{"db down", fmt.Errorf("user: %w", apperrors.ErrPersistenceUnavailable), http.StatusServiceUnavailable, "persistence_unavailable"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAuthUseCase)
			svc.On("Login", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			c, w := newTestGinContext("POST", "/api/auth/login", map[string]string{"email": "ada@x.com", "password": "x"})
			NewAuthHandler(svc).Login(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantType, parseJSONResponse(t, w)["error_type"])
			if tt.wantStatus == http.StatusServiceUnavailable {
				assert.NotEmpty(t, w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestVerifyTwoFactor_WrongCode(t *testing.T) {
	svc := new(MockAuthUseCase)
	svc.On("VerifyTwoFactor", mock.Anything, "ada@x.com", "000000").Return(nil, verification.ErrInvalidCode)

	c, w := newTestGinContext("POST", "/api/auth/2fa/verify", map[string]string{"email": "ada@x.com", "code": "000000"})
	NewAuthHandler(svc).VerifyTwoFactor(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_code", parseJSONResponse(t, w)["error_type"])
}

func TestRefreshToken(t *testing.T) {
	svc := new(MockAuthUseCase)
	svc.On("Refresh", mock.Anything, "7.old").Return(testTokens(), nil)
	svc.On("Refresh", mock.Anything, "reused").Return(nil, service.ErrRefreshTokenInvalid)
	handler := NewAuthHandler(svc)

	c, w := newTestGinContext("POST", "/api/auth/refresh", map[string]string{"refresh_token": "7.old"})
	handler.RefreshToken(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newTestGinContext("POST", "/api/auth/refresh", map[string]string{"refresh_token": "reused"})
	handler.RefreshToken(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token_invalid", parseJSONResponse(t, w)["error_type"])
}

// ============================================================================
// Маршруты, требующие аутентификации
// ============================================================================

func TestLogout_RequiresUser(t *testing.T) {
	svc := new(MockAuthUseCase)
	c, w := newTestGinContext("POST", "/api/auth/logout", nil)
	NewAuthHandler(svc).Logout(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "token_missing", parseJSONResponse(t, w)["error_type"])
	svc.AssertNotCalled(t, "Logout", mock.Anything, mock.Anything)
}

func TestLogout_Success(t *testing.T) {
	svc := new(MockAuthUseCase)
	svc.On("Logout", mock.Anything, uint(7)).Return(nil)

	c, w := newTestGinContext("POST", "/api/auth/logout", nil)
	c.Set("user_id", uint(7))
	NewAuthHandler(svc).Logout(c)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestGetMe(t *testing.T) {
	svc := new(MockAuthUseCase)
	svc.On("Me", mock.Anything, uint(7)).Return(&entity.SessionEntry{UserID: 7, Email: "ada@x.com", Role: "freelancer"}, nil)

	c, w := newTestGinContext("GET", "/api/users/me", nil)
	c.Set("user_id", uint(7))
	NewAuthHandler(svc).GetMe(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "ada@x.com", resp["email"])
}

// ============================================================================
// Сброс пароля и подтверждения
// ============================================================================

func TestForgotPassword_AlwaysAccepted(t *testing.T) {
	svc := new(MockAuthUseCase)
	svc.On("RequestPasswordReset", mock.Anything, "ghost@x.com").Return(nil)

	c, w := newTestGinContext("POST", "/api/auth/password/forgot", map[string]string{"email": "ghost@x.com"})
	NewAuthHandler(svc).ForgotPassword(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestResetPassword_AttemptsExceeded(t *testing.T) {
	svc := new(MockAuthUseCase)
	svc.On("ResetPassword", mock.Anything, "ada@x.com", "123456", "new-password").Return(verification.ErrAttemptsExceeded)

	c, w := newTestGinContext("POST", "/api/auth/password/reset", map[string]string{
		"email": "ada@x.com", "code": "123456", "new_password": "new-password",
	})
	NewAuthHandler(svc).ResetPassword(c)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "otp_attempts_exceeded", parseJSONResponse(t, w)["error_type"])
}

func TestConfirmAccount_Success(t *testing.T) {
	svc := new(MockAuthUseCase)
	verified := testUser()
	verified.IsVerified = true
	svc.On("ConfirmAccount", mock.Anything, "ada@x.com", "12345678").Return(verified, nil)

	c, w := newTestGinContext("POST", "/api/auth/account/confirm", map[string]string{"email": "ada@x.com", "code": "12345678"})
	NewAuthHandler(svc).ConfirmAccount(c)

	assert.Equal(t, http.StatusOK, w.Code)
	user := parseJSONResponse(t, w)["user"].(map[string]interface{})
	assert.Equal(t, true, user["is_verified"])
}

func TestConfirmEmail_Expired(t *testing.T) {
	svc := new(MockAuthUseCase)
	svc.On("ConfirmEmail", mock.Anything, "ada@x.com", "123456").Return(nil, verification.ErrExpired)

	c, w := newTestGinContext("POST", "/api/auth/email/confirm", map[string]string{"email": "ada@x.com", "code": "123456"})
	NewAuthHandler(svc).ConfirmEmail(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "otp_expired", parseJSONResponse(t, w)["error_type"])
}
