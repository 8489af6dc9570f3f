package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/gigmarket/gigauth/internal/domain/entity"
	apperrors "github.com/gigmarket/gigauth/internal/pkg/errors"
	"github.com/gigmarket/gigauth/pkg/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockTokenParser struct {
	mock.Mock
}

func (m *mockTokenParser) ParseToken(tokenString string) (*auth.JWTCustomClaims, error) {
	args := m.Called(tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.JWTCustomClaims), args.Error(1)
}

type mockSessionResolver struct {
	mock.Mock
}

func (m *mockSessionResolver) Resolve(ctx context.Context, userID uint) (*entity.SessionEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.SessionEntry), args.Error(1)
}

func newAuthRouter(m *AuthMiddleware, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{m.RequireAuth()}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetUint(ContextUserID), "role": c.GetString(ContextRole)})
	})
	r.GET("/private", handlers...)
	return r
}

func doGet(r http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth_MissingAndMalformedHeader(t *testing.T) {
	r := newAuthRouter(NewAuthMiddleware(new(mockTokenParser), new(mockSessionResolver)))

	w := doGet(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token_missing")

	for _, header := range []string{"Token abc", "Bearer", "Bearer   "} {
		w = doGet(r, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.Contains(t, w.Body.String(), "token_invalid")
	}
}

func TestRequireAuth_ExpiredToken(t *testing.T) {
	tokens := new(mockTokenParser)
	tokens.On("ParseToken", "old").Return(nil, auth.ErrTokenExpired)
	r := newAuthRouter(NewAuthMiddleware(tokens, new(mockSessionResolver)))

	w := doGet(r, "Bearer old")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "expired")
}

func TestRequireAuth_UsesSessionSnapshot(t *testing.T) {
	tokens := new(mockTokenParser)
	tokens.On("ParseToken", "good").Return(&auth.JWTCustomClaims{UserID: 7, Role: entity.RoleClient}, nil)
	sessions := new(mockSessionResolver)
	sessions.On("Resolve", mock.Anything, uint(7)).Return(&entity.SessionEntry{UserID: 7, Role: entity.RoleAdmin}, nil)
	m := NewAuthMiddleware(tokens, sessions)
	r := newAuthRouter(m, m.RequireRole(entity.RoleAdmin))

	w := doGet(r, "bearer good")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":7,"role":"admin"}`, w.Body.String())
}

func TestRequireAuth_ResolveErrors(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{apperrors.ErrNotFound, http.StatusUnauthorized},
		{fmt.Errorf("db: %w", apperrors.ErrPersistenceUnavailable), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		tokens := new(mockTokenParser)
		tokens.On("ParseToken", "good").Return(&auth.JWTCustomClaims{UserID: 7}, nil)
		sessions := new(mockSessionResolver)
		sessions.On("Resolve", mock.Anything, uint(7)).Return(nil, tt.err)

		w := doGet(newAuthRouter(NewAuthMiddleware(tokens, sessions)), "Bearer good")
		assert.Equal(t, tt.wantStatus, w.Code, tt.err.Error())
	}
}

func TestRequireRole_Forbidden(t *testing.T) {
	tokens := new(mockTokenParser)
	tokens.On("ParseToken", "good").Return(&auth.JWTCustomClaims{UserID: 7}, nil)
	sessions := new(mockSessionResolver)
	sessions.On("Resolve", mock.Anything, uint(7)).Return(&entity.SessionEntry{UserID: 7, Role: entity.RoleClient}, nil)
	m := NewAuthMiddleware(tokens, sessions)

	w := doGet(newAuthRouter(m, m.RequireRole(entity.RoleAdmin)), "Bearer good")

	assert.Equal(t, http.StatusForbidden, w.Code)
}
