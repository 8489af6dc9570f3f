package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gigmarket/gigauth/internal/domain/entity"
	apperrors "github.com/gigmarket/gigauth/internal/pkg/errors"
	"github.com/gigmarket/gigauth/pkg/auth"
)

// Ключи gin.Context, которые выставляет RequireAuth
const (
	ContextUserID  = "user_id"
	ContextEmail   = "email"
	ContextRole    = "role"
	ContextSession = "session"
)

// TokenParser проверяет подпись и срок access-токена
type TokenParser interface {
	ParseToken(tokenString string) (*auth.JWTCustomClaims, error)
}

// SessionResolver возвращает актуальный снимок сессии (кеш или БД)
type SessionResolver interface {
	Resolve(ctx context.Context, userID uint) (*entity.SessionEntry, error)
}

// AuthMiddleware обеспечивает аутентификацию для защищенных маршрутов
type AuthMiddleware struct {
	tokens   TokenParser
	sessions SessionResolver
}

func NewAuthMiddleware(tokens TokenParser, sessions SessionResolver) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, sessions: sessions}
}

// RequireAuth проверяет Bearer-токен и загружает снимок сессии.
// Роль берется из снимка, а не из токена, чтобы смена роли действовала сразу.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required", "error_type": "token_missing"})
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}", "error_type": "token_invalid"})
			return
		}

		claims, err := m.tokens.ParseToken(strings.TrimSpace(token))
		if err != nil {
			message := "Invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				message = "Token is expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message, "error_type": "token_invalid"})
			return
		}

		session, err := m.sessions.Resolve(c.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User no longer exists", "error_type": "token_invalid"})
				return
			}
			log.Printf("[AuthMiddleware] ERROR: не удалось получить сессию пользователя ID=%d: %v", claims.UserID, err)
			c.Header("Retry-After", "5")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable", "error_type": "persistence_unavailable"})
			return
		}

		c.Set(ContextUserID, session.UserID)
		c.Set(ContextEmail, session.Email)
		c.Set(ContextRole, session.Role)
		c.Set(ContextSession, session)
		c.Next()
	}
}

// RequireRole пропускает только пользователей с одной из ролей. Применяется после RequireAuth.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient rights", "error_type": "forbidden"})
	}
}
