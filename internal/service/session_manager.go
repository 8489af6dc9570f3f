package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gigmarket/gigauth/internal/domain/entity"
	"github.com/gigmarket/gigauth/internal/domain/repository"
	apperrors "github.com/gigmarket/gigauth/internal/pkg/errors"
)

// SessionManager: единственный, кто пишет снимки сессий и задает их TTL.
// Кеш служит только ускорением: промах или недоступность Redis при чтении
// приводят к перепроверке пользователя в PostgreSQL.
type SessionManager struct {
	cache      repository.SessionCacheRepository
	userRepo   repository.UserRepository
	sessionTTL time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewSessionManager создает менеджер сессий и возвращает ошибку при проблемах
func NewSessionManager(cache repository.SessionCacheRepository, userRepo repository.UserRepository, sessionTTL, refreshTTL time.Duration) (*SessionManager, error) {
	if cache == nil {
		return nil, fmt.Errorf("SessionCacheRepository is required for SessionManager")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("UserRepository is required for SessionManager")
	}
	if sessionTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("session and refresh ttl must be positive")
	}
	return &SessionManager{
		cache:      cache,
		userRepo:   userRepo,
		sessionTTL: sessionTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// Establish кладет в кеш свежий снимок пользователя. Ошибка Redis не прерывает вход:
// следующий Resolve восстановит снимок из БД.
func (m *SessionManager) Establish(ctx context.Context, user *entity.User) *entity.SessionEntry {
	entry := entity.NewSessionEntry(user, m.now(), m.sessionTTL)
	if err := m.cache.Put(ctx, user.ID, entry, m.sessionTTL); err != nil {
		log.Printf("[SessionManager] WARN: не удалось сохранить сессию пользователя ID=%d: %v", user.ID, err)
	}
	return entry
}

// Resolve возвращает снимок сессии. При промахе или ошибке кеша пользователь
// перечитывается из БД, а снимок пересоздается.
func (m *SessionManager) Resolve(ctx context.Context, userID uint) (*entity.SessionEntry, error) {
	entry, err := m.cache.Get(ctx, userID)
	switch {
	case err != nil:
		log.Printf("[SessionManager] WARN: кеш сессий недоступен для ID=%d, читаем из БД: %v", userID, err)
	case entry != nil && m.now().Before(entry.ExpiresAt()):
		return entry, nil
	}

	user, err := m.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to revalidate session for user %d: %w", userID, err)
	}
	return m.Establish(ctx, user), nil
}

// Forget удаляет только снимок (после изменения профиля), refresh-токен остается
func (m *SessionManager) Forget(ctx context.Context, userID uint) {
	if err := m.cache.Delete(ctx, userID); err != nil {
		log.Printf("[SessionManager] WARN: не удалось удалить снимок сессии ID=%d: %v", userID, err)
	}
}

// Invalidate удаляет снимок и refresh-токен пользователя; повторный вызов безопасен
func (m *SessionManager) Invalidate(ctx context.Context, userID uint) error {
	if err := m.cache.DeleteAll(ctx, userID); err != nil {
		log.Printf("[SessionManager] WARN: не удалось завершить сессию ID=%d: %v", userID, err)
		return err
	}
	log.Printf("[SessionManager] Сессия пользователя ID=%d завершена", userID)
	return nil
}

// IssueRefresh выпускает новый refresh-токен вида <userID>.<random>; в кеше хранится только его хеш.
// Предыдущий токен пользователя перестает действовать.
func (m *SessionManager) IssueRefresh(ctx context.Context, userID uint) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	token := fmt.Sprintf("%d.%s", userID, hex.EncodeToString(buf))
	if err := m.cache.PutRefresh(ctx, userID, hashRefreshToken(token), m.refreshTTL); err != nil {
		return "", err
	}
	return token, nil
}

// RotateRefresh меняет refresh-токен на новый и перечитывает пользователя из БД.
// Предъявление уже замененного токена завершает сессию целиком.
func (m *SessionManager) RotateRefresh(ctx context.Context, token string) (*entity.User, string, error) {
	userID, ok := parseRefreshToken(token)
	if !ok {
		return nil, "", ErrRefreshTokenInvalid
	}

	stored, err := m.cache.GetRefresh(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if stored == "" {
		log.Printf("[SessionManager] INFO: refresh-токен пользователя ID=%d не найден или истек", userID)
		return nil, "", ErrRefreshTokenInvalid
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(hashRefreshToken(token))) != 1 {
		log.Printf("[SessionManager] WARN: повторное использование refresh-токена для ID=%d, сессия завершается", userID)
		_ = m.Invalidate(ctx, userID)
		return nil, "", ErrRefreshTokenInvalid
	}

	// Снимок мог устареть: перечитываем пользователя
	m.Forget(ctx, userID)
	user, err := m.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = m.Invalidate(ctx, userID)
			return nil, "", ErrRefreshTokenInvalid
		}
		return nil, "", err
	}

	newToken, err := m.IssueRefresh(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	m.Establish(ctx, user)
	return user, newToken, nil
}

func parseRefreshToken(token string) (uint, bool) {
	idPart, secret, found := strings.Cut(token, ".")
	if !found || len(secret) != 64 {
		return 0, false
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
