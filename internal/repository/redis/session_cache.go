package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gigmarket/gigauth/internal/domain/entity"
	"github.com/gigmarket/gigauth/internal/domain/repository"
	apperrors "github.com/gigmarket/gigauth/internal/pkg/errors"
)

const (
	sessionKeyPrefix = "user:session:"
	refreshKeyPrefix = "user:refresh:"
)

// SessionKey возвращает ключ снимка сессии пользователя
func SessionKey(userID uint) string {
	return fmt.Sprintf("%s%d", sessionKeyPrefix, userID)
}

// RefreshKey возвращает ключ хеша текущего refresh-токена пользователя
func RefreshKey(userID uint) string {
	return fmt.Sprintf("%s%d", refreshKeyPrefix, userID)
}

// SessionCache хранит один снимок сессии и один refresh-токен на пользователя.
// Промах не ошибка: Get возвращает (nil, nil). Сбой Redis возвращает ErrCacheUnavailable.
type SessionCache struct {
	cache repository.CacheRepository
}

// NewSessionCache создает кеш сессий поверх CacheRepository
func NewSessionCache(cache repository.CacheRepository) *SessionCache {
	return &SessionCache{cache: cache}
}

// Put перезаписывает снимок сессии с новым TTL
func (c *SessionCache) Put(ctx context.Context, userID uint, entry *entity.SessionEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: session ttl must be positive", apperrors.ErrValidation)
	}
	return c.cache.SetJSON(ctx, SessionKey(userID), entry, ttl)
}

// Get возвращает снимок сессии или nil при промахе
func (c *SessionCache) Get(ctx context.Context, userID uint) (*entity.SessionEntry, error) {
	var entry entity.SessionEntry
	if err := c.cache.GetJSON(ctx, SessionKey(userID), &entry); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// Delete удаляет снимок сессии; повторный вызов безопасен
func (c *SessionCache) Delete(ctx context.Context, userID uint) error {
	return c.cache.Delete(ctx, SessionKey(userID))
}

// PutRefresh сохраняет хеш текущего refresh-токена, вытесняя предыдущий
func (c *SessionCache) PutRefresh(ctx context.Context, userID uint, tokenHash string, ttl time.Duration) error {
	return c.cache.Set(ctx, RefreshKey(userID), tokenHash, ttl)
}

// GetRefresh возвращает хеш refresh-токена или "" при промахе
func (c *SessionCache) GetRefresh(ctx context.Context, userID uint) (string, error) {
	hash, err := c.cache.Get(ctx, RefreshKey(userID))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return hash, nil
}

// DeleteRefresh удаляет refresh-токен пользователя
func (c *SessionCache) DeleteRefresh(ctx context.Context, userID uint) error {
	return c.cache.Delete(ctx, RefreshKey(userID))
}

// DeleteAll удаляет снимок и refresh-токен одной командой
func (c *SessionCache) DeleteAll(ctx context.Context, userID uint) error {
	return c.cache.Delete(ctx, SessionKey(userID), RefreshKey(userID))
}
