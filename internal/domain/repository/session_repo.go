package repository

import (
	"context"
	"time"

	"github.com/gigmarket/gigauth/internal/domain/entity"
)

// SessionCacheRepository: кеш снимков сессий и refresh-токенов (Redis).
// Get/GetRefresh при промахе возвращают нулевое значение без ошибки.
type SessionCacheRepository interface {
	Put(ctx context.Context, userID uint, entry *entity.SessionEntry, ttl time.Duration) error
	Get(ctx context.Context, userID uint) (*entity.SessionEntry, error)
	Delete(ctx context.Context, userID uint) error
	PutRefresh(ctx context.Context, userID uint, tokenHash string, ttl time.Duration) error
	GetRefresh(ctx context.Context, userID uint) (string, error)
	DeleteAll(ctx context.Context, userID uint) error
}
