package repository

import (
	"context"
	"time"
)

// CacheRepository определяет методы для работы с кешем.
// Промах возвращает apperrors.ErrNotFound, сбой транспорта возвращает apperrors.ErrCacheUnavailable.
type CacheRepository interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	// IncrementWindow атомарно увеличивает счетчик и ставит TTL окна при первом обращении
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}
