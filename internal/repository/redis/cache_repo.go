package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	apperrors "github.com/gigmarket/gigauth/internal/pkg/errors"
)

// DefaultOpTimeout: бюджет одной операции, если конфигурация не задала свой
const DefaultOpTimeout = 200 * time.Millisecond

// incrementWindowScript увеличивает счетчик и ставит TTL окна только при первом обращении.
// Ключ без TTL (например, после сбоя между командами) получает окно заново.
var incrementWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 or redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// CacheRepo реализует repository.CacheRepository
type CacheRepo struct {
	client    redis.UniversalClient
	opTimeout time.Duration
}

// NewCacheRepo создает новый репозиторий кеша и возвращает ошибку при проблемах
func NewCacheRepo(client redis.UniversalClient, opTimeout time.Duration) (*CacheRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis client cannot be nil for CacheRepo")
	}
	if opTimeout <= 0 {
		opTimeout = DefaultOpTimeout
	}
	return &CacheRepo{
		client:    client,
		opTimeout: opTimeout,
	}, nil
}

func (r *CacheRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

// unavailable оборачивает ошибку транспорта в ErrCacheUnavailable
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", apperrors.ErrCacheUnavailable, op, err)
}

// Set сохраняет значение в кеше
func (r *CacheRepo) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.Set(ctx, key, value, expiration).Err(); err != nil {
		return unavailable("set "+key, err)
	}
	return nil
}

// Get получает значение из кеша
func (r *CacheRepo) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperrors.ErrNotFound
		}
		return "", unavailable("get "+key, err)
	}
	return val, nil
}

// Delete удаляет ключи; отсутствие ключа не ошибка
func (r *CacheRepo) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

// SetJSON сохраняет структуру JSON в кеше
func (r *CacheRepo) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return r.Set(ctx, key, data, expiration)
}

// GetJSON получает структуру JSON из кеша
func (r *CacheRepo) GetJSON(ctx context.Context, key string, dest interface{}) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return apperrors.ErrNotFound
		}
		return unavailable("get "+key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// Exists проверяет существование ключа
func (r *CacheRepo) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	result, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable("exists "+key, err)
	}
	return result > 0, nil
}

// TTL возвращает оставшееся время жизни ключа или ErrNotFound, если ключа нет
func (r *CacheRepo) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable("pttl "+key, err)
	}
	// go-redis возвращает -2 (ключа нет) и -1 (без срока жизни) без умножения на точность
	if ttl == -2 {
		return 0, apperrors.ErrNotFound
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// IncrementWindow атомарно увеличивает счетчик и открывает окно при первом обращении
func (r *CacheRepo) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	count, err := incrementWindowScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, unavailable("incr "+key, err)
	}
	return count, nil
}

// Ping проверяет доступность Redis (используется /healthz)
func (r *CacheRepo) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}
