package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gigmarket/gigauth/internal/domain/repository"
	apperrors "github.com/gigmarket/gigauth/internal/pkg/errors"
)

const attemptsKeyPrefix = "auth:attempts:"

// AttemptsKey возвращает ключ счетчика для scope (login:<email>, login:ip:<ip>, otp:<PURPOSE>:<subject>, otp:ip:<ip> ...)
func AttemptsKey(scopeKey string) string {
	return attemptsKeyPrefix + scopeKey
}

// AttemptCounter: счетчик попыток в фиксированном окне, общий для всех инстансов.
// Окно открывается первым Increment и сбрасывается по истечении TTL.
type AttemptCounter struct {
	cache repository.CacheRepository
}

// NewAttemptCounter создает счетчик попыток поверх CacheRepository
func NewAttemptCounter(cache repository.CacheRepository) *AttemptCounter {
	return &AttemptCounter{cache: cache}
}

// Increment атомарно увеличивает счетчик и возвращает текущее значение
func (c *AttemptCounter) Increment(ctx context.Context, scopeKey string, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("%w: attempt window must be positive", apperrors.ErrValidation)
	}
	return c.cache.IncrementWindow(ctx, AttemptsKey(scopeKey), window)
}

// Count возвращает текущее значение счетчика (0, если окно не открыто)
func (c *AttemptCounter) Count(ctx context.Context, scopeKey string) (int64, error) {
	var count int64
	if err := c.cache.GetJSON(ctx, AttemptsKey(scopeKey), &count); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// IsBlocked сообщает, достиг ли счетчик порога. Ошибка Redis возвращается как есть:
// вызывающий не должен считать ее разрешением.
func (c *AttemptCounter) IsBlocked(ctx context.Context, scopeKey string, threshold int64) (bool, error) {
	count, err := c.Count(ctx, scopeKey)
	if err != nil {
		return false, err
	}
	return count >= threshold, nil
}

// Reset закрывает окно досрочно (например, после успешного входа)
func (c *AttemptCounter) Reset(ctx context.Context, scopeKey string) error {
	return c.cache.Delete(ctx, AttemptsKey(scopeKey))
}

// TTL возвращает время до конца окна (для заголовка Retry-After)
func (c *AttemptCounter) TTL(ctx context.Context, scopeKey string) (time.Duration, error) {
	ttl, err := c.cache.TTL(ctx, AttemptsKey(scopeKey))
	if errors.Is(err, apperrors.ErrNotFound) {
		return 0, nil
	}
	return ttl, err
}
