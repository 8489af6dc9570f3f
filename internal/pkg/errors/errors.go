package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized используется для ошибок авторизации (неверный токен, нет прав).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden используется, когда у пользователя недостаточно прав для действия.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrExpiredToken используется, когда токен (например, refresh) истек.
	ErrExpiredToken = errors.New("token is expired")

	// ErrConflict используется для конфликтов состояния (дубликат email, проигранная гонка CAS).
	ErrConflict = errors.New("resource state conflict")

	// ErrCacheUnavailable: Redis недоступен или не ответил за отведенный таймаут.
	// Временная ошибка инфраструктуры, запрос можно повторить.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrPersistenceUnavailable: PostgreSQL недоступен. Временная ошибка инфраструктуры.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// ErrRateLimited: превышен лимит попыток в окне.
	ErrRateLimited = errors.New("rate limited")
)
