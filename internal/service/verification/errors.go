package verification

import (
	"errors"
	"fmt"

	apperrors "github.com/gigmarket/gigauth/internal/pkg/errors"
)

// Kind: стабильный код отказа. Хендлеры отдают его как error_type без изменений.
type Kind string

const (
	KindUnknownPurpose         Kind = "unknown_purpose"
	KindInvalidLength          Kind = "invalid_length"
	KindNotFound               Kind = "otp_not_found"
	KindExpired                Kind = "otp_expired"
	KindAttemptsExceeded       Kind = "otp_attempts_exceeded"
	KindInvalidCode            Kind = "invalid_code"
	KindAlreadyConsumed        Kind = "otp_already_consumed"
	KindCacheUnavailable       Kind = "cache_unavailable"
	KindPersistenceUnavailable Kind = "persistence_unavailable"
	KindRateLimited            Kind = "rate_limited"
	KindResendCooldown         Kind = "resend_cooldown"
)

// Error: типизированная ошибка движка
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает по Kind, поэтому sentinel-ошибки ниже работают с errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable: временный сбой инфраструктуры, запрос можно повторить
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindCacheUnavailable, KindPersistenceUnavailable:
		return true
	}
	return false
}

// Sentinel-ошибки для errors.Is
var (
	ErrUnknownPurpose         = &Error{Kind: KindUnknownPurpose}
	ErrInvalidLength          = &Error{Kind: KindInvalidLength}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrExpired                = &Error{Kind: KindExpired}
	ErrAttemptsExceeded       = &Error{Kind: KindAttemptsExceeded}
	ErrInvalidCode            = &Error{Kind: KindInvalidCode}
	ErrAlreadyConsumed        = &Error{Kind: KindAlreadyConsumed}
	ErrCacheUnavailable       = &Error{Kind: KindCacheUnavailable}
	ErrPersistenceUnavailable = &Error{Kind: KindPersistenceUnavailable}
	ErrRateLimited            = &Error{Kind: KindRateLimited}
	ErrResendCooldown         = &Error{Kind: KindResendCooldown}
)

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func cacheUnavailable(message string, err error) *Error {
	if err != nil && !errors.Is(err, apperrors.ErrCacheUnavailable) {
		err = fmt.Errorf("%w: %v", apperrors.ErrCacheUnavailable, err)
	}
	return newError(KindCacheUnavailable, message, err)
}

func persistenceUnavailable(message string, err error) *Error {
	if err != nil && !errors.Is(err, apperrors.ErrPersistenceUnavailable) {
		err = fmt.Errorf("%w: %v", apperrors.ErrPersistenceUnavailable, err)
	}
	return newError(KindPersistenceUnavailable, message, err)
}

// KindOf возвращает Kind ошибки движка или "" для прочих ошибок
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
