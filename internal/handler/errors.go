package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/gigmarket/gigauth/internal/pkg/errors"
	"github.com/gigmarket/gigauth/internal/service"
	"github.com/gigmarket/gigauth/internal/service/verification"
)

// retryAfterSeconds: подсказка клиенту при временной недоступности Redis/PostgreSQL
const retryAfterSeconds = 5

type errorResponse struct {
	status    int
	errorType string
	message   string
}

var verificationResponses = map[verification.Kind]errorResponse{
	verification.KindUnknownPurpose:         {http.StatusBadRequest, "unknown_purpose", "Неизвестное назначение кода"},
	verification.KindInvalidLength:          {http.StatusInternalServerError, "invalid_length", "Некорректная политика кодов"},
	verification.KindNotFound:               {http.StatusNotFound, "otp_not_found", "Код не запрашивался"},
	verification.KindExpired:                {http.StatusBadRequest, "otp_expired", "Срок действия кода истек"},
	verification.KindAttemptsExceeded:       {http.StatusTooManyRequests, "otp_attempts_exceeded", "Исчерпаны попытки ввода кода"},
	verification.KindInvalidCode:            {http.StatusBadRequest, "invalid_code", "Неверный код"},
	verification.KindAlreadyConsumed:        {http.StatusConflict, "otp_already_consumed", "Код уже использован"},
	verification.KindCacheUnavailable:       {http.StatusServiceUnavailable, "cache_unavailable", "Сервис временно недоступен"},
	verification.KindPersistenceUnavailable: {http.StatusServiceUnavailable, "persistence_unavailable", "Сервис временно недоступен"},
	verification.KindRateLimited:            {http.StatusTooManyRequests, "rate_limited", "Слишком много попыток"},
	verification.KindResendCooldown:         {http.StatusTooManyRequests, "resend_cooldown", "Повторный код можно запросить позже"},
}

// classifyError переводит ошибку сервиса в HTTP-статус и стабильный error_type
func classifyError(err error) errorResponse {
	if kind := verification.KindOf(err); kind != "" {
		if resp, ok := verificationResponses[kind]; ok {
			return resp
		}
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return errorResponse{http.StatusUnauthorized, "invalid_credentials", "Неверные учетные данные"}
	case errors.Is(err, service.ErrRefreshTokenInvalid):
		return errorResponse{http.StatusUnauthorized, "token_invalid", "Недействительный токен"}
	case errors.Is(err, apperrors.ErrCacheUnavailable):
		return errorResponse{http.StatusServiceUnavailable, "cache_unavailable", "Сервис временно недоступен"}
	case errors.Is(err, apperrors.ErrPersistenceUnavailable):
		return errorResponse{http.StatusServiceUnavailable, "persistence_unavailable", "Сервис временно недоступен"}
	case errors.Is(err, apperrors.ErrRateLimited):
		return errorResponse{http.StatusTooManyRequests, "rate_limited", "Слишком много попыток"}
	case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, apperrors.ErrExpiredToken):
		return errorResponse{http.StatusUnauthorized, "token_invalid", "Ошибка аутентификации"}
	case errors.Is(err, apperrors.ErrForbidden):
		return errorResponse{http.StatusForbidden, "forbidden", "Доступ запрещен"}
	case errors.Is(err, apperrors.ErrNotFound):
		return errorResponse{http.StatusNotFound, "not_found", "Запрашиваемый ресурс не найден"}
	case errors.Is(err, apperrors.ErrConflict):
		return errorResponse{http.StatusConflict, "conflict", "Конфликт данных"}
	case errors.Is(err, apperrors.ErrValidation):
		return errorResponse{http.StatusBadRequest, "validation_error", "Ошибка валидации данных"}
	}
	return errorResponse{http.StatusInternalServerError, "internal_server_error", "Внутренняя ошибка сервера"}
}

// respondError пишет ответ {"error", "error_type"}; для 503 добавляется Retry-After
func respondError(c *gin.Context, component string, err error) {
	resp := classifyError(err)
	switch {
	case resp.status >= http.StatusInternalServerError:
		log.Printf("[%s] ERROR: %s %s: %v", component, c.Request.Method, c.Request.URL.Path, err)
	default:
		log.Printf("[%s] DEBUG: %s %s -> %s: %v", component, c.Request.Method, c.Request.URL.Path, resp.errorType, err)
	}

	if resp.status == http.StatusServiceUnavailable {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	c.JSON(resp.status, gin.H{"error": resp.message, "error_type": resp.errorType})
}

// respondBindError: ответ на невалидное тело запроса
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
}

// requestContext добавляет IP клиента, чтобы движок учитывал ошибки и по IP
func requestContext(c *gin.Context) context.Context {
	return verification.WithClientIP(c.Request.Context(), c.ClientIP())
}
