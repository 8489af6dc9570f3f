package service

import (
	"errors"
	"fmt"

	apperrors "github.com/gigmarket/gigauth/internal/pkg/errors"
)

// Auth flow specific errors used by handlers for stable error_type mapping.
var (
	ErrInvalidCredentials  = fmt.Errorf("%w: invalid_credentials", apperrors.ErrUnauthorized)
	ErrRefreshTokenInvalid = fmt.Errorf("%w: refresh_token_invalid", apperrors.ErrUnauthorized)
	ErrEmailNotVerified    = errors.New("email_not_verified")
)

// WarningVerificationNotSent выставляется, если пользователь создан, но код подтверждения не выдан
const WarningVerificationNotSent = "verification_not_sent"
