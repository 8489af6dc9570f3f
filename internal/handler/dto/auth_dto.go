package dto

import (
	"time"

	"github.com/gigmarket/gigauth/internal/domain/entity"
)

// RegisterRequest: регистрация заказчика или фрилансера
type RegisterRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
	PhoneNumber string `json:"phone_number" binding:"omitempty,max=32"`
	Country     string `json:"country" binding:"omitempty,len=2"`
	Role        string `json:"role" binding:"omitempty,oneof=client freelancer"`
}

// LoginRequest: вход по паролю
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// CodeRequest: подтверждение действия одноразовым кодом
type CodeRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required,numeric,min=4,max=10"`
}

// RefreshRequest: обмен refresh-токена на новую пару
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ForgotPasswordRequest: запрос кода сброса пароля
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest: установка нового пароля по коду
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Code        string `json:"code" binding:"required,numeric,min=4,max=10"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

// UserResponse: публичное представление пользователя
type UserResponse struct {
	ID               uint       `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	PhoneNumber      string     `json:"phone_number,omitempty"`
	Country          string     `json:"country,omitempty"`
	Role             string     `json:"role"`
	IsVerified       bool       `json:"is_verified"`
	EmailVerifiedAt  *time.Time `json:"email_verified_at,omitempty"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
}

// NewUserResponse строит ответ без пароля и служебных полей
func NewUserResponse(u *entity.User) *UserResponse {
	if u == nil {
		return nil
	}
	return &UserResponse{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		PhoneNumber:      u.PhoneNumber,
		Country:          u.Country,
		Role:             u.Role,
		IsVerified:       u.IsVerified,
		EmailVerifiedAt:  u.EmailVerifiedAt,
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}

// TokenResponse: пара токенов после успешного входа
type TokenResponse struct {
	User         *UserResponse `json:"user"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int           `json:"expires_in"`
}

// LoginResponse: либо токены, либо требование второго фактора
type LoginResponse struct {
	*TokenResponse
	MFARequired bool   `json:"mfa_required,omitempty"`
	Warning     string `json:"warning,omitempty"`
}
