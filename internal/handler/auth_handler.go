package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gigmarket/gigauth/internal/domain/entity"
	"github.com/gigmarket/gigauth/internal/handler/dto"
	"github.com/gigmarket/gigauth/internal/service"
)

// AuthUseCase: операции AuthService, которые нужны HTTP-слою
type AuthUseCase interface {
	Register(ctx context.Context, input service.RegisterInput) (*service.RegisterResult, error)
	Login(ctx context.Context, email, password, clientIP string) (*service.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, email, code string) (*service.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*service.TokenPair, error)
	Logout(ctx context.Context, userID uint) error
	Me(ctx context.Context, userID uint) (*entity.SessionEntry, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	ConfirmEmail(ctx context.Context, email, code string) (*entity.User, error)
	ConfirmAccount(ctx context.Context, email, code string) (*entity.User, error)
}

// AuthHandler обрабатывает запросы, связанные с аутентификацией
type AuthHandler struct {
	authService AuthUseCase
}

// NewAuthHandler создает новый обработчик аутентификации
func NewAuthHandler(authService AuthUseCase) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register обрабатывает запрос на регистрацию
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.authService.Register(requestContext(c), service.RegisterInput{
		Name:        req.Name,
		Email:       req.Email,
		Password:    req.Password,
		PhoneNumber: req.PhoneNumber,
		Country:     req.Country,
		Role:        req.Role,
	})
	if err != nil {
		respondError(c, "AuthHandler", err)
		return
	}

	log.Printf("[AuthHandler] Пользователь ID=%d (%s) зарегистрирован", result.User.ID, result.User.Email)
	body := gin.H{"user": dto.NewUserResponse(result.User)}
	if result.Warning != "" {
		body["warning"] = result.Warning
	}
	c.JSON(http.StatusCreated, body)
}

// Login обрабатывает вход по паролю. Для пользователей с 2FA токены не выдаются,
// вместо этого отправляется код TWO_FACTOR_AUTH.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.authService.Login(requestContext(c), req.Email, req.Password, c.ClientIP())
	if err != nil {
		respondError(c, "AuthHandler", err)
		return
	}

	if result.MFARequired {
		c.JSON(http.StatusAccepted, dto.LoginResponse{MFARequired: true, Warning: result.Warning})
		return
	}
	c.JSON(http.StatusOK, dto.LoginResponse{TokenResponse: newTokenResponse(result.Tokens)})
}

// VerifyTwoFactor завершает вход кодом второго фактора
func (h *AuthHandler) VerifyTwoFactor(c *gin.Context) {
	var req dto.CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	tokens, err := h.authService.VerifyTwoFactor(requestContext(c), req.Email, req.Code)
	if err != nil {
		respondError(c, "AuthHandler", err)
		return
	}
	c.JSON(http.StatusOK, newTokenResponse(tokens))
}

// RefreshToken меняет refresh-токен на новую пару токенов
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	tokens, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, "AuthHandler", err)
		return
	}
	c.JSON(http.StatusOK, newTokenResponse(tokens))
}

// Logout завершает сессию текущего пользователя
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.authService.Logout(c.Request.Context(), userID); err != nil {
		respondError(c, "AuthHandler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Выход выполнен"})
}

// GetMe возвращает снимок сессии текущего пользователя
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	entry, err := h.authService.Me(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "AuthHandler", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ForgotPassword всегда отвечает 202, чтобы нельзя было перебирать email
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req dto.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.authService.RequestPasswordReset(requestContext(c), req.Email); err != nil {
		respondError(c, "AuthHandler", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Если аккаунт существует, код отправлен"})
}

// ResetPassword устанавливает новый пароль по коду PASSWORD_RESET
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.authService.ResetPassword(requestContext(c), req.Email, req.Code, req.NewPassword); err != nil {
		respondError(c, "AuthHandler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Пароль изменен"})
}

// ConfirmEmail подтверждает email кодом EMAIL_VERIFICATION
func (h *AuthHandler) ConfirmEmail(c *gin.Context) {
	h.confirm(c, h.authService.ConfirmEmail)
}

// ConfirmAccount подтверждает аккаунт кодом ACCOUNT_VERIFICATION
func (h *AuthHandler) ConfirmAccount(c *gin.Context) {
	h.confirm(c, h.authService.ConfirmAccount)
}

func (h *AuthHandler) confirm(c *gin.Context, fn func(ctx context.Context, email, code string) (*entity.User, error)) {
	var req dto.CodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := fn(requestContext(c), req.Email, req.Code)
	if err != nil {
		respondError(c, "AuthHandler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": dto.NewUserResponse(user)})
}

func newTokenResponse(pair *service.TokenPair) *dto.TokenResponse {
	expiresIn := int(time.Until(pair.ExpiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return &dto.TokenResponse{
		User:         dto.NewUserResponse(pair.User),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    expiresIn,
	}
}

// currentUserID читает ID, выставленный AuthMiddleware; без него отвечает 401
func currentUserID(c *gin.Context) (uint, bool) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Пользователь не аутентифицирован", "error_type": "token_missing"})
		return 0, false
	}
	return userID, true
}
