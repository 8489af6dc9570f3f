package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/gigmarket/gigauth/internal/domain/entity"
	"github.com/gigmarket/gigauth/internal/domain/repository"
	apperrors "github.com/gigmarket/gigauth/internal/pkg/errors"
	"github.com/gigmarket/gigauth/internal/service/verification"
	"github.com/gigmarket/gigauth/pkg/auth"
)

// OTPEngine: операции движка одноразовых кодов, которые нужны AuthService и хендлерам
type OTPEngine interface {
	Issue(ctx context.Context, subject string, purpose verification.Purpose) (*verification.IssueResult, error)
	Verify(ctx context.Context, subject string, purpose verification.Purpose, code string) (*verification.VerifyResult, error)
	Status(ctx context.Context, subject string, purpose verification.Purpose) (*verification.Status, error)
}

// SessionService: операции SessionManager, которые нужны AuthService
type SessionService interface {
	Establish(ctx context.Context, user *entity.User) *entity.SessionEntry
	Resolve(ctx context.Context, userID uint) (*entity.SessionEntry, error)
	Forget(ctx context.Context, userID uint)
	Invalidate(ctx context.Context, userID uint) error
	IssueRefresh(ctx context.Context, userID uint) (string, error)
	RotateRefresh(ctx context.Context, token string) (*entity.User, string, error)
}

// TokenIssuer выпускает access-токены
type TokenIssuer interface {
	GenerateToken(user *entity.User) (string, time.Time, error)
}

var _ TokenIssuer = (*auth.JWTService)(nil)

const minPasswordLength = 8

// AuthConfig: лимиты входа по паролю
type AuthConfig struct {
	LoginMaxFailures int64
	LoginWindow      time.Duration
}

// AuthService реализует регистрацию, вход (в том числе с 2FA), ротацию токенов,
// сброс пароля и подтверждение email/аккаунта поверх движка кодов и менеджера сессий
type AuthService struct {
	userRepo repository.UserRepository
	engine   OTPEngine
	sessions SessionService
	tokens   TokenIssuer
	limiter  verification.AttemptLimiter
	cfg      AuthConfig
}

// RegisterInput содержит данные для регистрации
type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	PhoneNumber string
	Country     string
	Role        string
}

// RegisterResult: созданный пользователь и предупреждение, если код подтверждения не отправлен
type RegisterResult struct {
	User    *entity.User
	Warning string
}

// TokenPair содержит данные для ответа на успешную авторизацию
type TokenPair struct {
	User         *entity.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// LoginResult: либо токены, либо требование ввести код 2FA
type LoginResult struct {
	Tokens      *TokenPair
	MFARequired bool
	Warning     string
}

// NewAuthService создает новый сервис аутентификации и возвращает ошибку при проблемах
func NewAuthService(
	userRepo repository.UserRepository,
	engine OTPEngine,
	sessions SessionService,
	tokens TokenIssuer,
	limiter verification.AttemptLimiter,
	cfg AuthConfig,
) (*AuthService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("UserRepository is required for AuthService")
	}
	if engine == nil {
		return nil, fmt.Errorf("OTPEngine is required for AuthService")
	}
	if sessions == nil {
		return nil, fmt.Errorf("SessionService is required for AuthService")
	}
	if tokens == nil {
		return nil, fmt.Errorf("TokenIssuer is required for AuthService")
	}
	if cfg.LoginMaxFailures <= 0 {
		cfg.LoginMaxFailures = 10
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = 15 * time.Minute
	}
	return &AuthService{
		userRepo: userRepo,
		engine:   engine,
		sessions: sessions,
		tokens:   tokens,
		limiter:  limiter,
		cfg:      cfg,
	}, nil
}

// Register создает пользователя и выдает код ACCOUNT_VERIFICATION
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	input.Email = normalizeEmail(input.Email)
	input.Name = strings.TrimSpace(input.Name)
	input.Country = strings.ToUpper(strings.TrimSpace(input.Country))
	if input.Role == "" {
		input.Role = entity.RoleClient
	}

	if input.Name == "" {
		return nil, fmt.Errorf("%w: name is required", apperrors.ErrValidation)
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", apperrors.ErrValidation)
	}
	if len(input.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", apperrors.ErrValidation, minPasswordLength)
	}
	if !entity.IsValidRole(input.Role) {
		return nil, fmt.Errorf("%w: role must be client or freelancer", apperrors.ErrValidation)
	}
	if input.Country != "" && len(input.Country) != 2 {
		return nil, fmt.Errorf("%w: country must be an ISO 3166-1 alpha-2 code", apperrors.ErrValidation)
	}

	user := &entity.User{
		Name:        input.Name,
		Email:       input.Email,
		Password:    input.Password,
		PhoneNumber: strings.TrimSpace(input.PhoneNumber),
		Country:     input.Country,
		Role:        input.Role,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, fmt.Errorf("%w: user with this email already exists", apperrors.ErrConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	log.Printf("[AuthService] Зарегистрирован пользователь ID=%d (%s), роль %s", user.ID, user.Email, user.Role)

	result := &RegisterResult{User: user}
	issued, err := s.engine.Issue(ctx, user.Email, verification.PurposeAccountVerification)
	if err != nil {
		// Код можно запросить повторно через /otp/request
		log.Printf("[AuthService] WARN: не удалось выдать код подтверждения для ID=%d: %v", user.ID, err)
		result.Warning = WarningVerificationNotSent
	} else if issued.Warning != "" {
		result.Warning = issued.Warning
	}
	return result, nil
}

// Login проверяет пароль с учетом лимита неудачных попыток по email и IP.
// Для пользователей с 2FA выдает код TWO_FACTOR_AUTH вместо токенов.
func (s *AuthService) Login(ctx context.Context, email, password, clientIP string) (*LoginResult, error) {
	email = normalizeEmail(email)
	scopes := loginScopes(email, clientIP)

	if err := s.checkLoginBlocked(ctx, scopes); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if user == nil || !user.CheckPassword(password) {
		s.recordLoginFailure(ctx, scopes)
		log.Printf("[AuthService] INFO: неудачная попытка входа для %s с IP %s", email, clientIP)
		return nil, ErrInvalidCredentials
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, loginEmailScope(email)); err != nil {
			log.Printf("[AuthService] WARN: не удалось сбросить счетчик входа для %s: %v", email, err)
		}
	}

	if user.TwoFactorEnabled {
		issued, err := s.engine.Issue(ctx, user.Email, verification.PurposeTwoFactorAuth)
		if err != nil {
			return nil, err
		}
		log.Printf("[AuthService] Пользователь ID=%d: требуется код 2FA", user.ID)
		return &LoginResult{MFARequired: true, Warning: issued.Warning}, nil
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	log.Printf("[AuthService] Пользователь ID=%d (%s) успешно вошел в систему", user.ID, user.Email)
	return &LoginResult{Tokens: tokens}, nil
}

// VerifyTwoFactor завершает вход с 2FA
func (s *AuthService) VerifyTwoFactor(ctx context.Context, email, code string) (*TokenPair, error) {
	email = normalizeEmail(email)
	if _, err := s.engine.Verify(ctx, email, verification.PurposeTwoFactorAuth, code); err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, user)
}

// Refresh меняет refresh-токен на новую пару токенов
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	user, newRefresh, err := s.sessions.RotateRefresh(ctx, strings.TrimSpace(refreshToken))
	if err != nil {
		return nil, err
	}
	access, expiresAt, err := s.tokens.GenerateToken(user)
	if err != nil {
		log.Printf("[AuthService] ERROR: ошибка генерации токена для ID=%d: %v", user.ID, err)
		return nil, err
	}
	return &TokenPair{User: user, AccessToken: access, RefreshToken: newRefresh, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}

// Logout завершает сессию пользователя
func (s *AuthService) Logout(ctx context.Context, userID uint) error {
	return s.sessions.Invalidate(ctx, userID)
}

// Me возвращает снимок сессии текущего пользователя
func (s *AuthService) Me(ctx context.Context, userID uint) (*entity.SessionEntry, error) {
	return s.sessions.Resolve(ctx, userID)
}

// RequestPasswordReset выдает код PASSWORD_RESET. Ответ не зависит от того,
// существует ли аккаунт; ошибки инфраструктуры возвращаются.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[AuthService] INFO: запрос сброса пароля для неизвестного email %s", email)
			return nil
		}
		return err
	}

	if _, err := s.engine.Issue(ctx, user.Email, verification.PurposePasswordReset); err != nil {
		switch verification.KindOf(err) {
		case verification.KindResendCooldown, verification.KindRateLimited:
			log.Printf("[AuthService] INFO: сброс пароля для ID=%d подавлен: %v", user.ID, err)
			return nil
		}
		return err
	}
	return nil
}

// ResetPassword проверяет код PASSWORD_RESET, меняет пароль и завершает все сессии
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", apperrors.ErrValidation, minPasswordLength)
	}
	email = normalizeEmail(email)
	if _, err := s.engine.Verify(ctx, email, verification.PurposePasswordReset, code); err != nil {
		return err
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, newPassword); err != nil {
		return err
	}
	if err := s.sessions.Invalidate(ctx, user.ID); err != nil {
		log.Printf("[AuthService] WARN: пароль ID=%d изменен, но сессии не сброшены: %v", user.ID, err)
	}
	log.Printf("[AuthService] Пароль пользователя ID=%d сброшен", user.ID)
	return nil
}

// ConfirmEmail проверяет код EMAIL_VERIFICATION и помечает email подтвержденным
func (s *AuthService) ConfirmEmail(ctx context.Context, email, code string) (*entity.User, error) {
	return s.confirm(ctx, email, code, verification.PurposeEmailVerification)
}

// ConfirmAccount проверяет код ACCOUNT_VERIFICATION, выданный при регистрации
func (s *AuthService) ConfirmAccount(ctx context.Context, email, code string) (*entity.User, error) {
	return s.confirm(ctx, email, code, verification.PurposeAccountVerification)
}

func (s *AuthService) confirm(ctx context.Context, email, code string, purpose verification.Purpose) (*entity.User, error) {
	email = normalizeEmail(email)
	if _, err := s.engine.Verify(ctx, email, purpose, code); err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.MarkVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.IsVerified = true
	// Снимок пересоберется из БД при следующем Resolve
	s.sessions.Forget(ctx, user.ID)
	log.Printf("[AuthService] Пользователь ID=%d подтвержден (%s)", user.ID, purpose)
	return user, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *entity.User) (*TokenPair, error) {
	access, expiresAt, err := s.tokens.GenerateToken(user)
	if err != nil {
		log.Printf("[AuthService] ERROR: ошибка генерации токена для ID=%d: %v", user.ID, err)
		return nil, err
	}
	refresh, err := s.sessions.IssueRefresh(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.sessions.Establish(ctx, user)
	return &TokenPair{User: user, AccessToken: access, RefreshToken: refresh, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}

func loginEmailScope(email string) string {
	return "login:" + email
}

// loginIPScope не пересекается с otp:ip:<ip>, которым движок считает неверные коды
func loginIPScope(clientIP string) string {
	return "login:ip:" + clientIP
}

func loginScopes(email, clientIP string) []string {
	scopes := []string{loginEmailScope(email)}
	if clientIP != "" {
		scopes = append(scopes, loginIPScope(clientIP))
	}
	return scopes
}

// checkLoginBlocked не пропускает вход, если счетчик нельзя прочитать
func (s *AuthService) checkLoginBlocked(ctx context.Context, scopes []string) error {
	if s.limiter == nil {
		return nil
	}
	for _, scope := range scopes {
		blocked, err := s.limiter.IsBlocked(ctx, scope, s.cfg.LoginMaxFailures)
		if err != nil {
			log.Printf("[AuthService] WARN: счетчик %s недоступен: %v", scope, err)
			if errors.Is(err, apperrors.ErrCacheUnavailable) {
				return err
			}
			return fmt.Errorf("%w: %v", apperrors.ErrCacheUnavailable, err)
		}
		if blocked {
			log.Printf("[AuthService] INFO: вход заблокирован для %s", scope)
			return fmt.Errorf("%w: too many failed login attempts", apperrors.ErrRateLimited)
		}
	}
	return nil
}

func (s *AuthService) recordLoginFailure(ctx context.Context, scopes []string) {
	if s.limiter == nil {
		return
	}
	for _, scope := range scopes {
		if _, err := s.limiter.Increment(ctx, scope, s.cfg.LoginWindow); err != nil {
			log.Printf("[AuthService] WARN: не удалось учесть неудачный вход для %s: %v", scope, err)
		}
	}
}

// normalizeEmail приводит email к стандартному виду: trim пробелов + lowercase
func normalizeEmail(email string) string {
	return verification.NormalizeSubject(email)
}
