package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/gigmarket/gigauth/internal/domain/entity"
	"github.com/gigmarket/gigauth/internal/service/verification"
)

// ============================================================================
// Моки для тестирования сервисов
// ============================================================================

// MockUserRepository реализует repository.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *entity.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil && user.ID == 0 {
		user.ID = 1
	}
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uint) (*entity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.User), args.Error(1)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, userID uint, newPassword string) error {
	args := m.Called(ctx, userID, newPassword)
	return args.Error(0)
}

func (m *MockUserRepository) MarkVerified(ctx context.Context, userID uint) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockOTPEngine реализует OTPEngine
type MockOTPEngine struct {
	mock.Mock
}

func (m *MockOTPEngine) Issue(ctx context.Context, subject string, purpose verification.Purpose) (*verification.IssueResult, error) {
	args := m.Called(ctx, subject, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*verification.IssueResult), args.Error(1)
}

func (m *MockOTPEngine) Verify(ctx context.Context, subject string, purpose verification.Purpose, code string) (*verification.VerifyResult, error) {
	args := m.Called(ctx, subject, purpose, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*verification.VerifyResult), args.Error(1)
}

func (m *MockOTPEngine) Status(ctx context.Context, subject string, purpose verification.Purpose) (*verification.Status, error) {
	args := m.Called(ctx, subject, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*verification.Status), args.Error(1)
}

// MockSessionService реализует SessionService
type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Establish(ctx context.Context, user *entity.User) *entity.SessionEntry {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*entity.SessionEntry)
}

func (m *MockSessionService) Resolve(ctx context.Context, userID uint) (*entity.SessionEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.SessionEntry), args.Error(1)
}

func (m *MockSessionService) Forget(ctx context.Context, userID uint) {
	m.Called(ctx, userID)
}

func (m *MockSessionService) Invalidate(ctx context.Context, userID uint) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockSessionService) IssueRefresh(ctx context.Context, userID uint) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *MockSessionService) RotateRefresh(ctx context.Context, token string) (*entity.User, string, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*entity.User), args.String(1), args.Error(2)
}

// MockTokenIssuer реализует TokenIssuer
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) GenerateToken(user *entity.User) (string, time.Time, error) {
	args := m.Called(user)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

// MockAttemptLimiter реализует verification.AttemptLimiter
type MockAttemptLimiter struct {
	mock.Mock
}

func (m *MockAttemptLimiter) Increment(ctx context.Context, scopeKey string, window time.Duration) (int64, error) {
	args := m.Called(ctx, scopeKey, window)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAttemptLimiter) IsBlocked(ctx context.Context, scopeKey string, threshold int64) (bool, error) {
	args := m.Called(ctx, scopeKey, threshold)
	return args.Bool(0), args.Error(1)
}

func (m *MockAttemptLimiter) Reset(ctx context.Context, scopeKey string) error {
	args := m.Called(ctx, scopeKey)
	return args.Error(0)
}
