package repository

import (
	"context"

	"github.com/gigmarket/gigauth/internal/domain/entity"
)

// UserRepository определяет методы для работы с пользователями (источник истины для снимков сессий)
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id uint) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	UpdatePassword(ctx context.Context, userID uint, newPassword string) error
	// MarkVerified проставляет is_verified и email_verified_at
	MarkVerified(ctx context.Context, userID uint) error
}
