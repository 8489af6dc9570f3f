package postgres

import (
	"context"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/gigmarket/gigauth/internal/domain/entity"
	apperrors "github.com/gigmarket/gigauth/internal/pkg/errors"
)

// UserRepo реализует repository.UserRepository
type UserRepo struct {
	db *gorm.DB
}

// NewUserRepo создает новый репозиторий пользователей
func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create создает нового пользователя. Повтор email возвращает ErrConflict.
func (r *UserRepo) Create(ctx context.Context, user *entity.User) error {
	return translateError(r.db.WithContext(ctx).Create(user).Error, "create user")
}

// GetByID возвращает пользователя по ID
func (r *UserRepo) GetByID(ctx context.Context, id uint) (*entity.User, error) {
	var user entity.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translateError(err, "get user by id")
	}
	return &user, nil
}

// GetByEmail возвращает пользователя по email
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	var user entity.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translateError(err, "get user by email")
	}
	return &user, nil
}

// UpdatePassword безопасно обновляет пароль пользователя.
// Хеширует пароль здесь и пишет его через UpdateColumn, чтобы обойти хук BeforeSave.
func (r *UserRepo) UpdatePassword(ctx context.Context, userID uint, newPassword string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[UserRepo.UpdatePassword] ERROR: ошибка при хешировании пароля: %v", err)
		return err
	}

	result := r.db.WithContext(ctx).Model(&entity.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"password":   string(hashedPassword),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		log.Printf("[UserRepo.UpdatePassword] WARN: ошибка при обновлении пароля ID=%d: %v", userID, result.Error)
		return translateError(result.Error, "update password")
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	log.Printf("[UserRepo.UpdatePassword] Пароль обновлён для пользователя ID=%d", userID)
	return nil
}

// MarkVerified проставляет is_verified и email_verified_at (повторный вызов не меняет дату)
func (r *UserRepo) MarkVerified(ctx context.Context, userID uint) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&entity.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"is_verified":       true,
			"email_verified_at": gorm.Expr("COALESCE(email_verified_at, ?)", now),
			"updated_at":        now,
		})
	if result.Error != nil {
		return translateError(result.Error, "mark user verified")
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
