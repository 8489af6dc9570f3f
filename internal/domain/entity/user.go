package entity

import (
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Роли пользователей маркетплейса
const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
	RoleAdmin      = "admin"
)

// User представляет пользователя маркетплейса (заказчика, фрилансера или администратора)
type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"size:100;not null;default:''" json:"name"`
	Email            string     `gorm:"size:100;not null;uniqueIndex" json:"email"`
	Password         string     `gorm:"size:100;not null" json:"-"`
	PhoneNumber      string     `gorm:"size:32;not null;default:''" json:"phone_number"`
	Country          string     `gorm:"size:2;not null;default:''" json:"country"` // ISO 3166-1 alpha-2
	Role             string     `gorm:"size:20;not null;default:'client'" json:"role"`
	IsVerified       bool       `gorm:"not null;default:false" json:"is_verified"`
	EmailVerifiedAt  *time.Time `gorm:"type:timestamp" json:"email_verified_at,omitempty"`
	TwoFactorEnabled bool       `gorm:"not null;default:false" json:"two_factor_enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (User) TableName() string {
	return "users"
}

// IsValidRole проверяет, что роль допустима для самостоятельной регистрации
func IsValidRole(role string) bool {
	switch role {
	case RoleClient, RoleFreelancer:
		return true
	}
	return false
}

// BeforeSave хеширует пароль перед сохранением, только если он не является bcrypt-хешем
func (u *User) BeforeSave(tx *gorm.DB) error {
	// Хешируем пароль только если он:
	// 1. Не пустой
	// 2. Не является уже bcrypt-хешем (начинается с "$2a$", "$2b$" или "$2y$")
	if len(u.Password) > 0 && !strings.HasPrefix(u.Password, "$2a$") &&
		!strings.HasPrefix(u.Password, "$2b$") && !strings.HasPrefix(u.Password, "$2y$") {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[User.BeforeSave] Ошибка при хешировании пароля для email=%s: %v", u.Email, err)
			return err
		}
		u.Password = string(hashedPassword)
	}
	return nil
}

// CheckPassword проверяет, соответствует ли переданный пароль хешу
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}
