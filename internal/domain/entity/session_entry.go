package entity

import "time"

// SessionEntry: денормализованный снимок аутентифицированного пользователя,
// который хранится в Redis под ключом user:session:<userId>.
// Пишет его только SessionManager; middleware авторизации только читает.
type SessionEntry struct {
	UserID      uint      `json:"user_id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	Country     string    `json:"country"`
	Email       string    `json:"email"`
	IsVerified  bool      `json:"is_verified"`
	Role        string    `json:"role"`
	CachedAt    time.Time `json:"cached_at"`
	TTLSeconds  int       `json:"ttl_seconds"`
}

// NewSessionEntry строит снимок из пользователя
func NewSessionEntry(user *User, cachedAt time.Time, ttl time.Duration) *SessionEntry {
	return &SessionEntry{
		UserID:      user.ID,
		Name:        user.Name,
		PhoneNumber: user.PhoneNumber,
		Country:     user.Country,
		Email:       user.Email,
		IsVerified:  user.IsVerified,
		Role:        user.Role,
		CachedAt:    cachedAt,
		TTLSeconds:  int(ttl.Seconds()),
	}
}

// ExpiresAt возвращает момент, после которого снимок нельзя использовать без перепроверки
func (s *SessionEntry) ExpiresAt() time.Time {
	return s.CachedAt.Add(time.Duration(s.TTLSeconds) * time.Second)
}
