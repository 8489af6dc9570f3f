package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewSessionEntry(t *testing.T) {
	cachedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	user := &User{ID: 3, Name: "Bo", Email: "bo@x.com", PhoneNumber: "+100", Country: "US", Role: RoleClient, IsVerified: true, Password: "secret"}

	entry := NewSessionEntry(user, cachedAt, 10*time.Minute)

	assert.Equal(t, uint(3), entry.UserID)
	assert.Equal(t, "bo@x.com", entry.Email)
	assert.Equal(t, "US", entry.Country)
	assert.True(t, entry.IsVerified)
	assert.Equal(t, 600, entry.TTLSeconds)
	assert.Equal(t, cachedAt.Add(10*time.Minute), entry.ExpiresAt())
}
