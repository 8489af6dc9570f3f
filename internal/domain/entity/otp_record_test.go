package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOTPRecord_IsExpired(t *testing.T) {
	expires := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rec := &OTPRecord{ExpiresAt: expires}

	assert.False(t, rec.IsExpired(expires.Add(-time.Second)))
	assert.False(t, rec.IsExpired(expires), "момент истечения еще допустим")
	assert.True(t, rec.IsExpired(expires.Add(time.Nanosecond)))
}

func TestOTPRecord_AttemptsLeft(t *testing.T) {
	assert.Equal(t, 3, (&OTPRecord{MaxAttempts: 5, AttemptsUsed: 2}).AttemptsLeft())
	assert.Equal(t, 0, (&OTPRecord{MaxAttempts: 5, AttemptsUsed: 5}).AttemptsLeft())
	assert.Equal(t, 0, (&OTPRecord{MaxAttempts: 3, AttemptsUsed: 4}).AttemptsLeft())
}

func TestOTPRecord_IsConsumed(t *testing.T) {
	for state, consumed := range map[OTPState]bool{
		OTPStateIssued:   false,
		OTPStateVerified: true,
		OTPStateExpired:  true,
		OTPStateLocked:   true,
	} {
		assert.Equal(t, consumed, (&OTPRecord{State: state}).IsConsumed(), string(state))
	}
	assert.Equal(t, "otp_records", OTPRecord{}.TableName())
}
