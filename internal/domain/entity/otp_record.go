package entity

import "time"

// OTPState: стадия жизненного цикла выданного кода
type OTPState string

const (
	OTPStateIssued   OTPState = "issued"
	OTPStateVerified OTPState = "verified"
	OTPStateExpired  OTPState = "expired"
	OTPStateLocked   OTPState = "locked"
)

// OTPRecord хранит хеш одноразового кода. На пару (subject, purpose)
// не больше одной строки, повторный выпуск ее перезаписывает.
type OTPRecord struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Subject      string     `gorm:"size:255;not null;uniqueIndex:idx_otp_subject_purpose" json:"subject"`
	Purpose      string     `gorm:"size:32;not null;uniqueIndex:idx_otp_subject_purpose" json:"purpose"`
	CodeHash     string     `gorm:"size:64;not null" json:"-"`
	CodeSalt     string     `gorm:"size:64;not null" json:"-"`
	IssuedAt     time.Time  `gorm:"not null" json:"issued_at"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	AttemptsUsed int        `gorm:"not null;default:0" json:"attempts_used"`
	MaxAttempts  int        `gorm:"not null" json:"max_attempts"`
	State        OTPState   `gorm:"size:16;not null;default:'issued';index" json:"state"`
	Version      int64      `gorm:"not null;default:1" json:"-"`
	ConsumedAt   *time.Time `json:"consumed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (OTPRecord) TableName() string {
	return "otp_records"
}

// IsConsumed: запись вышла из состояния issued
func (o *OTPRecord) IsConsumed() bool {
	return o.State != OTPStateIssued
}

// IsExpired: код истек, если now строго позже ExpiresAt
func (o *OTPRecord) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// AttemptsLeft не опускается ниже нуля
func (o *OTPRecord) AttemptsLeft() int {
	left := o.MaxAttempts - o.AttemptsUsed
	if left < 0 {
		return 0
	}
	return left
}
