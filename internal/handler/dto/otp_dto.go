package dto

import "time"

// OTPRequest: выпуск кода для пары (identity, purpose)
type OTPRequest struct {
	Identity string `json:"identity" binding:"required,max=255"`
	Purpose  string `json:"purpose" binding:"required"`
}

// OTPVerifyRequest: проверка кода
type OTPVerifyRequest struct {
	Identity string `json:"identity" binding:"required,max=255"`
	Purpose  string `json:"purpose" binding:"required"`
	Code     string `json:"code" binding:"required,numeric,min=4,max=10"`
}

// OTPStatusQuery: параметры GET /otp/status
type OTPStatusQuery struct {
	Identity string `form:"identity" binding:"required,max=255"`
	Purpose  string `form:"purpose" binding:"required"`
}

// OTPIssuedResponse никогда не содержит сам код
type OTPIssuedResponse struct {
	Purpose   string    `json:"purpose"`
	ExpiresAt time.Time `json:"expires_at"`
	Warning   string    `json:"warning,omitempty"`
}

// OTPVerifiedResponse: результат успешной проверки
type OTPVerifiedResponse struct {
	Valid      bool      `json:"valid"`
	Purpose    string    `json:"purpose"`
	VerifiedAt time.Time `json:"verified_at"`
}
