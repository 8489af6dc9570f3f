package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gigmarket/gigauth/internal/handler/dto"
	"github.com/gigmarket/gigauth/internal/service"
	"github.com/gigmarket/gigauth/internal/service/verification"
)

// VerificationHandler открывает движок одноразовых кодов напрямую:
// выпуск, проверка и статус для пары (identity, purpose).
type VerificationHandler struct {
	engine service.OTPEngine
}

func NewVerificationHandler(engine service.OTPEngine) *VerificationHandler {
	return &VerificationHandler{engine: engine}
}

// RequestCode выпускает код. Сам код в ответ не попадает.
func (h *VerificationHandler) RequestCode(c *gin.Context) {
	var req dto.OTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	purpose, err := verification.ParsePurpose(req.Purpose)
	if err != nil {
		respondError(c, "VerificationHandler", err)
		return
	}

	result, err := h.engine.Issue(requestContext(c), req.Identity, purpose)
	if err != nil {
		respondError(c, "VerificationHandler", err)
		return
	}
	c.JSON(http.StatusAccepted, dto.OTPIssuedResponse{
		Purpose:   purpose.String(),
		ExpiresAt: result.ExpiresAt,
		Warning:   result.Warning,
	})
}

// VerifyCode проверяет код и погашает его при успехе
func (h *VerificationHandler) VerifyCode(c *gin.Context) {
	var req dto.OTPVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	purpose, err := verification.ParsePurpose(req.Purpose)
	if err != nil {
		respondError(c, "VerificationHandler", err)
		return
	}

	result, err := h.engine.Verify(requestContext(c), req.Identity, purpose, req.Code)
	if err != nil {
		respondError(c, "VerificationHandler", err)
		return
	}
	c.JSON(http.StatusOK, dto.OTPVerifiedResponse{
		Valid:      result.Valid,
		Purpose:    purpose.String(),
		VerifiedAt: result.VerifiedAt,
	})
}

// Status сообщает, есть ли активный код и можно ли запросить новый
func (h *VerificationHandler) Status(c *gin.Context) {
	var query dto.OTPStatusQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondBindError(c, err)
		return
	}
	purpose, err := verification.ParsePurpose(query.Purpose)
	if err != nil {
		respondError(c, "VerificationHandler", err)
		return
	}

	status, err := h.engine.Status(c.Request.Context(), query.Identity, purpose)
	if err != nil {
		respondError(c, "VerificationHandler", err)
		return
	}
	c.JSON(http.StatusOK, status)
}
