package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"crypto-balance-backend/internal/common/logger"
	"crypto-balance-backend/internal/features/deposit/models"
	"crypto-balance-backend/internal/features/deposit/service"
)

type DepositHandler struct {
	service service.DepositService
}

func NewDepositHandler(service service.DepositService) *DepositHandler {
	return &DepositHandler{service: service}
}

func (h *DepositHandler) RegisterRoutes(router *gin.RouterGroup) {
	deposits := router.Group("/deposits")
	{
		deposits.POST("", h.CreateDeposit)
		deposits.POST("/callback", h.Callback)
	}
}

func (h *DepositHandler) CreateDeposit(c *gin.Context) {
	var input models.CreateDepositRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, amount and currency are required"})
		return
	}

	resp, err := h.service.Create(c.Request.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAmountOutOfRange):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Amount must be between $10 and $50,000"})
		case errors.Is(err, service.ErrUserNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "User not found"})
		case errors.Is(err, service.ErrProvider):
			logger.Error().Err(err).Int64("user_id", input.UserID).Msg("Invoice creation failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Payment creation failed"})
		default:
			logger.Error().Err(err).Int64("user_id", input.UserID).Msg("Deposit creation failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Callback handles provider payment notifications. The provider delivers
// at-least-once, so the handler must stay idempotent end to end.
func (h *DepositHandler) Callback(c *gin.Context) {
	var input models.CallbackRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invoice_id and status are required"})
		return
	}

	if err := h.service.Confirm(c.Request.Context(), input.InvoiceID, input.Status); err != nil {
		if errors.Is(err, service.ErrDepositNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Unknown invoice"})
			return
		}
		logger.Error().Err(err).Int64("invoice_id", input.InvoiceID).Msg("Deposit confirmation failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
