package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"crypto-balance-backend/internal/common/logger"
	"crypto-balance-backend/internal/common/middleware"
	"crypto-balance-backend/internal/features/withdrawal/models"
	"crypto-balance-backend/internal/features/withdrawal/service"
)

type WithdrawalHandler struct {
	service    service.WithdrawalService
	adminToken string
}

func NewWithdrawalHandler(service service.WithdrawalService, adminToken string) *WithdrawalHandler {
	return &WithdrawalHandler{service: service, adminToken: adminToken}
}

func (h *WithdrawalHandler) RegisterRoutes(router *gin.RouterGroup) {
	withdrawals := router.Group("/withdrawals")
	{
		withdrawals.POST("", h.RequestWithdrawal)
		withdrawals.GET("", h.ListWithdrawals)
	}

	admin := router.Group("/withdrawals")
	admin.Use(middleware.RequireAdmin(h.adminToken))
	{
		admin.POST("/:id/resolve", h.ResolveWithdrawal)
	}
}

func (h *WithdrawalHandler) RequestWithdrawal(c *gin.Context) {
	var input models.WithdrawRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, amount, currency and wallet_address are required"})
		return
	}

	withdrawal, err := h.service.Request(c.Request.Context(), input, c.GetHeader("Idempotency-Key"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMinAmount):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Minimum withdrawal amount is $20"})
		case errors.Is(err, service.ErrInsufficientFunds):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Insufficient funds"})
		case errors.Is(err, service.ErrKeyConflict):
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "Idempotency key already used with different parameters"})
		case errors.Is(err, service.ErrUserNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			logger.Error().Err(err).Int64("user_id", input.UserID).Msg("Withdrawal request failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"withdrawal_id": withdrawal.ID,
		"message":       "Withdrawal request created successfully",
	})
}

func (h *WithdrawalHandler) ListWithdrawals(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter is required"})
		return
	}

	withdrawals, err := h.service.ListByUser(c.Request.Context(), userID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", userID).Msg("Withdrawal listing failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if withdrawals == nil {
		withdrawals = []*models.Withdrawal{}
	}

	c.JSON(http.StatusOK, withdrawals)
}

func (h *WithdrawalHandler) ResolveWithdrawal(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid withdrawal ID format"})
		return
	}

	var input models.ResolveRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "decision must be approve or reject"})
		return
	}

	withdrawal, err := h.service.Resolve(c.Request.Context(), id, input.Decision)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWithdrawalNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Withdrawal not found"})
		case errors.Is(err, service.ErrAlreadyResolved):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Withdrawal already resolved"})
		case errors.Is(err, service.ErrInvalidDecision):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "decision must be approve or reject"})
		default:
			logger.Error().Err(err).Int64("withdrawal_id", id).Msg("Withdrawal resolution failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return
	}

	c.JSON(http.StatusOK, withdrawal)
}
