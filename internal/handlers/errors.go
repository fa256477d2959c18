package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/homerent/homerent-backend/internal/gateway"
	"github.com/homerent/homerent-backend/internal/services"
)

// respondServiceError maps service errors onto HTTP responses. Gateway
// trouble is reported as retryable, never as a definitive payment outcome.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(400, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(404, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrDatesUnavailable):
		c.JSON(409, gin.H{"error": "The selected dates are already booked"})
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(409, gin.H{"error": err.Error()})
	case errors.Is(err, gateway.ErrUnavailable):
		c.JSON(502, gin.H{"error": "Payment gateway unavailable, please try again"})
	case errors.Is(err, services.ErrRefundFailed):
		c.JSON(502, gin.H{"error": "Refund could not be processed, it will be retried"})
	default:
		c.JSON(500, gin.H{"error": "Internal server error"})
	}
}
