package handlers

import (
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/homerent/homerent-backend/internal/models"
	"github.com/homerent/homerent-backend/internal/services"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var decimalHundred = decimal.NewFromInt(100)

// InitiatePayment opens the payment flow for a pending booking and returns
// the gateway order the frontend checkout needs
func InitiatePayment(payments *services.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		bookingID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid booking id"})
			return
		}

		var input struct {
			Method models.PaymentMethod `json:"method" binding:"omitempty,oneof=card net_banking upi"`
		}
		_ = c.ShouldBindJSON(&input)
		if input.Method == "" {
			input.Method = models.PaymentMethodCard
		}

		payment, err := payments.Initiate(c.Request.Context(), userId, uint(bookingID), input.Method)
		if err != nil {
			respondServiceError(c, err)
			return
		}

		c.JSON(200, gin.H{
			"paymentId": payment.ID,
			"orderId":   payment.RazorpayOrderID,
			"amount":    payment.Amount.Mul(decimalHundred).IntPart(),
			"currency":  "INR",
			"keyId":     os.Getenv("RAZORPAY_KEY_ID"),
		})
	}
}

// PaymentCallback handles the gateway's payment confirmation. It is public:
// authenticity comes from the signature, not from a session.
func PaymentCallback(payments *services.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			OrderID   string `json:"razorpay_order_id" binding:"required"`
			PaymentID string `json:"razorpay_payment_id" binding:"required"`
			Signature string `json:"razorpay_signature" binding:"required"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		verified, err := payments.Verify(c.Request.Context(), input.OrderID, input.PaymentID, input.Signature)
		if err != nil && !verified {
			respondServiceError(c, err)
			return
		}

		if !verified {
			c.JSON(400, gin.H{
				"verified": false,
				"error":    "Payment verification failed",
			})
			return
		}

		c.JSON(200, gin.H{
			"verified": true,
			"message":  "Payment successful, booking confirmed",
		})
	}
}

// GetUserPayments retrieves the authenticated user's payment history
func GetUserPayments(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		var payments []models.Payment
		if err := db.Where("user_id = ?", userId).
			Preload("Booking").
			Order("created_at DESC").
			Find(&payments).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch payments"})
			return
		}

		c.JSON(200, payments)
	}
}
