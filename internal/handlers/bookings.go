package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/homerent/homerent-backend/internal/models"
	"github.com/homerent/homerent-backend/internal/services"
	"gorm.io/gorm"
)

// CreateBooking handles the creation of a new booking
func CreateBooking(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		var input struct {
			PropertyID uint      `json:"propertyId" binding:"required"`
			CheckIn    time.Time `json:"checkIn" binding:"required"`
			CheckOut   time.Time `json:"checkOut" binding:"required"`
			Guests     uint      `json:"guests" binding:"required,min=1"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		booking, err := bookings.Create(c.Request.Context(), userId, input.PropertyID,
			input.CheckIn, input.CheckOut, input.Guests)
		if err != nil {
			respondServiceError(c, err)
			return
		}

		c.JSON(201, booking)
	}
}

// GetClientBookings retrieves all bookings made by the authenticated renter
func GetClientBookings(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		var bookings []models.Booking
		if err := db.Where("user_id = ?", userId).
			Preload("Property").
			Order("created_at DESC").
			Find(&bookings).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch bookings"})
			return
		}

		c.JSON(200, bookings)
	}
}

// GetBooking retrieves detailed booking information
func GetBooking(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		var booking models.Booking
		if err := db.Preload("Property").
			Preload("Property.Owner").
			First(&booking, c.Param("id")).Error; err != nil {
			c.JSON(404, gin.H{"error": "Booking not found"})
			return
		}

		if booking.UserID != userId && booking.Property.OwnerID != userId {
			c.JSON(403, gin.H{"error": "Unauthorized"})
			return
		}

		c.JSON(200, gin.H{
			"id":        booking.ID,
			"status":    booking.Status,
			"checkIn":   booking.CheckIn,
			"checkOut":  booking.CheckOut,
			"guests":    booking.Guests,
			"totalCost": booking.TotalCost,
			"property": gin.H{
				"id":       booking.Property.ID,
				"title":    booking.Property.Title,
				"location": booking.Property.Location,
			},
		})
	}
}

// UpdateBooking changes dates or guest count on a pending or confirmed booking
func UpdateBooking(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		bookingID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid booking id"})
			return
		}

		var input struct {
			CheckIn  time.Time `json:"checkIn" binding:"required"`
			CheckOut time.Time `json:"checkOut" binding:"required"`
			Guests   uint      `json:"guests" binding:"required,min=1"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		booking, err := bookings.Update(c.Request.Context(), userId, uint(bookingID),
			input.CheckIn, input.CheckOut, input.Guests)
		if err != nil {
			respondServiceError(c, err)
			return
		}

		c.JSON(200, booking)
	}
}

// CancelBooking cancels a booking and, when money already moved, pushes the
// refund through. A refund the gateway could not process does not block the
// cancellation; it is reported and retried by the sweep.
func CancelBooking(db *gorm.DB, bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		bookingID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid booking id"})
			return
		}

		var input struct {
			Reason string `json:"reason"`
		}
		// Reason is optional; an empty body is fine
		_ = c.ShouldBindJSON(&input)

		var booking models.Booking
		if err := db.First(&booking, bookingID).Error; err != nil {
			c.JSON(404, gin.H{"error": "Booking not found"})
			return
		}
		if booking.UserID != userId {
			c.JSON(403, gin.H{"error": "Unauthorized"})
			return
		}

		cancelled, err := bookings.Cancel(c.Request.Context(), uint(bookingID), input.Reason)
		if err != nil {
			if cancelled != nil && cancelled.Status == models.BookingStatusCancelled {
				// Cancelled, but the refund is still owed
				c.JSON(200, gin.H{
					"id":     cancelled.ID,
					"status": cancelled.Status,
					"refund": "pending",
				})
				return
			}
			respondServiceError(c, err)
			return
		}

		c.JSON(200, gin.H{
			"id":     cancelled.ID,
			"status": cancelled.Status,
		})
	}
}
