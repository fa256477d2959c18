package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/homerent/homerent-backend/internal/models"
	"github.com/homerent/homerent-backend/internal/services"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreateProperty handles the creation of a new property listing by an owner
func CreateProperty(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")
		userType := c.GetString("userType")

		if userType != string(models.UserTypeOwner) {
			c.JSON(403, gin.H{"error": "Only owners can list properties"})
			return
		}

		var input struct {
			Title         string          `json:"title" binding:"required"`
			Description   string          `json:"description"`
			Location      string          `json:"location" binding:"required"`
			PricePerNight decimal.Decimal `json:"pricePerNight" binding:"required"`
			MaxGuests     uint            `json:"maxGuests" binding:"required,min=1"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		if input.PricePerNight.Sign() <= 0 {
			c.JSON(400, gin.H{"error": "Price per night must be greater than zero"})
			return
		}

		property := models.Property{
			OwnerID:       userId,
			Title:         input.Title,
			Description:   input.Description,
			Location:      input.Location,
			PricePerNight: input.PricePerNight,
			MaxGuests:     input.MaxGuests,
			IsAvailable:   true,
		}

		if err := db.Create(&property).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to create property"})
			return
		}

		c.JSON(201, property)
	}
}

// GetProperties retrieves available properties with optional location search
func GetProperties(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		location := c.Query("location")

		var properties []models.Property
		query := db.Where("is_available = ?", true)
		if location != "" {
			query = query.Where("location ILIKE ?", "%"+location+"%")
		}

		if err := query.Find(&properties).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch properties"})
			return
		}

		c.JSON(200, properties)
	}
}

// GetProperty retrieves a single property listing
func GetProperty(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var property models.Property
		if err := db.Preload("Owner").First(&property, c.Param("id")).Error; err != nil {
			c.JSON(404, gin.H{"error": "Property not found"})
			return
		}

		c.JSON(200, property)
	}
}

// UpdateProperty lets the owner change listing details or availability
func UpdateProperty(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetUint("userId")

		var property models.Property
		if err := db.First(&property, c.Param("id")).Error; err != nil {
			c.JSON(404, gin.H{"error": "Property not found"})
			return
		}

		if property.OwnerID != userId {
			c.JSON(403, gin.H{"error": "Unauthorized"})
			return
		}

		var input struct {
			Title         *string          `json:"title"`
			Description   *string          `json:"description"`
			Location      *string          `json:"location"`
			PricePerNight *decimal.Decimal `json:"pricePerNight"`
			MaxGuests     *uint            `json:"maxGuests"`
			IsAvailable   *bool            `json:"isAvailable"`
		}

		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		if input.Title != nil {
			property.Title = *input.Title
		}
		if input.Description != nil {
			property.Description = *input.Description
		}
		if input.Location != nil {
			property.Location = *input.Location
		}
		if input.PricePerNight != nil {
			if input.PricePerNight.Sign() <= 0 {
				c.JSON(400, gin.H{"error": "Price per night must be greater than zero"})
				return
			}
			property.PricePerNight = *input.PricePerNight
		}
		if input.MaxGuests != nil {
			property.MaxGuests = *input.MaxGuests
		}
		if input.IsAvailable != nil {
			property.IsAvailable = *input.IsAvailable
		}

		if err := db.Save(&property).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to update property"})
			return
		}

		c.JSON(200, property)
	}
}

// GetDisabledDates returns the dates blocked by confirmed bookings, for the
// property's calendar widget
func GetDisabledDates(bookings *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		propertyID, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(400, gin.H{"error": "Invalid property id"})
			return
		}

		dates, err := bookings.DisabledDates(c.Request.Context(), uint(propertyID))
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch disabled dates"})
			return
		}

		c.JSON(200, gin.H{"disabledDates": dates})
	}
}
