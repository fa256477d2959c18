package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Property struct {
	gorm.Model
	OwnerID       uint            `json:"ownerId" gorm:"not null;index"`
	Owner         User            `json:"owner"`
	Title         string          `json:"title" gorm:"not null"`
	Description   string          `json:"description"`
	Location      string          `json:"location" gorm:"not null"`
	PricePerNight decimal.Decimal `json:"pricePerNight" gorm:"type:numeric(10,2);not null"`
	MaxGuests     uint            `json:"maxGuests" gorm:"not null"`
	IsAvailable   bool            `json:"isAvailable" gorm:"not null;default:true"`
}
