package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // created, awaiting payment
	BookingStatusConfirmed BookingStatus = "confirmed" // payment verified
	BookingStatusOngoing   BookingStatus = "ongoing"   // stay in progress
	BookingStatusCompleted BookingStatus = "completed" // stay over
	BookingStatusCancelled BookingStatus = "cancelled"
)

// bookingTransitions is the single transition table consulted by every
// mutating operation. Anything not listed here is rejected.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusOngoing, BookingStatusCancelled},
	BookingStatusOngoing:   {BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusCompleted: {},
	BookingStatusCancelled: {},
}

// CanTransition reports whether a booking may move from one status to another.
func (s BookingStatus) CanTransition(to BookingStatus) bool {
	for _, next := range bookingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// Occupies reports whether a booking in this status blocks the property
// calendar. Pending bookings do not hold dates until paid for.
func (s BookingStatus) Occupies() bool {
	return s == BookingStatusConfirmed || s == BookingStatusOngoing
}

type Booking struct {
	gorm.Model
	UserID          uint            `json:"userId" gorm:"not null;index:idx_bookings_user_status"`
	User            User            `json:"user"`
	PropertyID      uint            `json:"propertyId" gorm:"not null;index"`
	Property        Property        `json:"property"`
	CheckIn         time.Time       `json:"checkIn" gorm:"not null"`
	CheckOut        time.Time       `json:"checkOut" gorm:"not null"`
	Guests          uint            `json:"guests" gorm:"not null"`
	TotalCost       decimal.Decimal `json:"totalCost" gorm:"type:numeric(10,2);not null"`
	Status          BookingStatus   `json:"status" gorm:"not null;default:'pending';index:idx_bookings_user_status"`
	RazorpayOrderID string          `json:"razorpayOrderId,omitempty"`
}

// Nights returns the whole number of nights between check-in and check-out.
func (b *Booking) Nights() int {
	return int(b.CheckOut.Sub(b.CheckIn).Hours() / 24)
}

// CalculateTotalCost computes nights * nightly rate for the given property.
// Dates must already be validated.
func (b *Booking) CalculateTotalCost(property *Property) decimal.Decimal {
	return property.PricePerNight.Mul(decimal.NewFromInt(int64(b.Nights())))
}

// OverlapsRange reports whether the booking's [CheckIn, CheckOut) range
// shares any instant with [checkIn, checkOut). Half-open semantics: a
// checkout on day X does not conflict with a check-in on day X.
func (b *Booking) OverlapsRange(checkIn, checkOut time.Time) bool {
	return b.CheckIn.Before(checkOut) && b.CheckOut.After(checkIn)
}
