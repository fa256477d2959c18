package services

import (
	"context"
	"time"

	"github.com/homerent/homerent-backend/internal/models"
	"gorm.io/gorm"
)

// activeStatuses are the statuses that block new reservations on a property.
// Pending bookings hold their dates until they are paid for or expire, so
// that two renters cannot both enter the payment flow for the same range.
// The cost is that an unpaid pending booking locks the range out for other
// renters until the sweep's pending TTL releases it, which is why the TTL
// default stays short.
var activeStatuses = []models.BookingStatus{
	models.BookingStatusPending,
	models.BookingStatusConfirmed,
	models.BookingStatusOngoing,
}

// HasOverlap reports whether [checkIn, checkOut) collides with any of the
// given bookings, skipping the booking identified by excludeID (0 for none).
// Ranges are half-open: a checkout on day X does not conflict with a
// check-in on day X.
func HasOverlap(bookings []models.Booking, checkIn, checkOut time.Time, excludeID uint) bool {
	for i := range bookings {
		if excludeID != 0 && bookings[i].ID == excludeID {
			continue
		}
		if bookings[i].OverlapsRange(checkIn, checkOut) {
			return true
		}
	}
	return false
}

// isOverlapping loads the property's active bookings inside the caller's
// transaction and runs the overlap predicate against them. The caller is
// expected to hold the property row lock so check-then-insert is atomic.
func isOverlapping(tx *gorm.DB, propertyID uint, checkIn, checkOut time.Time, excludeID uint) (bool, error) {
	var existing []models.Booking
	err := tx.Where("property_id = ? AND status IN ?", propertyID, activeStatuses).
		Find(&existing).Error
	if err != nil {
		return false, err
	}
	return HasOverlap(existing, checkIn, checkOut, excludeID), nil
}

// DisabledDates returns every date that falls inside a confirmed or ongoing
// booking for the property (inclusive start, exclusive end), formatted as
// YYYY-MM-DD for calendar UI consumption. Results are cached in Redis and
// invalidated whenever a booking on the property changes state.
func (s *BookingService) DisabledDates(ctx context.Context, propertyID uint) ([]string, error) {
	if dates, ok := GetCachedDisabledDates(ctx, propertyID); ok {
		return dates, nil
	}

	var bookings []models.Booking
	err := s.db.WithContext(ctx).
		Where("property_id = ? AND status IN ?", propertyID, []models.BookingStatus{
			models.BookingStatusConfirmed,
			models.BookingStatusOngoing,
		}).
		Order("check_in").
		Find(&bookings).Error
	if err != nil {
		return nil, err
	}

	dates := CollectDisabledDates(bookings)
	CacheDisabledDates(ctx, propertyID, dates)
	return dates, nil
}

// CollectDisabledDates expands booking ranges into individual dates,
// deduplicated and in chronological order.
func CollectDisabledDates(bookings []models.Booking) []string {
	seen := make(map[string]bool)
	dates := make([]string, 0)
	for i := range bookings {
		day := bookings[i].CheckIn.Truncate(24 * time.Hour)
		end := bookings[i].CheckOut.Truncate(24 * time.Hour)
		for day.Before(end) {
			key := day.Format("2006-01-02")
			if !seen[key] {
				seen[key] = true
				dates = append(dates, key)
			}
			day = day.AddDate(0, 0, 1)
		}
	}
	return dates
}
