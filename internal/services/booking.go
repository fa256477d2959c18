package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/homerent/homerent-backend/internal/models"
	"github.com/homerent/homerent-backend/pkg/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookingService owns the booking lifecycle: creation, pricing, updates,
// confirmation, cancellation and the date-driven transitions.
type BookingService struct {
	db      *gorm.DB
	refunds *RefundCoordinator
	hub     *Hub
	log     *logrus.Logger
}

func NewBookingService(db *gorm.DB, refunds *RefundCoordinator, hub *Hub, log *logrus.Logger) *BookingService {
	return &BookingService{db: db, refunds: refunds, hub: hub, log: log}
}

func validateStay(checkIn, checkOut time.Time, now time.Time) error {
	if !checkOut.After(checkIn) {
		return fmt.Errorf("%w: check-out date must be after check-in date", ErrValidation)
	}
	if checkIn.Before(now.AddDate(0, 0, 1)) {
		return fmt.Errorf("%w: check-in date must be at least one day from today", ErrValidation)
	}
	return nil
}

// Create validates the stay, prices it and persists a pending booking. The
// overlap check and the insert run in one transaction holding the property
// row lock, so two concurrent requests for overlapping ranges cannot both
// succeed.
func (s *BookingService) Create(ctx context.Context, userID, propertyID uint, checkIn, checkOut time.Time, guests uint) (*models.Booking, error) {
	if err := validateStay(checkIn, checkOut, time.Now()); err != nil {
		return nil, err
	}
	if guests < 1 {
		return nil, fmt.Errorf("%w: number of guests must be at least one", ErrValidation)
	}

	var booking models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var property models.Property
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&property, propertyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: property %d", ErrNotFound, propertyID)
			}
			return err
		}

		if !property.IsAvailable {
			return fmt.Errorf("%w: property is not open for booking", ErrValidation)
		}
		if guests > property.MaxGuests {
			return fmt.Errorf("%w: number of guests exceeds the property limit of %d", ErrValidation, property.MaxGuests)
		}

		conflict, err := isOverlapping(tx, propertyID, checkIn, checkOut, 0)
		if err != nil {
			return err
		}
		if conflict {
			return ErrDatesUnavailable
		}

		booking = models.Booking{
			UserID:     userID,
			PropertyID: propertyID,
			CheckIn:    checkIn,
			CheckOut:   checkOut,
			Guests:     guests,
			Status:     models.BookingStatusPending,
		}
		booking.TotalCost = booking.CalculateTotalCost(&property)
		if booking.TotalCost.Sign() <= 0 {
			return fmt.Errorf("%w: total cost must be greater than zero", ErrValidation)
		}

		return tx.Create(&booking).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"bookingId":  booking.ID,
		"propertyId": propertyID,
		"userId":     userID,
		"totalCost":  booking.TotalCost,
	}).Info("booking created")

	return &booking, nil
}

// Update changes the dates or guest count of a pending or confirmed booking,
// re-running validation, the overlap check (excluding the booking itself)
// and the pricing.
func (s *BookingService) Update(ctx context.Context, userID, bookingID uint, checkIn, checkOut time.Time, guests uint) (*models.Booking, error) {
	if err := validateStay(checkIn, checkOut, time.Now()); err != nil {
		return nil, err
	}
	if guests < 1 {
		return nil, fmt.Errorf("%w: number of guests must be at least one", ErrValidation)
	}

	var booking models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&booking, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: booking %d", ErrNotFound, bookingID)
			}
			return err
		}

		if booking.Status != models.BookingStatusPending && booking.Status != models.BookingStatusConfirmed {
			return fmt.Errorf("%w: cannot update a booking in status %q", ErrInvalidTransition, booking.Status)
		}

		var property models.Property
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&property, booking.PropertyID).Error; err != nil {
			return err
		}
		if guests > property.MaxGuests {
			return fmt.Errorf("%w: number of guests exceeds the property limit of %d", ErrValidation, property.MaxGuests)
		}

		conflict, err := isOverlapping(tx, booking.PropertyID, checkIn, checkOut, booking.ID)
		if err != nil {
			return err
		}
		if conflict {
			return ErrDatesUnavailable
		}

		booking.CheckIn = checkIn
		booking.CheckOut = checkOut
		booking.Guests = guests
		booking.TotalCost = booking.CalculateTotalCost(&property)

		return tx.Save(&booking).Error
	})
	if err != nil {
		return nil, err
	}

	InvalidateDisabledDates(ctx, booking.PropertyID)
	return &booking, nil
}

// Confirm advances a pending booking to confirmed. Idempotent: a booking
// already confirmed or later is left alone. The write is a compare-and-swap
// on status so a racing cancel cannot be overwritten.
func (s *BookingService) Confirm(ctx context.Context, bookingID uint) error {
	res := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status = ?", bookingID, models.BookingStatusPending).
		Update("status", models.BookingStatusConfirmed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	s.afterStatusChange(ctx, bookingID, models.BookingStatusConfirmed)
	return nil
}

// Cancel moves a booking to cancelled, refusing terminal states, and hands
// any completed payment to the refund coordinator. A refund failure does not
// undo the cancellation; it is surfaced so the caller (and the sweep) can
// retry.
func (s *BookingService) Cancel(ctx context.Context, bookingID uint, reason string) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&booking, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: booking %d", ErrNotFound, bookingID)
			}
			return err
		}

		if !booking.Status.CanTransition(models.BookingStatusCancelled) {
			return fmt.Errorf("%w: cannot cancel a booking in status %q", ErrInvalidTransition, booking.Status)
		}

		booking.Status = models.BookingStatusCancelled
		return tx.Save(&booking).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"bookingId": booking.ID,
		"reason":    reason,
	}).Info("booking cancelled")

	s.afterStatusChange(ctx, booking.ID, models.BookingStatusCancelled)

	// Money already moved: push the cancellation through to the gateway.
	if err := s.refunds.RefundBooking(ctx, booking.ID); err != nil {
		s.log.WithFields(logrus.Fields{
			"bookingId": booking.ID,
			"error":     err.Error(),
		}).Error("refund after cancellation did not complete")
		return &booking, err
	}

	return &booking, nil
}

// NextStatusByDate is the date-driven transition rule: confirmed becomes
// ongoing once now enters [checkIn, checkOut), ongoing becomes completed
// once now reaches checkOut. The second return is false when no transition
// applies, so redundant sweep runs are harmless.
func NextStatusByDate(status models.BookingStatus, checkIn, checkOut, now time.Time) (models.BookingStatus, bool) {
	switch status {
	case models.BookingStatusConfirmed:
		// A stay that already ended still steps through ongoing first; the
		// transition table only allows one hop at a time and the next sweep
		// run completes it.
		if !now.Before(checkIn) {
			return models.BookingStatusOngoing, true
		}
	case models.BookingStatusOngoing:
		if !now.Before(checkOut) {
			return models.BookingStatusCompleted, true
		}
	}
	return status, false
}

// AdvanceByDate applies the date-driven rule to one booking with a
// compare-and-swap write, so it can race user-initiated confirm/cancel
// without clobbering them.
func (s *BookingService) AdvanceByDate(ctx context.Context, booking *models.Booking, now time.Time) error {
	next, ok := NextStatusByDate(booking.Status, booking.CheckIn, booking.CheckOut, now)
	if !ok || next == booking.Status {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status = ?", booking.ID, booking.Status).
		Update("status", next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Someone else moved the booking first; the next sweep will catch up.
		return nil
	}

	booking.Status = next
	s.afterStatusChange(ctx, booking.ID, next)
	return nil
}

// afterStatusChange is the single reconciliation hook run after every
// booking state change: drop the cached calendar and notify listeners.
func (s *BookingService) afterStatusChange(ctx context.Context, bookingID uint, status models.BookingStatus) {
	var booking models.Booking
	if err := s.db.WithContext(ctx).Preload("User").Preload("Property").
		First(&booking, bookingID).Error; err != nil {
		s.log.WithField("bookingId", bookingID).Warn("could not load booking for notifications")
		return
	}

	InvalidateDisabledDates(ctx, booking.PropertyID)

	if s.hub != nil {
		s.hub.NotifyBookingStatus(&booking)
	}

	switch status {
	case models.BookingStatusConfirmed:
		go func(email, title string, b models.Booking) {
			if err := utils.SendBookingConfirmedEmail(email, title, b.CheckIn, b.CheckOut); err != nil {
				s.log.WithField("bookingId", b.ID).Warnf("confirmation email not sent: %v", err)
			}
		}(booking.User.Email, booking.Property.Title, booking)
	case models.BookingStatusCancelled:
		go func(email, title string, b models.Booking) {
			if err := utils.SendBookingCancelledEmail(email, title); err != nil {
				s.log.WithField("bookingId", b.ID).Warnf("cancellation email not sent: %v", err)
			}
		}(booking.User.Email, booking.Property.Title, booking)
	}
}
