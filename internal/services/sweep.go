package services

import (
	"context"
	"errors"
	"time"

	"github.com/homerent/homerent-backend/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Sweeper is the periodic reconciliation pass: it advances bookings along
// the date-driven path, expires pending bookings that never got paid, and
// retries refunds the gateway previously declined. Every write it performs
// is guarded by a status compare-and-swap, so it is safe to run while users
// confirm and cancel the same rows.
type Sweeper struct {
	db         *gorm.DB
	bookings   *BookingService
	payments   *PaymentService
	refunds    *RefundCoordinator
	log        *logrus.Logger
	interval   time.Duration
	pendingTTL time.Duration
}

func NewSweeper(db *gorm.DB, bookings *BookingService, payments *PaymentService, refunds *RefundCoordinator, log *logrus.Logger, interval, pendingTTL time.Duration) *Sweeper {
	return &Sweeper{
		db:         db,
		bookings:   bookings,
		payments:   payments,
		refunds:    refunds,
		log:        log,
		interval:   interval,
		pendingTTL: pendingTTL,
	}
}

// Run loops until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx, time.Now())
		}
	}
}

// RunOnce executes a single sweep at the given instant.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) {
	s.advanceByDates(ctx, now)
	s.expireStalePending(ctx, now)
	s.retryRefunds(ctx)
}

func (s *Sweeper) advanceByDates(ctx context.Context, now time.Time) {
	var bookings []models.Booking
	err := s.db.WithContext(ctx).
		Where("status IN ?", []models.BookingStatus{
			models.BookingStatusConfirmed,
			models.BookingStatusOngoing,
		}).
		Find(&bookings).Error
	if err != nil {
		s.log.Errorf("sweep: loading bookings to advance: %v", err)
		return
	}

	for i := range bookings {
		if err := s.bookings.AdvanceByDate(ctx, &bookings[i], now); err != nil {
			s.log.WithField("bookingId", bookings[i].ID).
				Errorf("sweep: advancing booking: %v", err)
		}
	}
}

// expireStalePending cancels pending bookings whose payment window has
// passed, releasing their dates and failing any payment still waiting on a
// callback that will never come.
func (s *Sweeper) expireStalePending(ctx context.Context, now time.Time) {
	var stale []models.Booking
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.BookingStatusPending, now.Add(-s.pendingTTL)).
		Find(&stale).Error
	if err != nil {
		s.log.Errorf("sweep: loading stale pending bookings: %v", err)
		return
	}

	for i := range stale {
		// A completed payment means the renter paid but the confirm never
		// landed; reconcile forward, never cancel a paid booking.
		var paid int64
		if err := s.db.WithContext(ctx).Model(&models.Payment{}).
			Where("booking_id = ? AND status = ?", stale[i].ID, models.PaymentStatusCompleted).
			Count(&paid).Error; err != nil {
			s.log.WithField("bookingId", stale[i].ID).
				Errorf("sweep: checking payments on stale booking: %v", err)
			continue
		}
		if paid > 0 {
			if err := s.bookings.Confirm(ctx, stale[i].ID); err != nil {
				s.log.WithField("bookingId", stale[i].ID).
					Errorf("sweep: confirming paid booking: %v", err)
			}
			continue
		}

		if _, err := s.bookings.Cancel(ctx, stale[i].ID, "payment window expired"); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				continue // paid or cancelled while we looked
			}
			s.log.WithField("bookingId", stale[i].ID).
				Errorf("sweep: expiring booking: %v", err)
			continue
		}

		if err := s.payments.FailPending(ctx, stale[i].ID); err != nil {
			s.log.WithField("bookingId", stale[i].ID).
				Errorf("sweep: failing stale payment: %v", err)
		}

		s.log.WithField("bookingId", stale[i].ID).Info("sweep: expired stale pending booking")
	}
}

// retryRefunds finds the inconsistent terminal state monitoring cares
// about, a cancelled booking still holding a completed payment, and pushes
// the refund through again.
func (s *Sweeper) retryRefunds(ctx context.Context) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Joins("JOIN bookings ON bookings.id = payments.booking_id").
		Where("payments.status = ? AND bookings.status = ?",
			models.PaymentStatusCompleted, models.BookingStatusCancelled).
		Find(&payments).Error
	if err != nil {
		s.log.Errorf("sweep: loading unrefunded payments: %v", err)
		return
	}

	for i := range payments {
		if _, err := s.refunds.RefundPayment(ctx, &payments[i]); err != nil {
			s.log.WithFields(logrus.Fields{
				"paymentId": payments[i].ID,
				"bookingId": payments[i].BookingID,
			}).Errorf("sweep: refund retry failed: %v", err)
		}
	}
}
