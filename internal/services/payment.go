package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/homerent/homerent-backend/internal/gateway"
	"github.com/homerent/homerent-backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentService owns the payment state machine and keeps it consistent with
// the booking it pays for.
type PaymentService struct {
	db       *gorm.DB
	gw       gateway.Client
	bookings *BookingService
	refunds  *RefundCoordinator
	log      *logrus.Logger
}

func NewPaymentService(db *gorm.DB, gw gateway.Client, bookings *BookingService, refunds *RefundCoordinator, log *logrus.Logger) *PaymentService {
	return &PaymentService{db: db, gw: gw, bookings: bookings, refunds: refunds, log: log}
}

func toPaise(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

// Initiate opens the payment flow for a pending booking: it creates a
// gateway order over the booking's total cost and records the order id on
// both the payment and the booking. Calling it again for the same booking
// returns the order that already exists instead of creating a duplicate.
func (s *PaymentService) Initiate(ctx context.Context, userID, bookingID uint, method models.PaymentMethod) (*models.Payment, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&booking, bookingID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: booking %d", ErrNotFound, bookingID)
		}
		return nil, err
	}

	if booking.Status != models.BookingStatusPending {
		return nil, fmt.Errorf("%w: only a pending booking can enter the payment flow", ErrInvalidTransition)
	}

	var existing models.Payment
	err = s.db.WithContext(ctx).
		Where("booking_id = ? AND status = ? AND razorpay_order_id <> ''", bookingID, models.PaymentStatusPending).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	amount := booking.TotalCost
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be greater than zero", ErrValidation)
	}

	receipt := fmt.Sprintf("booking_%d_%s", booking.ID, uuid.NewString()[:8])
	orderID, raw, err := s.gw.CreateOrder(ctx, toPaise(amount), "INR", receipt)
	if err != nil {
		return nil, err
	}

	payment := models.Payment{
		UserID:          booking.UserID,
		BookingID:       booking.ID,
		Amount:          amount,
		Method:          method,
		Status:          models.PaymentStatusPending,
		RazorpayOrderID: orderID,
		GatewayResponse: raw,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A racing initiate may have persisted its order first; hand that
		// one back and let our unused gateway order expire.
		var raced models.Payment
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("booking_id = ? AND status = ? AND razorpay_order_id <> ''", bookingID, models.PaymentStatusPending).
			First(&raced).Error
		if err == nil {
			payment = raced
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		return tx.Model(&models.Booking{}).
			Where("id = ?", booking.ID).
			Update("razorpay_order_id", orderID).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"paymentId": payment.ID,
		"bookingId": booking.ID,
		"orderId":   payment.RazorpayOrderID,
		"amount":    payment.Amount,
	}).Info("payment initiated")

	return &payment, nil
}

// Verify handles the gateway callback. The signature decides the outcome:
// valid moves the payment to completed and confirms a still-pending booking,
// invalid moves it to failed and cancels a still-pending booking. An invalid
// signature is a normal false result; errors are reserved for storage and
// transport problems. Redelivered callbacks for an already-settled payment
// are no-ops.
func (s *PaymentService) Verify(ctx context.Context, orderID, paymentID, signature string) (bool, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).
		Where("razorpay_order_id = ?", orderID).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("%w: no payment for order %q", ErrNotFound, orderID)
		}
		return false, err
	}

	switch payment.Status {
	case models.PaymentStatusCompleted:
		// At-least-once delivery: the first callback already won. The confirm
		// is still re-run so a booking left pending by a crash between the
		// payment write and the confirm gets reconciled; the CAS makes it a
		// no-op on an already-confirmed booking.
		if err := s.bookings.Confirm(ctx, payment.BookingID); err != nil {
			s.log.WithFields(logrus.Fields{
				"bookingId": payment.BookingID,
				"error":     err.Error(),
			}).Error("could not confirm booking on redelivered callback")
			return true, err
		}
		return true, nil
	case models.PaymentStatusFailed, models.PaymentStatusRefunded:
		return false, nil
	}

	callback, _ := json.Marshal(map[string]string{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
		"razorpay_signature":  signature,
	})

	if !s.gw.VerifySignature(orderID, paymentID, signature) {
		res := s.db.WithContext(ctx).Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
			Updates(map[string]interface{}{
				"status":           models.PaymentStatusFailed,
				"gateway_response": callback,
			})
		if res.Error != nil {
			return false, res.Error
		}

		s.log.WithFields(logrus.Fields{
			"paymentId": payment.ID,
			"bookingId": payment.BookingID,
			"orderId":   orderID,
		}).Warn("payment signature verification failed")

		if res.RowsAffected > 0 {
			s.cancelPendingBooking(ctx, payment.BookingID)
		}
		return false, nil
	}

	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":              models.PaymentStatusCompleted,
			"razorpay_payment_id": paymentID,
			"razorpay_signature":  signature,
			"gateway_response":    callback,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost a race with another delivery of the same callback.
		return true, nil
	}

	s.log.WithFields(logrus.Fields{
		"paymentId": payment.ID,
		"bookingId": payment.BookingID,
		"orderId":   orderID,
	}).Info("payment completed")

	if err := s.bookings.Confirm(ctx, payment.BookingID); err != nil {
		// The payment is settled; reconciliation of the booking is retried
		// by re-delivered callbacks or operator action.
		s.log.WithFields(logrus.Fields{
			"bookingId": payment.BookingID,
			"error":     err.Error(),
		}).Error("could not confirm booking after payment")
		return true, err
	}

	return true, nil
}

// cancelPendingBooking cancels the booking behind a failed payment, but only
// while it is still pending. A confirmed booking is never torn down by a
// stray failed callback.
func (s *PaymentService) cancelPendingBooking(ctx context.Context, bookingID uint) {
	var booking models.Booking
	if err := s.db.WithContext(ctx).First(&booking, bookingID).Error; err != nil {
		s.log.WithField("bookingId", bookingID).Warn("could not load booking after failed payment")
		return
	}
	if booking.Status != models.BookingStatusPending {
		return
	}
	if _, err := s.bookings.Cancel(ctx, bookingID, "payment failed"); err != nil &&
		!errors.Is(err, ErrInvalidTransition) {
		s.log.WithFields(logrus.Fields{
			"bookingId": bookingID,
			"error":     err.Error(),
		}).Error("could not cancel booking after failed payment")
	}
}

// FailPending fails every payment on a booking that never completed, e.g.
// when the booking's payment window expires. Completed payments go through
// the refund coordinator instead.
func (s *PaymentService) FailPending(ctx context.Context, bookingID uint) error {
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("booking_id = ? AND status = ?", bookingID, models.PaymentStatusPending).
		Update("status", models.PaymentStatusFailed)
	return res.Error
}

// Refund refunds a completed payment on explicit request.
func (s *PaymentService) Refund(ctx context.Context, paymentID uint) (bool, error) {
	var payment models.Payment
	err := s.db.WithContext(ctx).First(&payment, paymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("%w: payment %d", ErrNotFound, paymentID)
		}
		return false, err
	}
	return s.refunds.RefundPayment(ctx, &payment)
}
