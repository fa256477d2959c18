package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/homerent/homerent-backend/internal/gateway"
	"github.com/homerent/homerent-backend/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RefundCoordinator ties booking cancellation to payment refunds. It is the
// only place that moves a payment from completed to refunded.
type RefundCoordinator struct {
	db  *gorm.DB
	gw  gateway.Client
	log *logrus.Logger
}

func NewRefundCoordinator(db *gorm.DB, gw gateway.Client, log *logrus.Logger) *RefundCoordinator {
	return &RefundCoordinator{db: db, gw: gw, log: log}
}

// RefundBooking refunds the most recent completed payment of a booking.
// A booking that never got past pending has no completed payment and the
// call is a no-op.
func (r *RefundCoordinator) RefundBooking(ctx context.Context, bookingID uint) error {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("booking_id = ? AND status = ?", bookingID, models.PaymentStatusCompleted).
		Order("created_at DESC").
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	_, err = r.RefundPayment(ctx, &payment)
	return err
}

// RefundPayment pushes a full refund through the gateway. Only a completed
// payment can be refunded; any other status is a no-op returning false.
// The status flips to refunded only on a gateway-reported "processed"
// result; everything else leaves the payment completed so the operation can
// be retried.
func (r *RefundCoordinator) RefundPayment(ctx context.Context, payment *models.Payment) (bool, error) {
	if !payment.Status.CanTransition(models.PaymentStatusRefunded) {
		return false, nil
	}

	status, raw, err := r.gw.Refund(ctx, payment.RazorpayPaymentID, toPaise(payment.Amount))
	if err != nil {
		return false, err
	}
	if status != gateway.RefundProcessed {
		r.log.WithFields(logrus.Fields{
			"paymentId": payment.ID,
			"bookingId": payment.BookingID,
			"status":    status,
		}).Error("gateway did not process refund")
		return false, fmt.Errorf("%w: gateway reported %q", ErrRefundFailed, status)
	}

	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentStatusCompleted).
		Updates(map[string]interface{}{
			"status":           models.PaymentStatusRefunded,
			"gateway_response": raw,
		})
	if res.Error != nil {
		return false, res.Error
	}

	payment.Status = models.PaymentStatusRefunded
	r.log.WithFields(logrus.Fields{
		"paymentId": payment.ID,
		"bookingId": payment.BookingID,
		"amount":    payment.Amount,
	}).Info("payment refunded")
	return true, nil
}
