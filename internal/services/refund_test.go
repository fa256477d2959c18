package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/homerent/homerent-backend/internal/gateway"
	"github.com/homerent/homerent-backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func completedPayment(id, bookingID uint) *models.Payment {
	p := &models.Payment{
		UserID:            1,
		BookingID:         bookingID,
		Amount:            decimal.RequireFromString("150.00"),
		Status:            models.PaymentStatusCompleted,
		RazorpayPaymentID: "pay_123",
	}
	p.Model = gorm.Model{ID: id}
	return p
}

func TestRefundPaymentOnlyFromCompleted(t *testing.T) {
	db, mock := newTestDB(t)
	called := false
	gw := &fakeGateway{
		refundFunc: func(ctx context.Context, paymentID string, amountPaise int64) (gateway.RefundStatus, []byte, error) {
			called = true
			return gateway.RefundProcessed, nil, nil
		},
	}
	coordinator := NewRefundCoordinator(db, gw, newTestLogger())

	for _, status := range []models.PaymentStatus{
		models.PaymentStatusPending,
		models.PaymentStatusFailed,
		models.PaymentStatusRefunded,
	} {
		payment := completedPayment(7, 3)
		payment.Status = status

		done, err := coordinator.RefundPayment(context.Background(), payment)
		if err != nil {
			t.Errorf("status %s: unexpected error: %v", status, err)
		}
		if done {
			t.Errorf("status %s: refund must be refused", status)
		}
	}
	if called {
		t.Error("gateway must not be called for a non-completed payment")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestRefundPaymentProcessed(t *testing.T) {
	db, mock := newTestDB(t)

	var gotPaise int64
	gw := &fakeGateway{
		refundFunc: func(ctx context.Context, paymentID string, amountPaise int64) (gateway.RefundStatus, []byte, error) {
			gotPaise = amountPaise
			return gateway.RefundProcessed, []byte(`{"status":"processed"}`), nil
		},
	}
	coordinator := NewRefundCoordinator(db, gw, newTestLogger())

	mock.ExpectExec(`UPDATE "payments"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	payment := completedPayment(7, 3)
	done, err := coordinator.RefundPayment(context.Background(), payment)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !done {
		t.Error("processed refund must report done")
	}
	if gotPaise != 15000 {
		t.Errorf("refunded %d paise, want 15000", gotPaise)
	}
	if payment.Status != models.PaymentStatusRefunded {
		t.Errorf("payment status = %s, want refunded", payment.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestRefundPaymentGatewayDeclined(t *testing.T) {
	db, mock := newTestDB(t)
	gw := &fakeGateway{
		refundFunc: func(ctx context.Context, paymentID string, amountPaise int64) (gateway.RefundStatus, []byte, error) {
			return gateway.RefundPending, []byte(`{"status":"pending"}`), nil
		},
	}
	coordinator := NewRefundCoordinator(db, gw, newTestLogger())

	payment := completedPayment(7, 3)
	done, err := coordinator.RefundPayment(context.Background(), payment)
	if !errors.Is(err, ErrRefundFailed) {
		t.Errorf("got %v, want ErrRefundFailed", err)
	}
	if done {
		t.Error("unprocessed refund must not report done")
	}
	if payment.Status != models.PaymentStatusCompleted {
		t.Errorf("payment status = %s, must stay completed for retry", payment.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestRefundPaymentGatewayUnavailable(t *testing.T) {
	db, mock := newTestDB(t)
	gw := &fakeGateway{
		refundFunc: func(ctx context.Context, paymentID string, amountPaise int64) (gateway.RefundStatus, []byte, error) {
			return gateway.RefundFailed, nil, gateway.ErrUnavailable
		},
	}
	coordinator := NewRefundCoordinator(db, gw, newTestLogger())

	payment := completedPayment(7, 3)
	done, err := coordinator.RefundPayment(context.Background(), payment)
	if !errors.Is(err, gateway.ErrUnavailable) {
		t.Errorf("got %v, want gateway.ErrUnavailable", err)
	}
	if done {
		t.Error("refund must not report done when the gateway is unreachable")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestRefundBookingWithoutCompletedPayment(t *testing.T) {
	db, mock := newTestDB(t)
	called := false
	gw := &fakeGateway{
		refundFunc: func(ctx context.Context, paymentID string, amountPaise int64) (gateway.RefundStatus, []byte, error) {
			called = true
			return gateway.RefundProcessed, nil, nil
		},
	}
	coordinator := NewRefundCoordinator(db, gw, newTestLogger())

	mock.ExpectQuery(`SELECT (.+) FROM "payments"`).
		WillReturnRows(sqlmock.NewRows(paymentColumns()))

	if err := coordinator.RefundBooking(context.Background(), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Error("a booking without completed payments must not hit the gateway")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
