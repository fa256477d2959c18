package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/homerent/homerent-backend/internal/gateway"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 conn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open gorm over mock: %v", err)
	}

	return db, mock
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeGateway substitutes the payment provider in tests.
type fakeGateway struct {
	createOrderFunc func(ctx context.Context, amountPaise int64, currency, receipt string) (string, []byte, error)
	verifyFunc      func(orderID, paymentID, signature string) bool
	refundFunc      func(ctx context.Context, paymentID string, amountPaise int64) (gateway.RefundStatus, []byte, error)
}

func (f *fakeGateway) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (string, []byte, error) {
	if f.createOrderFunc != nil {
		return f.createOrderFunc(ctx, amountPaise, currency, receipt)
	}
	return "order_test", []byte(`{"id":"order_test"}`), nil
}

func (f *fakeGateway) VerifySignature(orderID, paymentID, signature string) bool {
	if f.verifyFunc != nil {
		return f.verifyFunc(orderID, paymentID, signature)
	}
	return true
}

func (f *fakeGateway) Refund(ctx context.Context, paymentID string, amountPaise int64) (gateway.RefundStatus, []byte, error) {
	if f.refundFunc != nil {
		return f.refundFunc(ctx, paymentID, amountPaise)
	}
	return gateway.RefundProcessed, []byte(`{"status":"processed"}`), nil
}

func newTestPaymentService(db *gorm.DB, gw gateway.Client) *PaymentService {
	logger := newTestLogger()
	refunds := NewRefundCoordinator(db, gw, logger)
	bookings := NewBookingService(db, refunds, nil, logger)
	return NewPaymentService(db, gw, bookings, refunds, logger)
}

func paymentColumns() []string {
	return []string{"id", "user_id", "booking_id", "amount", "status", "razorpay_order_id", "razorpay_payment_id"}
}

func TestToPaise(t *testing.T) {
	if got := toPaise(decimal.RequireFromString("150.00")); got != 15000 {
		t.Errorf("toPaise(150.00) = %d, want 15000", got)
	}
	if got := toPaise(decimal.RequireFromString("79.50")); got != 7950 {
		t.Errorf("toPaise(79.50) = %d, want 7950", got)
	}
}

func TestVerifyUnknownOrder(t *testing.T) {
	db, mock := newTestDB(t)
	svc := newTestPaymentService(db, &fakeGateway{})

	mock.ExpectQuery(`SELECT (.+) FROM "payments"`).
		WillReturnRows(sqlmock.NewRows(paymentColumns()))

	verified, err := svc.Verify(context.Background(), "order_missing", "pay_1", "sig")
	if verified {
		t.Error("unknown order must not verify")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestVerifyRedeliveredCallbackReconcilesBooking(t *testing.T) {
	db, mock := newTestDB(t)
	svc := newTestPaymentService(db, &fakeGateway{})

	mock.ExpectQuery(`SELECT (.+) FROM "payments"`).
		WillReturnRows(sqlmock.NewRows(paymentColumns()).
			AddRow(7, 1, 3, "150.00", "completed", "order_abc", "pay_1"))

	// The payment is already settled, but a crash may have left the booking
	// pending, so the redelivered callback must still issue the confirm CAS.
	// Zero rows here means the booking was already confirmed.
	mock.ExpectExec(`UPDATE "bookings"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	verified, err := svc.Verify(context.Background(), "order_abc", "pay_1", "sig")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verified {
		t.Error("redelivered callback for a completed payment must report verified")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestFailPending(t *testing.T) {
	db, mock := newTestDB(t)
	svc := newTestPaymentService(db, &fakeGateway{})

	mock.ExpectExec(`UPDATE "payments"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.FailPending(context.Background(), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestVerifyInvalidSignatureFailsPayment(t *testing.T) {
	db, mock := newTestDB(t)
	gw := &fakeGateway{
		verifyFunc: func(orderID, paymentID, signature string) bool { return false },
	}
	svc := newTestPaymentService(db, gw)

	mock.ExpectQuery(`SELECT (.+) FROM "payments"`).
		WillReturnRows(sqlmock.NewRows(paymentColumns()).
			AddRow(7, 1, 3, "150.00", "pending", "order_abc", ""))

	// Compare-and-swap to failed.
	mock.ExpectExec(`UPDATE "payments"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// The booking behind it was already confirmed elsewhere, so the failed
	// callback must not tear it down.
	mock.ExpectQuery(`SELECT (.+) FROM "bookings"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "property_id", "status"}).
			AddRow(3, 1, 2, "confirmed"))

	verified, err := svc.Verify(context.Background(), "order_abc", "pay_1", "tampered")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verified {
		t.Error("tampered signature must not verify")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestVerifyValidSignatureCompletesPayment(t *testing.T) {
	db, mock := newTestDB(t)
	svc := newTestPaymentService(db, &fakeGateway{})

	mock.ExpectQuery(`SELECT (.+) FROM "payments"`).
		WillReturnRows(sqlmock.NewRows(paymentColumns()).
			AddRow(7, 1, 3, "150.00", "pending", "order_abc", ""))

	mock.ExpectExec(`UPDATE "payments"`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Booking confirm CAS loses against a concurrent confirm, which is fine.
	mock.ExpectExec(`UPDATE "bookings"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	verified, err := svc.Verify(context.Background(), "order_abc", "pay_1", "sig")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verified {
		t.Error("valid signature must verify")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestVerifyLosesCompletionRace(t *testing.T) {
	db, mock := newTestDB(t)
	svc := newTestPaymentService(db, &fakeGateway{})

	mock.ExpectQuery(`SELECT (.+) FROM "payments"`).
		WillReturnRows(sqlmock.NewRows(paymentColumns()).
			AddRow(7, 1, 3, "150.00", "pending", "order_abc", ""))

	// Another delivery of the same callback got there first.
	mock.ExpectExec(`UPDATE "payments"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	verified, err := svc.Verify(context.Background(), "order_abc", "pay_1", "sig")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verified {
		t.Error("losing the completion race still means the payment is settled")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
