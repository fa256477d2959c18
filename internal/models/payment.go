package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodNetBanking PaymentMethod = "net_banking"
	PaymentMethodUPI        PaymentMethod = "upi"
)

// paymentTransitions mirrors the booking table: one place that decides
// which status moves are legal.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted: {PaymentStatusRefunded},
	PaymentStatusFailed:    {},
	PaymentStatusRefunded:  {},
}

// CanTransition reports whether a payment may move from one status to another.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s PaymentStatus) IsTerminal() bool {
	return len(paymentTransitions[s]) == 0
}

type Payment struct {
	gorm.Model
	UserID            uint            `json:"userId" gorm:"not null;index:idx_payments_user_status"`
	User              User            `json:"user"`
	BookingID         uint            `json:"bookingId" gorm:"not null;index"`
	Booking           Booking         `json:"booking"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:numeric(10,2);not null"`
	Method            PaymentMethod   `json:"method"`
	Status            PaymentStatus   `json:"status" gorm:"not null;default:'pending';index:idx_payments_user_status"`
	RazorpayOrderID   string          `json:"razorpayOrderId,omitempty" gorm:"uniqueIndex:idx_payments_order_id,where:razorpay_order_id <> ''"`
	RazorpayPaymentID string          `json:"razorpayPaymentId,omitempty" gorm:"uniqueIndex:idx_payments_payment_id,where:razorpay_payment_id <> ''"`
	RazorpaySignature string          `json:"-"`
	GatewayResponse   datatypes.JSON  `json:"-"`
}
