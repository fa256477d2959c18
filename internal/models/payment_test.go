package models

import "testing"

func TestPaymentStatusCanTransition(t *testing.T) {
	tests := []struct {
		from    PaymentStatus
		to      PaymentStatus
		allowed bool
	}{
		{PaymentStatusPending, PaymentStatusCompleted, true},
		{PaymentStatusPending, PaymentStatusFailed, true},
		{PaymentStatusPending, PaymentStatusRefunded, false},
		{PaymentStatusCompleted, PaymentStatusRefunded, true},
		{PaymentStatusCompleted, PaymentStatusFailed, false},
		{PaymentStatusCompleted, PaymentStatusPending, false},
		{PaymentStatusFailed, PaymentStatusCompleted, false},
		{PaymentStatusFailed, PaymentStatusRefunded, false},
		{PaymentStatusRefunded, PaymentStatusCompleted, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestPaymentStatusIsTerminal(t *testing.T) {
	if PaymentStatusPending.IsTerminal() {
		t.Error("pending should not be terminal")
	}
	if PaymentStatusCompleted.IsTerminal() {
		t.Error("completed should not be terminal, refund is still possible")
	}
	if !PaymentStatusFailed.IsTerminal() {
		t.Error("failed should be terminal")
	}
	if !PaymentStatusRefunded.IsTerminal() {
		t.Error("refunded should be terminal")
	}
}
