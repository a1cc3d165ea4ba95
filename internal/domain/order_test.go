package domain

import (
	"regexp"
	"testing"
	"time"
)

func TestCanTransitionOrder(t *testing.T) {
	tests := []struct {
		name string
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{"pending to payment received", OrderPendingPayment, OrderPaymentReceived, true},
		{"pending to confirmed is the operator short-circuit", OrderPendingPayment, OrderConfirmed, true},
		{"pending to expired", OrderPendingPayment, OrderExpired, true},
		{"pending to cancelled", OrderPendingPayment, OrderCancelled, true},
		{"payment received to confirmed", OrderPaymentReceived, OrderConfirmed, true},
		{"payment received to refunded", OrderPaymentReceived, OrderRefunded, true},
		{"confirmed to delivered", OrderConfirmed, OrderDelivered, true},
		{"delivered to refunded", OrderDelivered, OrderRefunded, true},
		{"pending cannot skip to delivered", OrderPendingPayment, OrderDelivered, false},
		{"payment received cannot expire", OrderPaymentReceived, OrderExpired, false},
		{"payment received cannot be cancelled", OrderPaymentReceived, OrderCancelled, false},
		{"expired is terminal", OrderExpired, OrderPaymentReceived, false},
		{"cancelled is terminal", OrderCancelled, OrderPendingPayment, false},
		{"refunded is terminal", OrderRefunded, OrderConfirmed, false},
		{"delivered cannot revert", OrderDelivered, OrderPendingPayment, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransitionOrder(tt.from, tt.to); got != tt.want {
				t.Fatalf("CanTransitionOrder(%s, %s) = %t, want %t", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{OrderExpired, OrderCancelled, OrderRefunded, OrderDelivered}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []OrderStatus{OrderPendingPayment, OrderPaymentReceived, OrderConfirmed} {
		if s.Terminal() {
			t.Fatalf("expected %s to not be terminal", s)
		}
	}
}

func TestNewOrderReferenceFormat(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^IAG-2024-[0-9a-f]{6}-[ABCDEFGHJKLMNPQRSTUVWXYZ23456789]{6}$`)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		ref := NewOrderReference(now)
		if !pattern.MatchString(ref) {
			t.Fatalf("reference %q does not match the expected format", ref)
		}
		if seen[ref] {
			t.Fatalf("reference %q generated twice in 200 draws", ref)
		}
		seen[ref] = true
	}
}

func TestOrderExpiredAt(t *testing.T) {
	now := time.Now()
	order := PaymentOrder{Status: OrderPendingPayment, ExpiresAt: now.Add(time.Hour)}
	if order.ExpiredAt(now) {
		t.Fatal("order within its deadline should not be expired")
	}
	if !order.ExpiredAt(now.Add(2 * time.Hour)) {
		t.Fatal("pending order past its deadline should be expired")
	}

	delivered := PaymentOrder{Status: OrderDelivered, ExpiresAt: now.Add(-time.Hour)}
	if delivered.ExpiredAt(now) {
		t.Fatal("expiry only applies to pending orders")
	}
}
