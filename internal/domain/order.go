/**
 * @description
 * This file defines the payment order model: the per-purchase record that a
 * buyer settles out-of-band by quoting the order's unique reference in a
 * bank memo or crypto note. The order state machine is the heart of the
 * reconciliation engine.
 *
 * @notes
 * - The reference is only guaranteed unique among active (PENDING_PAYMENT)
 *   orders; terminal orders release their reference.
 * - Total = base price + license protection fee, fixed at creation.
 */

package domain

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of a payment order.
type OrderStatus string

const (
	OrderPendingPayment  OrderStatus = "PENDING_PAYMENT"
	OrderPaymentReceived OrderStatus = "PAYMENT_RECEIVED"
	OrderConfirmed       OrderStatus = "CONFIRMED"
	OrderDelivered       OrderStatus = "DELIVERED"
	OrderExpired         OrderStatus = "EXPIRED"
	OrderCancelled       OrderStatus = "CANCELLED"
	OrderRefunded        OrderStatus = "REFUNDED"
)

var orderValidNext = map[OrderStatus]map[OrderStatus]bool{
	OrderPendingPayment:  {OrderPaymentReceived: true, OrderConfirmed: true, OrderExpired: true, OrderCancelled: true},
	OrderPaymentReceived: {OrderConfirmed: true, OrderRefunded: true},
	OrderConfirmed:       {OrderDelivered: true, OrderRefunded: true},
	OrderDelivered:       {OrderRefunded: true},
	OrderExpired:         {},
	OrderCancelled:       {},
	OrderRefunded:        {},
}

// CanTransitionOrder reports whether an order may move between two states.
func CanTransitionOrder(from, to OrderStatus) bool {
	return orderValidNext[from][to]
}

// Terminal reports whether the status releases the order's reference.
func (s OrderStatus) Terminal() bool {
	return s == OrderExpired || s == OrderCancelled || s == OrderRefunded || s == OrderDelivered
}

// PaymentChannel identifies the external rail the buyer pays on.
type PaymentChannel string

const (
	ChannelBank   PaymentChannel = "bank"
	ChannelCrypto PaymentChannel = "crypto"
)

// CryptoNetwork is the sub-network for USDT payments.
type CryptoNetwork string

const (
	NetworkTRC20 CryptoNetwork = "trc20"
	NetworkERC20 CryptoNetwork = "erc20"
	NetworkBEP20 CryptoNetwork = "bep20"
)

// ValidCryptoNetwork reports whether the platform accepts USDT on network.
func ValidCryptoNetwork(network CryptoNetwork) bool {
	switch network {
	case NetworkTRC20, NetworkERC20, NetworkBEP20:
		return true
	}
	return false
}

const (
	CurrencyEUR  = "EUR"
	CurrencyUSDT = "USDT"
)

// PaymentOrder represents one purchase attempt awaiting external settlement.
// It maps to the `payment_orders` table.
type PaymentOrder struct {
	ID           uuid.UUID      `json:"id"`
	Reference    string         `json:"reference"`
	BuyerID      uuid.UUID      `json:"buyer_id"`
	AssetID      uuid.UUID      `json:"asset_id"`
	BasePrice    int64          `json:"base_price"`  // in cents
	LicenseFee   int64          `json:"license_fee"` // 5% of base price, non-refundable
	TotalAmount  int64          `json:"total_amount"`
	Currency     string         `json:"currency"`
	Channel      PaymentChannel `json:"channel"`
	Network      CryptoNetwork  `json:"network,omitempty"`
	Status       OrderStatus    `json:"status"`
	MatchedTxIDs []string       `json:"matched_tx_ids,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ExpiredAt reports whether the order should be considered expired when read
// at the given instant. Expiry only ever applies to PENDING_PAYMENT orders.
func (o *PaymentOrder) ExpiredAt(now time.Time) bool {
	return o.Status == OrderPendingPayment && now.After(o.ExpiresAt)
}

const referencePrefix = "IAG"

const upperAlnum = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewOrderReference builds a payer-typable code of the form
// IAG-2024-a1b2c3-X7KQ2M. The two random segments give enough entropy that
// collisions among active orders are rare; creation still retries on one.
func NewOrderReference(now time.Time) string {
	return fmt.Sprintf("%s-%d-%s-%s", referencePrefix, now.Year(), randHex(6), randFrom(upperAlnum, 6))
}

func randHex(n int) string {
	const hexDigits = "0123456789abcdef"
	return randFrom(hexDigits, n)
}

func randFrom(charset string, n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the process is in a bad way; fall back to
		// the uuid package's generator rather than returning a fixed string.
		copy(buf, []byte(uuid.NewString()))
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = charset[int(buf[i])%len(charset)]
	}
	return string(out)
}
