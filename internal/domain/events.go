// Event payloads published to RabbitMQ so downstream services (notification,
// analytics) can react to commerce milestones without querying our tables.

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys on the commerce topic exchange.
const (
	EventOrderCreated         = "order.created"
	EventOrderPaymentReceived = "order.payment_received"
	EventOrderDelivered       = "order.delivered"
	EventOrderExpired         = "order.expired"
	EventOrderRefunded        = "order.refunded"
	EventListingSold          = "listing.sold"
	EventLedgerAppended       = "ledger.appended"
)

// OrderEvent is the payload for every order.* routing key.
type OrderEvent struct {
	OrderID   uuid.UUID   `json:"order_id"`
	Reference string      `json:"reference"`
	BuyerID   uuid.UUID   `json:"buyer_id"`
	AssetID   uuid.UUID   `json:"asset_id"`
	Status    OrderStatus `json:"status"`
	Amount    int64       `json:"amount"`
	Timestamp time.Time   `json:"timestamp"`
}

// ListingSoldEvent is published when a resale settles.
type ListingSoldEvent struct {
	ListingID      uuid.UUID `json:"listing_id"`
	AssetID        uuid.UUID `json:"asset_id"`
	SellerID       uuid.UUID `json:"seller_id"`
	BuyerID        uuid.UUID `json:"buyer_id"`
	SalePrice      int64     `json:"sale_price"`
	Commission     int64     `json:"commission"`
	SellerProceeds int64     `json:"seller_proceeds"`
	Timestamp      time.Time `json:"timestamp"`
}

// LedgerEvent mirrors a freshly appended ledger entry.
type LedgerEvent struct {
	EntryID   uuid.UUID       `json:"entry_id"`
	Type      LedgerEntryType `json:"type"`
	Amount    int64           `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// PaymentReport is the message consumed from ingest adapters that observe
// the external rails. It carries exactly what recordBankTransaction /
// recordCryptoTransaction accept over HTTP.
type PaymentReport struct {
	Rail          PaymentRail   `json:"rail"`
	TxID          string        `json:"tx_id"`
	Amount        int64         `json:"amount"`
	Currency      string        `json:"currency"`
	Network       CryptoNetwork `json:"network,omitempty"`
	Counterparty  string        `json:"counterparty"`
	Reference     string        `json:"reference"`
	Confirmations int           `json:"confirmations,omitempty"`
	ObservedAt    time.Time     `json:"observed_at"`
}
