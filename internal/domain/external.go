/**
 * @description
 * This file defines the external transaction record: an operator-reported
 * bank transfer or blockchain transaction observed on a rail we cannot
 * control. Records are immutable once stored except for the match
 * annotation, which makes replays of the same report safe.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentRail distinguishes the two external signal sources.
type PaymentRail string

const (
	RailBank   PaymentRail = "bank"
	RailCrypto PaymentRail = "crypto"
)

// MatchOutcome is the matcher's verdict for one reported transaction.
type MatchOutcome string

const (
	OutcomeMatched     MatchOutcome = "MATCHED"
	OutcomeOverpayment MatchOutcome = "MATCHED_WITH_OVERPAYMENT"
	OutcomeUnderpaid   MatchOutcome = "UNDERPAYMENT"
	OutcomeUnmatched   MatchOutcome = "UNMATCHED"
)

// Advances reports whether the outcome moves the matched order to
// PAYMENT_RECEIVED. Underpayments never advance state; the surplus of an
// overpayment is flagged, not auto-refunded.
func (o MatchOutcome) Advances() bool {
	return o == OutcomeMatched || o == OutcomeOverpayment
}

// ExternalTransactionRecord maps to the `external_transactions` table. The
// ID is the bank transaction id or chain tx hash and is the idempotency key
// for recording.
type ExternalTransactionRecord struct {
	ID             string        `json:"id"`
	Rail           PaymentRail   `json:"rail"`
	Amount         int64         `json:"amount"` // in cents
	Currency       string        `json:"currency"`
	Network        CryptoNetwork `json:"network,omitempty"`
	Counterparty   string        `json:"counterparty"` // sender info or wallet address
	Reference      string        `json:"reference"`    // free-text memo as reported
	Confirmations  int           `json:"confirmations,omitempty"`
	Matched        bool          `json:"matched"`
	MatchedOrderID *uuid.UUID    `json:"matched_order_id,omitempty"`
	Outcome        MatchOutcome  `json:"outcome"`
	Surplus        int64         `json:"surplus,omitempty"` // cents above tolerance, when overpaid
	RecordedAt     time.Time     `json:"recorded_at"`
}
