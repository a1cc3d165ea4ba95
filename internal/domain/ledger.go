/**
 * @description
 * This file defines the ledger entry model: the append-only record of every
 * money-moving event in the system and the source of truth for balances.
 *
 * @notes
 * - Entries are never deleted. The only mutation permitted after creation is
 *   a status transition (pending -> completed for withdrawals and manually
 *   settled refunds).
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEntryType classifies a money movement.
type LedgerEntryType string

const (
	LedgerPurchase   LedgerEntryType = "purchase"
	LedgerResale     LedgerEntryType = "resale"
	LedgerRefund     LedgerEntryType = "refund"
	LedgerWithdrawal LedgerEntryType = "withdrawal"
	LedgerAdjustment LedgerEntryType = "manual_adjustment"
)

// LedgerEntryStatus is the settlement status of an entry.
type LedgerEntryStatus string

const (
	LedgerCompleted LedgerEntryStatus = "completed"
	// LedgerPending marks an obligation awaiting manual settlement on the
	// external rail (refunds, withdrawals). The rails are one-way observable,
	// so the entry records the debt; it does not move the money.
	LedgerPending LedgerEntryStatus = "pending"
)

// LedgerEntry maps to the `ledger_entries` table.
type LedgerEntry struct {
	ID        uuid.UUID         `json:"id"`
	Type      LedgerEntryType   `json:"type"`
	Amount    int64             `json:"amount"` // in cents
	Fee       int64             `json:"fee"`    // commission or surcharge, in cents
	PayerID   *uuid.UUID        `json:"payer_id,omitempty"`
	PayeeID   *uuid.UUID        `json:"payee_id,omitempty"`
	AssetID   *uuid.UUID        `json:"asset_id,omitempty"`
	OrderID   *uuid.UUID        `json:"order_id,omitempty"`
	Status    LedgerEntryStatus `json:"status"`
	Details   string            `json:"details,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
