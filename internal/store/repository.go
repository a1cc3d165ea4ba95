/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the commerce-service. By
 * defining an interface, we decouple the application's business logic from
 * the specific database implementation, making the code more modular and
 * easier to test.
 *
 * @notes
 * - Methods suffixed `Atomic` perform a guarded read-modify-write as a
 *   single unit of work: the state-machine checks run inside the same
 *   transaction (or critical section) as the mutation, which is what closes
 *   the double-sale and uncredited-seller races.
 * - Guard violations come back as wrapped domain error kinds (ErrConflict,
 *   ErrInvalidState, ...) so callers can map them without string matching.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fera-art/commerce-service/internal/domain"
)

// Repository defines the set of methods for interacting with the datastore.
type Repository interface {
	// User and balance methods
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	// CreditBalance atomically increments a user's internal balance.
	CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error
	// WithdrawBalanceAtomic checks funds, debits the balance and appends the
	// pending withdrawal ledger entry in one unit of work.
	WithdrawBalanceAtomic(ctx context.Context, userID uuid.UUID, amount, fee int64, details string) (*domain.LedgerEntry, error)

	// Asset registry methods
	CreateAsset(ctx context.Context, asset *domain.Asset) error
	FindAssetByID(ctx context.Context, assetID uuid.UUID) (*domain.Asset, error)
	ListAssetsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Asset, error)
	// ClaimAssetAtomic is the compare-and-set at the core of exactly-once
	// ownership: Available/Refunded -> Owned(buyer) or ErrConflict.
	ClaimAssetAtomic(ctx context.Context, assetID, buyerID uuid.UUID, price int64) error
	// MarkAssetUsed irreversibly locks the asset out of commerce.
	MarkAssetUsed(ctx context.Context, assetID, ownerID uuid.UUID) error
	// RefundAssetAtomic reverts Owned -> Refunded, clears the owner, credits
	// the owner's balance with the acquisition price and appends the refund
	// ledger entry. Returns the refunded amount.
	RefundAssetAtomic(ctx context.Context, assetID, ownerID uuid.UUID) (int64, error)

	// Payment order methods
	// CreateOrderIdempotent returns the existing PENDING_PAYMENT order for
	// the (buyer, asset) pair when one exists; otherwise it inserts the given
	// order. A duplicate active reference fails with ErrConflict so the
	// caller can regenerate and retry.
	CreateOrderIdempotent(ctx context.Context, order *domain.PaymentOrder) (*domain.PaymentOrder, bool, error)
	FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.PaymentOrder, error)
	ListOrders(ctx context.Context) ([]domain.PaymentOrder, error)
	ListOpenOrders(ctx context.Context) ([]domain.PaymentOrder, error)
	ListExpiredPendingOrders(ctx context.Context, now time.Time) ([]domain.PaymentOrder, error)
	// ExpireOrder transitions PENDING_PAYMENT -> EXPIRED; a no-op returning
	// the current order when another reader already expired it.
	ExpireOrder(ctx context.Context, orderID uuid.UUID) (*domain.PaymentOrder, error)
	CancelOrder(ctx context.Context, orderID, buyerID uuid.UUID) (*domain.PaymentOrder, error)
	// MarkOrderPaymentReceived transitions PENDING_PAYMENT ->
	// PAYMENT_RECEIVED and links the matched external transaction.
	MarkOrderPaymentReceived(ctx context.Context, orderID uuid.UUID, txID string) (*domain.PaymentOrder, error)
	// DeliverOrderAtomic is the single point where money and ownership join:
	// order -> CONFIRMED -> DELIVERED, asset claimed for the buyer, purchase
	// ledger entry appended, all in one unit of work.
	DeliverOrderAtomic(ctx context.Context, orderID uuid.UUID) (*domain.PaymentOrder, *domain.LedgerEntry, error)
	// RefundOrderAtomic transitions a paid order to REFUNDED, reverts the
	// asset to Available and appends a pending refund ledger entry. It
	// records the obligation only; settlement on the rail is manual.
	RefundOrderAtomic(ctx context.Context, orderID uuid.UUID, amount int64, reason string) (*domain.PaymentOrder, *domain.LedgerEntry, error)

	// External transaction methods
	// RecordExternalTransaction inserts the record or, when the transaction
	// id was already recorded, returns the stored record so replays are
	// answered without re-matching.
	RecordExternalTransaction(ctx context.Context, rec *domain.ExternalTransactionRecord) (*domain.ExternalTransactionRecord, error)
	FindExternalTransaction(ctx context.Context, txID string) (*domain.ExternalTransactionRecord, error)
	AnnotateTransactionMatch(ctx context.Context, txID string, orderID *uuid.UUID, outcome domain.MatchOutcome, surplus int64) error
	ListUnmatchedTransactions(ctx context.Context) ([]domain.ExternalTransactionRecord, error)

	// Marketplace methods
	// CreateListingAtomic re-checks the asset guards (owner, not Used, not
	// Transferred) inside the unit of work, moves the asset to Listed and
	// inserts the listing.
	CreateListingAtomic(ctx context.Context, listing *domain.MarketplaceListing) error
	FindListingByID(ctx context.Context, listingID uuid.UUID) (*domain.MarketplaceListing, error)
	ListActiveListings(ctx context.Context) ([]domain.MarketplaceListing, error)
	// PurchaseListingAtomic settles a resale: transfers ownership, credits
	// the seller's balance with price - commission, closes the listing and
	// appends the resale ledger entry, all in one unit of work.
	PurchaseListingAtomic(ctx context.Context, listingID, buyerID uuid.UUID) (*domain.MarketplaceListing, *domain.LedgerEntry, error)
	CancelListingAtomic(ctx context.Context, listingID, sellerID uuid.UUID) (*domain.MarketplaceListing, error)

	// Ledger methods
	AppendLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error
	ListLedgerEntriesByUser(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error)
	UpdateLedgerEntryStatus(ctx context.Context, entryID uuid.UUID, status domain.LedgerEntryStatus) error
}
