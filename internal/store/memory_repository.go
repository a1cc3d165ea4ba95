/**
 * @description
 * In-memory implementation of the `Repository` interface, guarded by a
 * single mutex. It backs the unit tests and local runs without Postgres;
 * every guard matches the SQL implementation so tests exercise the same
 * state machine the production store enforces.
 */

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fera-art/commerce-service/internal/domain"
)

// MemoryRepository keeps every table as a map under one lock. The lock is
// the in-memory stand-in for the row locks the Postgres store takes.
type MemoryRepository struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*domain.User
	assets   map[uuid.UUID]*domain.Asset
	orders   map[uuid.UUID]*domain.PaymentOrder
	txs      map[string]*domain.ExternalTransactionRecord
	listings map[uuid.UUID]*domain.MarketplaceListing
	ledger   []*domain.LedgerEntry
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[uuid.UUID]*domain.User),
		assets:   make(map[uuid.UUID]*domain.Asset),
		orders:   make(map[uuid.UUID]*domain.PaymentOrder),
		txs:      make(map[string]*domain.ExternalTransactionRecord),
		listings: make(map[uuid.UUID]*domain.MarketplaceListing),
	}
}

var _ Repository = (*MemoryRepository)(nil)

func copyUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

func copyAsset(a *domain.Asset) *domain.Asset {
	c := *a
	if a.OwnerID != nil {
		id := *a.OwnerID
		c.OwnerID = &id
	}
	c.Tags = append([]string(nil), a.Tags...)
	return &c
}

func copyOrder(o *domain.PaymentOrder) *domain.PaymentOrder {
	c := *o
	c.MatchedTxIDs = append([]string(nil), o.MatchedTxIDs...)
	return &c
}

func copyTx(t *domain.ExternalTransactionRecord) *domain.ExternalTransactionRecord {
	c := *t
	if t.MatchedOrderID != nil {
		id := *t.MatchedOrderID
		c.MatchedOrderID = &id
	}
	return &c
}

func copyListing(l *domain.MarketplaceListing) *domain.MarketplaceListing {
	c := *l
	return &c
}

func copyEntry(e *domain.LedgerEntry) *domain.LedgerEntry {
	c := *e
	return &c
}

// ---- users ----

func (r *MemoryRepository) FindUserByID(_ context.Context, userID uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}
	return copyUser(u), nil
}

func (r *MemoryRepository) CreateUser(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = copyUser(user)
	return nil
}

func (r *MemoryRepository) CreditBalance(_ context.Context, userID uuid.UUID, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}
	u.Balance += amount
	return nil
}

func (r *MemoryRepository) WithdrawBalanceAtomic(_ context.Context, userID uuid.UUID, amount, fee int64, details string) (*domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}
	if u.Balance < amount {
		return nil, fmt.Errorf("%w: balance %d below withdrawal amount %d", domain.ErrValidation, u.Balance, amount)
	}
	u.Balance -= amount

	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		Type:      domain.LedgerWithdrawal,
		Amount:    amount,
		Fee:       fee,
		PayerID:   &userID,
		Status:    domain.LedgerPending,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	r.ledger = append(r.ledger, entry)
	return copyEntry(entry), nil
}

// ---- assets ----

func (r *MemoryRepository) CreateAsset(_ context.Context, asset *domain.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[asset.ID] = copyAsset(asset)
	return nil
}

func (r *MemoryRepository) FindAssetByID(_ context.Context, assetID uuid.UUID) (*domain.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[assetID]
	if !ok {
		return nil, fmt.Errorf("%w: asset %s", domain.ErrNotFound, assetID)
	}
	return copyAsset(a), nil
}

func (r *MemoryRepository) ListAssetsByOwner(_ context.Context, ownerID uuid.UUID) ([]domain.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Asset
	for _, a := range r.assets {
		if a.OwnedBy(ownerID) {
			out = append(out, *copyAsset(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *MemoryRepository) ClaimAssetAtomic(_ context.Context, assetID, buyerID uuid.UUID, price int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[assetID]
	if !ok {
		return fmt.Errorf("%w: asset %s", domain.ErrNotFound, assetID)
	}
	if !a.Acquirable() {
		return fmt.Errorf("%w: asset %s is %s, another acquisition won", domain.ErrConflict, assetID, a.State)
	}
	a.State = domain.AssetOwned
	owner := buyerID
	a.OwnerID = &owner
	a.AcquisitionPrice = price
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) MarkAssetUsed(_ context.Context, assetID, ownerID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[assetID]
	if !ok {
		return fmt.Errorf("%w: asset %s", domain.ErrNotFound, assetID)
	}
	if !a.OwnedBy(ownerID) {
		return fmt.Errorf("%w: caller does not own asset %s", domain.ErrUnauthorized, assetID)
	}
	if a.State != domain.AssetOwned {
		return fmt.Errorf("%w: asset %s is %s, cannot mark used", domain.ErrInvalidState, assetID, a.State)
	}
	a.State = domain.AssetUsed
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryRepository) RefundAssetAtomic(_ context.Context, assetID, ownerID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[assetID]
	if !ok {
		return 0, fmt.Errorf("%w: asset %s", domain.ErrNotFound, assetID)
	}
	if !a.OwnedBy(ownerID) {
		return 0, fmt.Errorf("%w: caller does not own asset %s", domain.ErrUnauthorized, assetID)
	}
	if a.State == domain.AssetUsed {
		return 0, fmt.Errorf("%w: asset already used, cannot refund", domain.ErrInvalidState)
	}
	if a.State != domain.AssetOwned {
		return 0, fmt.Errorf("%w: asset %s is %s, cannot refund", domain.ErrInvalidState, assetID, a.State)
	}
	if a.Transferred {
		return 0, fmt.Errorf("%w: asset was transferred, cannot refund", domain.ErrInvalidState)
	}

	u, ok := r.users[ownerID]
	if !ok {
		return 0, fmt.Errorf("%w: user %s", domain.ErrNotFound, ownerID)
	}

	refund := a.AcquisitionPrice
	a.State = domain.AssetRefunded
	a.OwnerID = nil
	a.AcquisitionPrice = 0
	a.UpdatedAt = time.Now().UTC()
	u.Balance += refund

	r.ledger = append(r.ledger, &domain.LedgerEntry{
		ID:        uuid.New(),
		Type:      domain.LedgerRefund,
		Amount:    refund,
		PayeeID:   &ownerID,
		AssetID:   &assetID,
		Status:    domain.LedgerCompleted,
		Details:   "asset refund, license protection fee retained",
		CreatedAt: time.Now().UTC(),
	})
	return refund, nil
}

// ---- payment orders ----

func (r *MemoryRepository) CreateOrderIdempotent(_ context.Context, order *domain.PaymentOrder) (*domain.PaymentOrder, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.Status != domain.OrderPendingPayment {
			continue
		}
		if o.BuyerID == order.BuyerID && o.AssetID == order.AssetID {
			return copyOrder(o), true, nil
		}
		if o.Reference == order.Reference {
			return nil, false, fmt.Errorf("%w: duplicate active reference %s", domain.ErrConflict, order.Reference)
		}
	}
	r.orders[order.ID] = copyOrder(order)
	return copyOrder(order), false, nil
}

func (r *MemoryRepository) FindOrderByID(_ context.Context, orderID uuid.UUID) (*domain.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	return copyOrder(o), nil
}

func (r *MemoryRepository) listOrders(filter func(*domain.PaymentOrder) bool, ascending bool) []domain.PaymentOrder {
	var out []domain.PaymentOrder
	for _, o := range r.orders {
		if filter == nil || filter(o) {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *MemoryRepository) ListOrders(_ context.Context) ([]domain.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listOrders(nil, false), nil
}

func (r *MemoryRepository) ListOpenOrders(_ context.Context) ([]domain.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listOrders(func(o *domain.PaymentOrder) bool {
		return o.Status == domain.OrderPendingPayment
	}, true), nil
}

func (r *MemoryRepository) ListExpiredPendingOrders(_ context.Context, now time.Time) ([]domain.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listOrders(func(o *domain.PaymentOrder) bool {
		return o.Status == domain.OrderPendingPayment && now.After(o.ExpiresAt)
	}, true), nil
}

func (r *MemoryRepository) ExpireOrder(_ context.Context, orderID uuid.UUID) (*domain.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	if o.Status == domain.OrderPendingPayment {
		o.Status = domain.OrderExpired
		o.UpdatedAt = time.Now().UTC()
	}
	return copyOrder(o), nil
}

func (r *MemoryRepository) CancelOrder(_ context.Context, orderID, buyerID uuid.UUID) (*domain.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	if o.BuyerID != buyerID {
		return nil, fmt.Errorf("%w: order %s does not belong to caller", domain.ErrUnauthorized, orderID)
	}
	if o.Status != domain.OrderPendingPayment {
		return nil, fmt.Errorf("%w: order is %s, only PENDING_PAYMENT orders can be cancelled", domain.ErrInvalidState, o.Status)
	}
	o.Status = domain.OrderCancelled
	o.UpdatedAt = time.Now().UTC()
	return copyOrder(o), nil
}

func (r *MemoryRepository) MarkOrderPaymentReceived(_ context.Context, orderID uuid.UUID, txID string) (*domain.PaymentOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	if o.Status != domain.OrderPendingPayment {
		return nil, fmt.Errorf("%w: order is %s, cannot mark payment received", domain.ErrInvalidState, o.Status)
	}
	if o.ExpiredAt(time.Now()) {
		return nil, fmt.Errorf("%w: order expired before payment was received", domain.ErrInvalidState)
	}
	o.Status = domain.OrderPaymentReceived
	o.MatchedTxIDs = append(o.MatchedTxIDs, txID)
	o.UpdatedAt = time.Now().UTC()
	if t, ok := r.txs[txID]; ok {
		t.Matched = true
		id := orderID
		t.MatchedOrderID = &id
	}
	return copyOrder(o), nil
}

func (r *MemoryRepository) DeliverOrderAtomic(_ context.Context, orderID uuid.UUID) (*domain.PaymentOrder, *domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	if o.Status != domain.OrderPendingPayment && o.Status != domain.OrderPaymentReceived {
		return nil, nil, fmt.Errorf("%w: order is %s, cannot confirm", domain.ErrInvalidState, o.Status)
	}
	if o.ExpiredAt(time.Now()) {
		return nil, nil, fmt.Errorf("%w: order expired, cannot confirm", domain.ErrInvalidState)
	}

	a, ok := r.assets[o.AssetID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: asset %s", domain.ErrNotFound, o.AssetID)
	}
	if !a.Acquirable() {
		return nil, nil, fmt.Errorf("%w: asset %s is %s, another acquisition won", domain.ErrConflict, a.ID, a.State)
	}

	a.State = domain.AssetOwned
	owner := o.BuyerID
	a.OwnerID = &owner
	a.AcquisitionPrice = o.BasePrice
	a.UpdatedAt = time.Now().UTC()

	o.Status = domain.OrderDelivered
	o.UpdatedAt = time.Now().UTC()

	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		Type:      domain.LedgerPurchase,
		Amount:    o.TotalAmount,
		Fee:       o.LicenseFee,
		PayerID:   &o.BuyerID,
		AssetID:   &o.AssetID,
		OrderID:   &o.ID,
		Status:    domain.LedgerCompleted,
		Details:   fmt.Sprintf("primary purchase via %s, reference %s", o.Channel, o.Reference),
		CreatedAt: time.Now().UTC(),
	}
	r.ledger = append(r.ledger, entry)
	return copyOrder(o), copyEntry(entry), nil
}

func (r *MemoryRepository) RefundOrderAtomic(_ context.Context, orderID uuid.UUID, amount int64, reason string) (*domain.PaymentOrder, *domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	switch o.Status {
	case domain.OrderPaymentReceived, domain.OrderConfirmed, domain.OrderDelivered:
	default:
		return nil, nil, fmt.Errorf("%w: order is %s, cannot refund", domain.ErrInvalidState, o.Status)
	}

	if amount <= 0 {
		amount = o.BasePrice
	}

	if a, ok := r.assets[o.AssetID]; ok && a.OwnedBy(o.BuyerID) {
		if a.State == domain.AssetUsed {
			return nil, nil, fmt.Errorf("%w: asset already used, cannot refund", domain.ErrInvalidState)
		}
		a.State = domain.AssetAvailable
		a.OwnerID = nil
		a.AcquisitionPrice = 0
		a.UpdatedAt = time.Now().UTC()
	}

	o.Status = domain.OrderRefunded
	o.UpdatedAt = time.Now().UTC()

	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		Type:      domain.LedgerRefund,
		Amount:    amount,
		PayeeID:   &o.BuyerID,
		AssetID:   &o.AssetID,
		OrderID:   &o.ID,
		Status:    domain.LedgerPending,
		Details:   reason,
		CreatedAt: time.Now().UTC(),
	}
	r.ledger = append(r.ledger, entry)
	return copyOrder(o), copyEntry(entry), nil
}

// ---- external transactions ----

func (r *MemoryRepository) RecordExternalTransaction(_ context.Context, rec *domain.ExternalTransactionRecord) (*domain.ExternalTransactionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.txs[rec.ID]; ok {
		return copyTx(existing), nil
	}
	r.txs[rec.ID] = copyTx(rec)
	return nil, nil
}

func (r *MemoryRepository) FindExternalTransaction(_ context.Context, txID string) (*domain.ExternalTransactionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[txID]
	if !ok {
		return nil, fmt.Errorf("%w: external transaction %s", domain.ErrNotFound, txID)
	}
	return copyTx(t), nil
}

func (r *MemoryRepository) AnnotateTransactionMatch(_ context.Context, txID string, orderID *uuid.UUID, outcome domain.MatchOutcome, surplus int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[txID]
	if !ok {
		return fmt.Errorf("%w: external transaction %s", domain.ErrNotFound, txID)
	}
	t.Matched = outcome.Advances()
	t.MatchedOrderID = orderID
	t.Outcome = outcome
	t.Surplus = surplus
	return nil
}

func (r *MemoryRepository) ListUnmatchedTransactions(_ context.Context) ([]domain.ExternalTransactionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ExternalTransactionRecord
	for _, t := range r.txs {
		if !t.Matched {
			out = append(out, *copyTx(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

// ---- marketplace listings ----

func (r *MemoryRepository) CreateListingAtomic(_ context.Context, listing *domain.MarketplaceListing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[listing.AssetID]
	if !ok {
		return fmt.Errorf("%w: asset %s", domain.ErrNotFound, listing.AssetID)
	}
	if !a.OwnedBy(listing.SellerID) {
		return fmt.Errorf("%w: caller does not own asset %s", domain.ErrUnauthorized, listing.AssetID)
	}
	if a.State == domain.AssetUsed {
		return fmt.Errorf("%w: asset already used, cannot list for sale", domain.ErrInvalidState)
	}
	if a.State != domain.AssetOwned {
		return fmt.Errorf("%w: asset %s is %s, cannot list for sale", domain.ErrInvalidState, listing.AssetID, a.State)
	}
	a.State = domain.AssetListed
	a.UpdatedAt = time.Now().UTC()
	r.listings[listing.ID] = copyListing(listing)
	return nil
}

func (r *MemoryRepository) FindListingByID(_ context.Context, listingID uuid.UUID) (*domain.MarketplaceListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[listingID]
	if !ok {
		return nil, fmt.Errorf("%w: listing %s", domain.ErrNotFound, listingID)
	}
	return copyListing(l), nil
}

func (r *MemoryRepository) ListActiveListings(_ context.Context) ([]domain.MarketplaceListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.MarketplaceListing
	for _, l := range r.listings {
		if l.Status == domain.ListingActive {
			out = append(out, *copyListing(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) PurchaseListingAtomic(_ context.Context, listingID, buyerID uuid.UUID) (*domain.MarketplaceListing, *domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[listingID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: listing %s", domain.ErrNotFound, listingID)
	}
	if l.Status != domain.ListingActive {
		return nil, nil, fmt.Errorf("%w: listing is %s, cannot buy", domain.ErrInvalidState, l.Status)
	}
	if l.SellerID == buyerID {
		return nil, nil, fmt.Errorf("%w: cannot buy your own listing", domain.ErrValidation)
	}

	a, ok := r.assets[l.AssetID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: asset %s", domain.ErrNotFound, l.AssetID)
	}
	if a.State != domain.AssetListed || !a.OwnedBy(l.SellerID) {
		return nil, nil, fmt.Errorf("%w: asset %s no longer held by seller", domain.ErrConflict, a.ID)
	}
	seller, ok := r.users[l.SellerID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, l.SellerID)
	}

	proceeds := l.SalePrice - l.Commission

	a.State = domain.AssetOwned
	owner := buyerID
	a.OwnerID = &owner
	a.AcquisitionPrice = l.SalePrice
	a.Transferred = true
	a.UpdatedAt = time.Now().UTC()

	seller.Balance += proceeds
	l.Status = domain.ListingSold
	l.UpdatedAt = time.Now().UTC()

	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		Type:      domain.LedgerResale,
		Amount:    l.SalePrice,
		Fee:       l.Commission,
		PayerID:   &owner,
		PayeeID:   &l.SellerID,
		AssetID:   &l.AssetID,
		Status:    domain.LedgerCompleted,
		Details:   "peer-to-peer resale, internal settlement",
		CreatedAt: time.Now().UTC(),
	}
	r.ledger = append(r.ledger, entry)
	return copyListing(l), copyEntry(entry), nil
}

func (r *MemoryRepository) CancelListingAtomic(_ context.Context, listingID, sellerID uuid.UUID) (*domain.MarketplaceListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[listingID]
	if !ok {
		return nil, fmt.Errorf("%w: listing %s", domain.ErrNotFound, listingID)
	}
	if l.SellerID != sellerID {
		return nil, fmt.Errorf("%w: listing %s does not belong to caller", domain.ErrUnauthorized, listingID)
	}
	if l.Status != domain.ListingActive {
		return nil, fmt.Errorf("%w: listing is %s, cannot cancel", domain.ErrInvalidState, l.Status)
	}
	l.Status = domain.ListingCancelled
	l.UpdatedAt = time.Now().UTC()
	if a, ok := r.assets[l.AssetID]; ok && a.State == domain.AssetListed {
		a.State = domain.AssetOwned
		a.UpdatedAt = time.Now().UTC()
	}
	return copyListing(l), nil
}

// ---- ledger ----

func (r *MemoryRepository) AppendLedgerEntry(_ context.Context, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledger = append(r.ledger, copyEntry(entry))
	return nil
}

func (r *MemoryRepository) ListLedgerEntriesByUser(_ context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range r.ledger {
		if (e.PayerID != nil && *e.PayerID == userID) || (e.PayeeID != nil && *e.PayeeID == userID) {
			out = append(out, *copyEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) UpdateLedgerEntryStatus(_ context.Context, entryID uuid.UUID, status domain.LedgerEntryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.ledger {
		if e.ID == entryID {
			e.Status = status
			return nil
		}
	}
	return fmt.Errorf("%w: ledger entry %s", domain.ErrNotFound, entryID)
}

// LedgerEntries returns a snapshot of the full ledger. Test helper.
func (r *MemoryRepository) LedgerEntries() []domain.LedgerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.LedgerEntry, 0, len(r.ledger))
	for _, e := range r.ledger {
		out = append(out, *copyEntry(e))
	}
	return out
}
