/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL needed to interact with the asset,
 * order, external-transaction, listing and ledger tables.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 *
 * @notes
 * - Every ownership or balance mutation runs inside a transaction with the
 *   affected rows locked (`FOR UPDATE`) so the state-machine guards and the
 *   mutation commit or abort together. No partial commits.
 * - Reference uniqueness among active orders relies on the partial unique
 *   index `payment_orders_reference_active_idx`
 *   (`WHERE status = 'PENDING_PAYMENT'`); the companion index
 *   `payment_orders_buyer_asset_active_idx` closes the idempotent-create
 *   race per (buyer, asset).
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fera-art/commerce-service/internal/domain"
)

const (
	referenceActiveIndex  = "payment_orders_reference_active_idx"
	buyerAssetActiveIndex = "payment_orders_buyer_asset_active_idx"
)

// PostgresRepository is a concrete implementation of the Repository
// interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ---- users ----

func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var u domain.User
	query := `SELECT id, email, name, wallet_address, balance, is_founder_admin, created_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&u.ID, &u.Email, &u.Name, &u.WalletAddress, &u.Balance, &u.IsFounderAdmin, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
		}
		return nil, err
	}
	return &u, nil
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, name, wallet_address, balance, is_founder_admin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, user.ID, user.Email, user.Name, user.WalletAddress, user.Balance, user.IsFounderAdmin, user.CreatedAt)
	return err
}

// CreditBalance increments a user's internal balance as a single statement,
// never as read-then-write.
func (r *PostgresRepository) CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error {
	ct, err := r.db.Exec(ctx, `UPDATE users SET balance = balance + $2 WHERE id = $1`, userID, amount)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}
	return nil
}

func (r *PostgresRepository) WithdrawBalanceAtomic(ctx context.Context, userID uuid.UUID, amount, fee int64, details string) (*domain.LedgerEntry, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
		}
		return nil, err
	}
	if balance < amount {
		return nil, fmt.Errorf("%w: balance %d below withdrawal amount %d", domain.ErrValidation, balance, amount)
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET balance = balance - $2 WHERE id = $1`, userID, amount); err != nil {
		return nil, err
	}

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
	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

// ---- assets ----

const assetColumns = `id, title, artist_name, category, tags, base_price, state, owner_id, acquisition_price, transferred, created_at, updated_at`

func scanAsset(row pgx.Row) (*domain.Asset, error) {
	var a domain.Asset
	var state string
	err := row.Scan(&a.ID, &a.Title, &a.ArtistName, &a.Category, &a.Tags, &a.BasePrice, &state, &a.OwnerID, &a.AcquisitionPrice, &a.Transferred, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.State = domain.AssetState(state)
	return &a, nil
}

func (r *PostgresRepository) CreateAsset(ctx context.Context, asset *domain.Asset) error {
	query := `
		INSERT INTO assets (id, title, artist_name, category, tags, base_price, state, owner_id, acquisition_price, transferred, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		asset.ID, asset.Title, asset.ArtistName, asset.Category, asset.Tags,
		asset.BasePrice, string(asset.State), asset.OwnerID, asset.AcquisitionPrice,
		asset.Transferred, asset.CreatedAt, asset.UpdatedAt)
	return err
}

func (r *PostgresRepository) FindAssetByID(ctx context.Context, assetID uuid.UUID) (*domain.Asset, error) {
	row := r.db.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, assetID)
	a, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: asset %s", domain.ErrNotFound, assetID)
		}
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepository) ListAssetsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Asset, error) {
	rows, err := r.db.Query(ctx, `SELECT `+assetColumns+` FROM assets WHERE owner_id = $1 ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ClaimAssetAtomic claims ownership with a single conditional UPDATE: the
// WHERE clause is the compare of the compare-and-set, RowsAffected the
// commit. Two concurrent buyers cannot both satisfy the state predicate.
func (r *PostgresRepository) ClaimAssetAtomic(ctx context.Context, assetID, buyerID uuid.UUID, price int64) error {
	query := `
		UPDATE assets
		SET state = 'OWNED', owner_id = $2, acquisition_price = $3, updated_at = NOW()
		WHERE id = $1 AND state IN ('AVAILABLE', 'REFUNDED')
	`
	ct, err := r.db.Exec(ctx, query, assetID, buyerID, price)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	// Lost the race or the id is unknown; classify for the caller.
	asset, err := r.FindAssetByID(ctx, assetID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: asset %s is %s, another acquisition won", domain.ErrConflict, assetID, asset.State)
}

func (r *PostgresRepository) MarkAssetUsed(ctx context.Context, assetID, ownerID uuid.UUID) error {
	query := `
		UPDATE assets
		SET state = 'USED', updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND state = 'OWNED'
	`
	ct, err := r.db.Exec(ctx, query, assetID, ownerID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	asset, err := r.FindAssetByID(ctx, assetID)
	if err != nil {
		return err
	}
	if !asset.OwnedBy(ownerID) {
		return fmt.Errorf("%w: caller does not own asset %s", domain.ErrUnauthorized, assetID)
	}
	return fmt.Errorf("%w: asset %s is %s, cannot mark used", domain.ErrInvalidState, assetID, asset.State)
}

func (r *PostgresRepository) RefundAssetAtomic(ctx context.Context, assetID, ownerID uuid.UUID) (int64, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1 FOR UPDATE`, assetID)
	asset, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: asset %s", domain.ErrNotFound, assetID)
		}
		return 0, err
	}

	if !asset.OwnedBy(ownerID) {
		return 0, fmt.Errorf("%w: caller does not own asset %s", domain.ErrUnauthorized, assetID)
	}
	if asset.State == domain.AssetUsed {
		return 0, fmt.Errorf("%w: asset already used, cannot refund", domain.ErrInvalidState)
	}
	if asset.State != domain.AssetOwned {
		return 0, fmt.Errorf("%w: asset %s is %s, cannot refund", domain.ErrInvalidState, assetID, asset.State)
	}
	if asset.Transferred {
		return 0, fmt.Errorf("%w: asset was transferred, cannot refund", domain.ErrInvalidState)
	}

	refund := asset.AcquisitionPrice
	if _, err := tx.Exec(ctx, `
		UPDATE assets
		SET state = 'REFUNDED', owner_id = NULL, acquisition_price = 0, updated_at = NOW()
		WHERE id = $1
	`, assetID); err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET balance = balance + $2 WHERE id = $1`, ownerID, refund); err != nil {
		return 0, err
	}

	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		Type:      domain.LedgerRefund,
		Amount:    refund,
		PayeeID:   &ownerID,
		AssetID:   &assetID,
		Status:    domain.LedgerCompleted,
		Details:   "asset refund, license protection fee retained",
		CreatedAt: time.Now().UTC(),
	}
	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return refund, nil
}

// ---- payment orders ----

const orderColumns = `id, reference, buyer_id, asset_id, base_price, license_fee, total_amount, currency, channel, network, status, matched_tx_ids, created_at, expires_at, updated_at`

func scanOrder(row pgx.Row) (*domain.PaymentOrder, error) {
	var o domain.PaymentOrder
	var channel, network, status string
	err := row.Scan(&o.ID, &o.Reference, &o.BuyerID, &o.AssetID, &o.BasePrice, &o.LicenseFee,
		&o.TotalAmount, &o.Currency, &channel, &network, &status, &o.MatchedTxIDs,
		&o.CreatedAt, &o.ExpiresAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Channel = domain.PaymentChannel(channel)
	o.Network = domain.CryptoNetwork(network)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func (r *PostgresRepository) CreateOrderIdempotent(ctx context.Context, order *domain.PaymentOrder) (*domain.PaymentOrder, bool, error) {
	query := `
		INSERT INTO payment_orders (id, reference, buyer_id, asset_id, base_price, license_fee, total_amount, currency, channel, network, status, matched_tx_ids, created_at, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.Exec(ctx, query,
		order.ID, order.Reference, order.BuyerID, order.AssetID, order.BasePrice,
		order.LicenseFee, order.TotalAmount, order.Currency, string(order.Channel),
		string(order.Network), string(order.Status), order.MatchedTxIDs,
		order.CreatedAt, order.ExpiresAt, order.UpdatedAt)
	if err == nil {
		return order, false, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case buyerAssetActiveIndex:
			// A concurrent (or earlier) create won; hand back its order so
			// repeated client retries see one id and one reference.
			existing, ferr := r.findActiveOrderForPurchase(ctx, order.BuyerID, order.AssetID)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, true, nil
		case referenceActiveIndex:
			return nil, false, fmt.Errorf("%w: duplicate active reference %s", domain.ErrConflict, order.Reference)
		}
	}
	return nil, false, err
}

func (r *PostgresRepository) findActiveOrderForPurchase(ctx context.Context, buyerID, assetID uuid.UUID) (*domain.PaymentOrder, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM payment_orders
		WHERE buyer_id = $1 AND asset_id = $2 AND status = 'PENDING_PAYMENT'
	`, buyerID, assetID)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: active order for buyer %s asset %s", domain.ErrNotFound, buyerID, assetID)
		}
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.PaymentOrder, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE id = $1`, orderID)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
		}
		return nil, err
	}
	return o, nil
}

func (r *PostgresRepository) listOrdersWhere(ctx context.Context, clause string, args ...any) ([]domain.PaymentOrder, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM payment_orders `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PaymentOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListOrders(ctx context.Context) ([]domain.PaymentOrder, error) {
	return r.listOrdersWhere(ctx, `ORDER BY created_at DESC`)
}

func (r *PostgresRepository) ListOpenOrders(ctx context.Context) ([]domain.PaymentOrder, error) {
	// Ascending creation order: the matcher's earliest-created tie-break
	// depends on this ordering.
	return r.listOrdersWhere(ctx, `WHERE status = 'PENDING_PAYMENT' ORDER BY created_at ASC`)
}

func (r *PostgresRepository) ListExpiredPendingOrders(ctx context.Context, now time.Time) ([]domain.PaymentOrder, error) {
	return r.listOrdersWhere(ctx, `WHERE status = 'PENDING_PAYMENT' AND expires_at < $1 ORDER BY created_at ASC`, now)
}

func (r *PostgresRepository) ExpireOrder(ctx context.Context, orderID uuid.UUID) (*domain.PaymentOrder, error) {
	_, err := r.db.Exec(ctx, `
		UPDATE payment_orders SET status = 'EXPIRED', updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING_PAYMENT'
	`, orderID)
	if err != nil {
		return nil, err
	}
	// Zero rows affected means another reader expired it first; both end up
	// returning the same terminal order.
	return r.FindOrderByID(ctx, orderID)
}

func (r *PostgresRepository) CancelOrder(ctx context.Context, orderID, buyerID uuid.UUID) (*domain.PaymentOrder, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE id = $1 FOR UPDATE`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
		}
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, fmt.Errorf("%w: order %s does not belong to caller", domain.ErrUnauthorized, orderID)
	}
	if order.Status != domain.OrderPendingPayment {
		return nil, fmt.Errorf("%w: order is %s, only PENDING_PAYMENT orders can be cancelled", domain.ErrInvalidState, order.Status)
	}

	if _, err := tx.Exec(ctx, `UPDATE payment_orders SET status = 'CANCELLED', updated_at = NOW() WHERE id = $1`, orderID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	order.Status = domain.OrderCancelled
	return order, nil
}

func (r *PostgresRepository) MarkOrderPaymentReceived(ctx context.Context, orderID uuid.UUID, txID string) (*domain.PaymentOrder, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE id = $1 FOR UPDATE`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
		}
		return nil, err
	}
	if order.Status != domain.OrderPendingPayment {
		return nil, fmt.Errorf("%w: order is %s, cannot mark payment received", domain.ErrInvalidState, order.Status)
	}
	if order.ExpiredAt(time.Now()) {
		return nil, fmt.Errorf("%w: order expired before payment was received", domain.ErrInvalidState)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE payment_orders
		SET status = 'PAYMENT_RECEIVED', matched_tx_ids = array_append(matched_tx_ids, $2), updated_at = NOW()
		WHERE id = $1
	`, orderID, txID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE external_transactions SET matched = TRUE, matched_order_id = $2 WHERE id = $1
	`, txID, orderID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	order.Status = domain.OrderPaymentReceived
	order.MatchedTxIDs = append(order.MatchedTxIDs, txID)
	return order, nil
}

func (r *PostgresRepository) DeliverOrderAtomic(ctx context.Context, orderID uuid.UUID) (*domain.PaymentOrder, *domain.LedgerEntry, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE id = $1 FOR UPDATE`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
		}
		return nil, nil, err
	}
	// The operator may short-circuit the matcher and confirm a still-pending
	// order, but never an expired one.
	if order.Status != domain.OrderPendingPayment && order.Status != domain.OrderPaymentReceived {
		return nil, nil, fmt.Errorf("%w: order is %s, cannot confirm", domain.ErrInvalidState, order.Status)
	}
	if order.ExpiredAt(time.Now()) {
		return nil, nil, fmt.Errorf("%w: order expired, cannot confirm", domain.ErrInvalidState)
	}

	assetRow := tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1 FOR UPDATE`, order.AssetID)
	asset, err := scanAsset(assetRow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: asset %s", domain.ErrNotFound, order.AssetID)
		}
		return nil, nil, err
	}
	if !asset.Acquirable() {
		return nil, nil, fmt.Errorf("%w: asset %s is %s, another acquisition won", domain.ErrConflict, asset.ID, asset.State)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE assets
		SET state = 'OWNED', owner_id = $2, acquisition_price = $3, updated_at = NOW()
		WHERE id = $1
	`, order.AssetID, order.BuyerID, order.BasePrice); err != nil {
		return nil, nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE payment_orders SET status = 'DELIVERED', updated_at = NOW() WHERE id = $1
	`, orderID); err != nil {
		return nil, nil, err
	}

	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		Type:      domain.LedgerPurchase,
		Amount:    order.TotalAmount,
		Fee:       order.LicenseFee,
		PayerID:   &order.BuyerID,
		AssetID:   &order.AssetID,
		OrderID:   &order.ID,
		Status:    domain.LedgerCompleted,
		Details:   fmt.Sprintf("primary purchase via %s, reference %s", order.Channel, order.Reference),
		CreatedAt: time.Now().UTC(),
	}
	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	order.Status = domain.OrderDelivered
	return order, entry, nil
}

func (r *PostgresRepository) RefundOrderAtomic(ctx context.Context, orderID uuid.UUID, amount int64, reason string) (*domain.PaymentOrder, *domain.LedgerEntry, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM payment_orders WHERE id = $1 FOR UPDATE`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
		}
		return nil, nil, err
	}
	switch order.Status {
	case domain.OrderPaymentReceived, domain.OrderConfirmed, domain.OrderDelivered:
	default:
		return nil, nil, fmt.Errorf("%w: order is %s, cannot refund", domain.ErrInvalidState, order.Status)
	}

	if amount <= 0 {
		amount = order.BasePrice // the license protection fee is never returned
	}

	// Revert the asset if this buyer holds it; an order refunded before
	// delivery has nothing to revert.
	assetRow := tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1 FOR UPDATE`, order.AssetID)
	asset, err := scanAsset(assetRow)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, err
	}
	if asset != nil && asset.OwnedBy(order.BuyerID) {
		if asset.State == domain.AssetUsed {
			return nil, nil, fmt.Errorf("%w: asset already used, cannot refund", domain.ErrInvalidState)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE assets SET state = 'AVAILABLE', owner_id = NULL, acquisition_price = 0, updated_at = NOW()
			WHERE id = $1
		`, order.AssetID); err != nil {
			return nil, nil, err
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE payment_orders SET status = 'REFUNDED', updated_at = NOW() WHERE id = $1
	`, orderID); err != nil {
		return nil, nil, err
	}

	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		Type:      domain.LedgerRefund,
		Amount:    amount,
		PayeeID:   &order.BuyerID,
		AssetID:   &order.AssetID,
		OrderID:   &order.ID,
		Status:    domain.LedgerPending, // obligation only; the rail is settled manually
		Details:   reason,
		CreatedAt: time.Now().UTC(),
	}
	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	order.Status = domain.OrderRefunded
	return order, entry, nil
}

// ---- external transactions ----

const externalTxColumns = `id, rail, amount, currency, network, counterparty, reference, confirmations, matched, matched_order_id, outcome, surplus, recorded_at`

func scanExternalTx(row pgx.Row) (*domain.ExternalTransactionRecord, error) {
	var rec domain.ExternalTransactionRecord
	var rail, network, outcome string
	err := row.Scan(&rec.ID, &rail, &rec.Amount, &rec.Currency, &network, &rec.Counterparty,
		&rec.Reference, &rec.Confirmations, &rec.Matched, &rec.MatchedOrderID, &outcome,
		&rec.Surplus, &rec.RecordedAt)
	if err != nil {
		return nil, err
	}
	rec.Rail = domain.PaymentRail(rail)
	rec.Network = domain.CryptoNetwork(network)
	rec.Outcome = domain.MatchOutcome(outcome)
	return &rec, nil
}

func (r *PostgresRepository) RecordExternalTransaction(ctx context.Context, rec *domain.ExternalTransactionRecord) (*domain.ExternalTransactionRecord, error) {
	ct, err := r.db.Exec(ctx, `
		INSERT INTO external_transactions (id, rail, amount, currency, network, counterparty, reference, confirmations, matched, matched_order_id, outcome, surplus, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, string(rec.Rail), rec.Amount, rec.Currency, string(rec.Network), rec.Counterparty,
		rec.Reference, rec.Confirmations, rec.Matched, rec.MatchedOrderID, string(rec.Outcome),
		rec.Surplus, rec.RecordedAt)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 1 {
		return nil, nil
	}
	// Replay: hand back the stored record, annotation included.
	return r.FindExternalTransaction(ctx, rec.ID)
}

func (r *PostgresRepository) FindExternalTransaction(ctx context.Context, txID string) (*domain.ExternalTransactionRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+externalTxColumns+` FROM external_transactions WHERE id = $1`, txID)
	rec, err := scanExternalTx(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: external transaction %s", domain.ErrNotFound, txID)
		}
		return nil, err
	}
	return rec, nil
}

func (r *PostgresRepository) AnnotateTransactionMatch(ctx context.Context, txID string, orderID *uuid.UUID, outcome domain.MatchOutcome, surplus int64) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE external_transactions
		SET matched = $2, matched_order_id = $3, outcome = $4, surplus = $5
		WHERE id = $1
	`, txID, outcome.Advances(), orderID, string(outcome), surplus)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: external transaction %s", domain.ErrNotFound, txID)
	}
	return nil
}

func (r *PostgresRepository) ListUnmatchedTransactions(ctx context.Context) ([]domain.ExternalTransactionRecord, error) {
	rows, err := r.db.Query(ctx, `SELECT `+externalTxColumns+` FROM external_transactions WHERE matched = FALSE ORDER BY recorded_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExternalTransactionRecord
	for rows.Next() {
		rec, err := scanExternalTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// ---- marketplace listings ----

const listingColumns = `id, asset_id, seller_id, sale_price, commission, status, created_at, updated_at`

func scanListing(row pgx.Row) (*domain.MarketplaceListing, error) {
	var l domain.MarketplaceListing
	var status string
	err := row.Scan(&l.ID, &l.AssetID, &l.SellerID, &l.SalePrice, &l.Commission, &status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.Status = domain.ListingStatus(status)
	return &l, nil
}

func (r *PostgresRepository) CreateListingAtomic(ctx context.Context, listing *domain.MarketplaceListing) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1 FOR UPDATE`, listing.AssetID)
	asset, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: asset %s", domain.ErrNotFound, listing.AssetID)
		}
		return err
	}
	if !asset.OwnedBy(listing.SellerID) {
		return fmt.Errorf("%w: caller does not own asset %s", domain.ErrUnauthorized, listing.AssetID)
	}
	if asset.State == domain.AssetUsed {
		return fmt.Errorf("%w: asset already used, cannot list for sale", domain.ErrInvalidState)
	}
	if asset.State != domain.AssetOwned {
		return fmt.Errorf("%w: asset %s is %s, cannot list for sale", domain.ErrInvalidState, listing.AssetID, asset.State)
	}

	if _, err := tx.Exec(ctx, `UPDATE assets SET state = 'LISTED', updated_at = NOW() WHERE id = $1`, listing.AssetID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO marketplace_listings (id, asset_id, seller_id, sale_price, commission, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, listing.ID, listing.AssetID, listing.SellerID, listing.SalePrice, listing.Commission,
		string(listing.Status), listing.CreatedAt, listing.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PostgresRepository) FindListingByID(ctx context.Context, listingID uuid.UUID) (*domain.MarketplaceListing, error) {
	row := r.db.QueryRow(ctx, `SELECT `+listingColumns+` FROM marketplace_listings WHERE id = $1`, listingID)
	l, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: listing %s", domain.ErrNotFound, listingID)
		}
		return nil, err
	}
	return l, nil
}

func (r *PostgresRepository) ListActiveListings(ctx context.Context) ([]domain.MarketplaceListing, error) {
	rows, err := r.db.Query(ctx, `SELECT `+listingColumns+` FROM marketplace_listings WHERE status = 'active' ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MarketplaceListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) PurchaseListingAtomic(ctx context.Context, listingID, buyerID uuid.UUID) (*domain.MarketplaceListing, *domain.LedgerEntry, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+listingColumns+` FROM marketplace_listings WHERE id = $1 FOR UPDATE`, listingID)
	listing, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: listing %s", domain.ErrNotFound, listingID)
		}
		return nil, nil, err
	}
	if listing.Status != domain.ListingActive {
		return nil, nil, fmt.Errorf("%w: listing is %s, cannot buy", domain.ErrInvalidState, listing.Status)
	}
	if listing.SellerID == buyerID {
		return nil, nil, fmt.Errorf("%w: cannot buy your own listing", domain.ErrValidation)
	}

	assetRow := tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1 FOR UPDATE`, listing.AssetID)
	asset, err := scanAsset(assetRow)
	if err != nil {
		return nil, nil, err
	}
	if asset.State != domain.AssetListed || !asset.OwnedBy(listing.SellerID) {
		return nil, nil, fmt.Errorf("%w: asset %s no longer held by seller", domain.ErrConflict, asset.ID)
	}

	proceeds := listing.SalePrice - listing.Commission

	// Ownership transfer, seller credit and listing close commit together;
	// a crash can never leave a transferred asset with an uncredited seller.
	if _, err := tx.Exec(ctx, `
		UPDATE assets
		SET state = 'OWNED', owner_id = $2, acquisition_price = $3, transferred = TRUE, updated_at = NOW()
		WHERE id = $1
	`, listing.AssetID, buyerID, listing.SalePrice); err != nil {
		return nil, nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE users SET balance = balance + $2 WHERE id = $1`, listing.SellerID, proceeds); err != nil {
		return nil, nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE marketplace_listings SET status = 'sold', updated_at = NOW() WHERE id = $1`, listingID); err != nil {
		return nil, nil, err
	}

	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		Type:      domain.LedgerResale,
		Amount:    listing.SalePrice,
		Fee:       listing.Commission,
		PayerID:   &buyerID,
		PayeeID:   &listing.SellerID,
		AssetID:   &listing.AssetID,
		Status:    domain.LedgerCompleted,
		Details:   "peer-to-peer resale, internal settlement",
		CreatedAt: time.Now().UTC(),
	}
	if err := insertLedgerEntry(ctx, tx, entry); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	listing.Status = domain.ListingSold
	return listing, entry, nil
}

func (r *PostgresRepository) CancelListingAtomic(ctx context.Context, listingID, sellerID uuid.UUID) (*domain.MarketplaceListing, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+listingColumns+` FROM marketplace_listings WHERE id = $1 FOR UPDATE`, listingID)
	listing, err := scanListing(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: listing %s", domain.ErrNotFound, listingID)
		}
		return nil, err
	}
	if listing.SellerID != sellerID {
		return nil, fmt.Errorf("%w: listing %s does not belong to caller", domain.ErrUnauthorized, listingID)
	}
	if listing.Status != domain.ListingActive {
		return nil, fmt.Errorf("%w: listing is %s, cannot cancel", domain.ErrInvalidState, listing.Status)
	}

	if _, err := tx.Exec(ctx, `UPDATE marketplace_listings SET status = 'cancelled', updated_at = NOW() WHERE id = $1`, listingID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE assets SET state = 'OWNED', updated_at = NOW() WHERE id = $1 AND state = 'LISTED'`, listing.AssetID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	listing.Status = domain.ListingCancelled
	return listing, nil
}

// ---- ledger ----

func insertLedgerEntry(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, type, amount, fee, payer_id, payee_id, asset_id, order_id, status, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, entry.ID, string(entry.Type), entry.Amount, entry.Fee, entry.PayerID, entry.PayeeID,
		entry.AssetID, entry.OrderID, string(entry.Status), entry.Details, entry.CreatedAt)
	return err
}

func (r *PostgresRepository) AppendLedgerEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO ledger_entries (id, type, amount, fee, payer_id, payee_id, asset_id, order_id, status, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, entry.ID, string(entry.Type), entry.Amount, entry.Fee, entry.PayerID, entry.PayeeID,
		entry.AssetID, entry.OrderID, string(entry.Status), entry.Details, entry.CreatedAt)
	return err
}

func (r *PostgresRepository) ListLedgerEntriesByUser(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, type, amount, fee, payer_id, payee_id, asset_id, order_id, status, details, created_at
		FROM ledger_entries
		WHERE payer_id = $1 OR payee_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var typ, status string
		if err := rows.Scan(&e.ID, &typ, &e.Amount, &e.Fee, &e.PayerID, &e.PayeeID, &e.AssetID, &e.OrderID, &status, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = domain.LedgerEntryType(typ)
		e.Status = domain.LedgerEntryStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateLedgerEntryStatus(ctx context.Context, entryID uuid.UUID, status domain.LedgerEntryStatus) error {
	ct, err := r.db.Exec(ctx, `UPDATE ledger_entries SET status = $2 WHERE id = $1`, entryID, string(status))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: ledger entry %s", domain.ErrNotFound, entryID)
	}
	return nil
}
