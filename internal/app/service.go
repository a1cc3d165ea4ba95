/**
 * @description
 * This file contains the core business logic for the commerce-service. The
 * `Service` struct orchestrates the payment order lifecycle: creation with
 * payer-facing instructions, lazy expiry on read, cancellation, operator
 * confirmation and refunds.
 *
 * Key features:
 * - Order creation is idempotent per (buyer, asset): repeated calls while an
 *   order is still awaiting payment return the same order and reference.
 * - Money and ownership only join inside the repository's atomic delivery;
 *   this layer validates input, sequences the calls and publishes events.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fera-art/commerce-service/internal/domain"
	"github.com/fera-art/commerce-service/internal/store"
	"github.com/fera-art/commerce-service/pkg/rabbitmq"
)

const (
	DefaultOrderExpiry     = 72 * time.Hour
	DefaultLicenseFeePct   = 5
	DefaultCommissionPct   = 1
	DefaultTolerancePct    = 1
	referenceRetryAttempts = 3
)

// Settings carries the tunables and payout endpoints the service needs.
type Settings struct {
	OrderExpiry       time.Duration
	LicenseFeePercent int64
	CommissionPercent int64
	TolerancePercent  int64
	BankAccountName   string
	BankIBAN          string
	BankName          string
	USDTWallets       map[domain.CryptoNetwork]string
}

func (s Settings) withDefaults() Settings {
	if s.OrderExpiry <= 0 {
		s.OrderExpiry = DefaultOrderExpiry
	}
	if s.LicenseFeePercent <= 0 {
		s.LicenseFeePercent = DefaultLicenseFeePct
	}
	if s.CommissionPercent <= 0 {
		s.CommissionPercent = DefaultCommissionPct
	}
	if s.TolerancePercent < 0 {
		s.TolerancePercent = DefaultTolerancePct
	}
	return s
}

// Service provides the core business logic for the commerce engine.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	settings      Settings
}

// NewService creates a new commerce service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher, settings Settings) *Service {
	if producer == nil {
		producer = &rabbitmq.EventProducerFallback{}
	}
	return &Service{
		repo:          repo,
		eventProducer: producer,
		settings:      settings.withDefaults(),
	}
}

// LicenseFee computes the non-refundable license protection surcharge.
func (s *Service) LicenseFee(basePrice int64) int64 {
	return basePrice * s.settings.LicenseFeePercent / 100
}

// PaymentInstructions tells the buyer where to send money and what to write
// in the memo so the matcher can find the payment.
type PaymentInstructions struct {
	Reference       string                `json:"reference"`
	Amount          int64                 `json:"amount"`
	Currency        string                `json:"currency"`
	Channel         domain.PaymentChannel `json:"channel"`
	BankAccountName string                `json:"bank_account_name,omitempty"`
	BankIBAN        string                `json:"bank_iban,omitempty"`
	BankName        string                `json:"bank_name,omitempty"`
	WalletAddress   string                `json:"wallet_address,omitempty"`
	Network         domain.CryptoNetwork  `json:"network,omitempty"`
	ExpiresAt       time.Time             `json:"expires_at"`
}

// CreateOrderRequest is the buyer's input for starting a purchase.
type CreateOrderRequest struct {
	AssetID uuid.UUID             `json:"asset_id"`
	Channel domain.PaymentChannel `json:"channel"`
	Network domain.CryptoNetwork  `json:"network,omitempty"`
}

// CreateOrder opens a payment order for the asset, or returns the buyer's
// existing open order for it. The asset itself is not reserved: orders are
// promises to pay, and the first settled payment wins the asset.
func (s *Service) CreateOrder(ctx context.Context, buyerID uuid.UUID, req CreateOrderRequest) (*domain.PaymentOrder, *PaymentInstructions, error) {
	var currency string
	switch req.Channel {
	case domain.ChannelBank:
		currency = domain.CurrencyEUR
		if req.Network != "" {
			return nil, nil, fmt.Errorf("%w: network applies to crypto orders only", domain.ErrValidation)
		}
	case domain.ChannelCrypto:
		currency = domain.CurrencyUSDT
		if !domain.ValidCryptoNetwork(req.Network) {
			return nil, nil, fmt.Errorf("%w: unsupported crypto network %q", domain.ErrValidation, req.Network)
		}
	default:
		return nil, nil, fmt.Errorf("%w: unsupported payment channel %q", domain.ErrValidation, req.Channel)
	}

	asset, err := s.repo.FindAssetByID(ctx, req.AssetID)
	if err != nil {
		return nil, nil, err
	}
	if !asset.Acquirable() {
		return nil, nil, fmt.Errorf("%w: asset %s is %s, not open for purchase", domain.ErrInvalidState, asset.ID, asset.State)
	}

	fee := s.LicenseFee(asset.BasePrice)
	now := time.Now().UTC()

	var created *domain.PaymentOrder
	var existed bool
	for attempt := 0; attempt < referenceRetryAttempts; attempt++ {
		order := &domain.PaymentOrder{
			ID:          uuid.New(),
			Reference:   domain.NewOrderReference(now),
			BuyerID:     buyerID,
			AssetID:     asset.ID,
			BasePrice:   asset.BasePrice,
			LicenseFee:  fee,
			TotalAmount: asset.BasePrice + fee,
			Currency:    currency,
			Channel:     req.Channel,
			Network:     req.Network,
			Status:      domain.OrderPendingPayment,
			CreatedAt:   now,
			ExpiresAt:   now.Add(s.settings.OrderExpiry),
			UpdatedAt:   now,
		}
		created, existed, err = s.repo.CreateOrderIdempotent(ctx, order)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) {
			return nil, nil, err
		}
		// Reference collision with another active order; regenerate and retry.
		log.Printf("level=warn component=orders msg=\"active reference collision, regenerating\" attempt=%d", attempt+1)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to allocate a unique order reference: %w", err)
	}

	if !existed {
		s.publishOrderEvent(ctx, domain.EventOrderCreated, created)
		log.Printf("level=info component=orders msg=\"order created\" order_id=%s reference=%s asset_id=%s total=%d currency=%s",
			created.ID, created.Reference, created.AssetID, created.TotalAmount, created.Currency)
	}

	instructions := s.instructionsFor(created)
	return created, instructions, nil
}

func (s *Service) instructionsFor(order *domain.PaymentOrder) *PaymentInstructions {
	instr := &PaymentInstructions{
		Reference: order.Reference,
		Amount:    order.TotalAmount,
		Currency:  order.Currency,
		Channel:   order.Channel,
		ExpiresAt: order.ExpiresAt,
	}
	switch order.Channel {
	case domain.ChannelBank:
		instr.BankAccountName = s.settings.BankAccountName
		instr.BankIBAN = s.settings.BankIBAN
		instr.BankName = s.settings.BankName
	case domain.ChannelCrypto:
		instr.Network = order.Network
		instr.WalletAddress = s.settings.USDTWallets[order.Network]
	}
	return instr
}

// GetOrder returns the order, expiring it first when its deadline has passed
// unnoticed. Buyers see only their own orders; operators see all.
func (s *Service) GetOrder(ctx context.Context, orderID, callerID uuid.UUID, operator bool) (*domain.PaymentOrder, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !operator && order.BuyerID != callerID {
		return nil, fmt.Errorf("%w: order %s does not belong to caller", domain.ErrUnauthorized, orderID)
	}
	return s.lazyExpire(ctx, order)
}

// lazyExpire flips a pending order past its deadline to EXPIRED at read time,
// so a reader can never observe a payable order that would reject payment.
func (s *Service) lazyExpire(ctx context.Context, order *domain.PaymentOrder) (*domain.PaymentOrder, error) {
	if !order.ExpiredAt(time.Now()) {
		return order, nil
	}
	expired, err := s.repo.ExpireOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if expired.Status == domain.OrderExpired && order.Status != domain.OrderExpired {
		s.publishOrderEvent(ctx, domain.EventOrderExpired, expired)
		log.Printf("level=info component=orders msg=\"order expired on read\" order_id=%s reference=%s", expired.ID, expired.Reference)
	}
	return expired, nil
}

// CancelOrder lets the buyer abandon an unpaid order.
func (s *Service) CancelOrder(ctx context.Context, orderID, buyerID uuid.UUID) (*domain.PaymentOrder, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order, err = s.lazyExpire(ctx, order); err != nil {
		return nil, err
	}
	if order.Status == domain.OrderExpired {
		return nil, fmt.Errorf("%w: order already expired", domain.ErrInvalidState)
	}
	return s.repo.CancelOrder(ctx, orderID, buyerID)
}

// ConfirmAndDeliver is the operator's approval: it claims the asset for the
// buyer, marks the order DELIVERED and appends the purchase ledger entry in
// one unit of work.
func (s *Service) ConfirmAndDeliver(ctx context.Context, orderID uuid.UUID) (*domain.PaymentOrder, error) {
	order, entry, err := s.repo.DeliverOrderAtomic(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.publishOrderEvent(ctx, domain.EventOrderDelivered, order)
	s.publishLedgerEvent(ctx, entry)
	log.Printf("level=info component=orders msg=\"order delivered\" order_id=%s reference=%s asset_id=%s buyer_id=%s",
		order.ID, order.Reference, order.AssetID, order.BuyerID)
	return order, nil
}

// RefundOrder refunds a paid order. The license protection fee is retained:
// a zero amount defaults to the base price. Settlement on the external rail
// is manual; the ledger entry stays pending until the operator completes it.
func (s *Service) RefundOrder(ctx context.Context, orderID uuid.UUID, amount int64, reason string) (*domain.PaymentOrder, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "order refund, license protection fee retained"
	}
	order, entry, err := s.repo.RefundOrderAtomic(ctx, orderID, amount, reason)
	if err != nil {
		return nil, err
	}

	s.publishOrderEvent(ctx, domain.EventOrderRefunded, order)
	s.publishLedgerEvent(ctx, entry)
	log.Printf("level=info component=orders msg=\"order refunded\" order_id=%s reference=%s amount=%d", order.ID, order.Reference, entry.Amount)
	return order, nil
}

// ExpireOverdueOrders expires every pending order whose deadline passed
// before now. Returns the number of orders expired.
func (s *Service) ExpireOverdueOrders(ctx context.Context, now time.Time) (int, error) {
	overdue, err := s.repo.ListExpiredPendingOrders(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range overdue {
		order, err := s.repo.ExpireOrder(ctx, overdue[i].ID)
		if err != nil {
			log.Printf("level=warn component=orders msg=\"sweep failed to expire order\" order_id=%s err=%v", overdue[i].ID, err)
			continue
		}
		if order.Status == domain.OrderExpired {
			expired++
			s.publishOrderEvent(ctx, domain.EventOrderExpired, order)
		}
	}
	return expired, nil
}

// ListOrders returns every order, newest first. Operator view.
func (s *Service) ListOrders(ctx context.Context) ([]domain.PaymentOrder, error) {
	return s.repo.ListOrders(ctx)
}

// ListOpenOrders returns the orders still awaiting payment, oldest first.
func (s *Service) ListOpenOrders(ctx context.Context) ([]domain.PaymentOrder, error) {
	return s.repo.ListOpenOrders(ctx)
}

func (s *Service) publishOrderEvent(ctx context.Context, routingKey string, order *domain.PaymentOrder) {
	event := domain.OrderEvent{
		OrderID:   order.ID,
		Reference: order.Reference,
		BuyerID:   order.BuyerID,
		AssetID:   order.AssetID,
		Status:    order.Status,
		Amount:    order.TotalAmount,
		Timestamp: time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.CommerceExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=orders msg=\"event publish failed\" routing_key=%s order_id=%s err=%v", routingKey, order.ID, err)
	}
}

func (s *Service) publishLedgerEvent(ctx context.Context, entry *domain.LedgerEntry) {
	if entry == nil {
		return
	}
	event := domain.LedgerEvent{
		EntryID:   entry.ID,
		Type:      entry.Type,
		Amount:    entry.Amount,
		Timestamp: time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.CommerceExchange, domain.EventLedgerAppended, event); err != nil {
		log.Printf("level=warn component=ledger msg=\"event publish failed\" entry_id=%s err=%v", entry.ID, err)
	}
}
