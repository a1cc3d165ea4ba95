package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fera-art/commerce-service/internal/domain"
	"github.com/fera-art/commerce-service/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.MemoryRepository) {
	t.Helper()
	repo := store.NewMemoryRepository()
	svc := NewService(repo, nil, Settings{
		OrderExpiry:       72 * time.Hour,
		LicenseFeePercent: 5,
		CommissionPercent: 1,
		TolerancePercent:  1,
		BankAccountName:   "Fera Art Gallery GmbH",
		BankIBAN:          "DE02120300000000202051",
		BankName:          "Deutsche Kreditbank",
		USDTWallets: map[domain.CryptoNetwork]string{
			domain.NetworkTRC20: "TX7k2msqzsgyKNVgkW1HFYnsm6hqLx4dAK",
			domain.NetworkERC20: "0x2c5fa44a1472e3a2a72d757e3a43ef28b25bf44b",
			domain.NetworkBEP20: "0x8e4d9ade4a2f3cbe8a16d2c9cd629b9a571e8c33",
		},
	})
	return svc, repo
}

func seedUser(t *testing.T, repo *store.MemoryRepository, balance int64) uuid.UUID {
	t.Helper()
	user := &domain.User{
		ID:        uuid.New(),
		Email:     "collector@example.com",
		Name:      "Collector",
		Balance:   balance,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user.ID
}

func seedAsset(t *testing.T, repo *store.MemoryRepository, basePrice int64) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	asset := &domain.Asset{
		ID:         uuid.New(),
		Title:      "Nocturne IV",
		ArtistName: "M. Vetrov",
		Category:   "generative",
		BasePrice:  basePrice,
		State:      domain.AssetAvailable,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.CreateAsset(context.Background(), asset); err != nil {
		t.Fatalf("failed to seed asset: %v", err)
	}
	return asset.ID
}

func TestCreateOrderComputesFeeAndTotal(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	order, instructions, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{
		AssetID: assetID,
		Channel: domain.ChannelBank,
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if order.LicenseFee != 3750 {
		t.Fatalf("license fee = %d, want 3750", order.LicenseFee)
	}
	if order.TotalAmount != 78750 {
		t.Fatalf("total = %d, want 78750", order.TotalAmount)
	}
	if order.Currency != domain.CurrencyEUR {
		t.Fatalf("currency = %s, want EUR", order.Currency)
	}
	if order.Status != domain.OrderPendingPayment {
		t.Fatalf("status = %s, want PENDING_PAYMENT", order.Status)
	}
	if instructions.Reference != order.Reference {
		t.Fatalf("instructions reference %q does not match order reference %q", instructions.Reference, order.Reference)
	}
	if instructions.BankIBAN == "" {
		t.Fatal("bank order instructions must carry the IBAN")
	}
}

func TestCreateOrderCryptoRequiresValidNetwork(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	_, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{
		AssetID: assetID,
		Channel: domain.ChannelCrypto,
		Network: "dogecoin",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	order, instructions, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{
		AssetID: assetID,
		Channel: domain.ChannelCrypto,
		Network: domain.NetworkERC20,
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.Currency != domain.CurrencyUSDT {
		t.Fatalf("currency = %s, want USDT", order.Currency)
	}
	if instructions.WalletAddress == "" {
		t.Fatal("crypto order instructions must carry the wallet address")
	}
}

func TestCreateOrderIdempotentPerBuyerAndAsset(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	first, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{AssetID: assetID, Channel: domain.ChannelBank})
	if err != nil {
		t.Fatalf("first CreateOrder failed: %v", err)
	}
	second, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{AssetID: assetID, Channel: domain.ChannelBank})
	if err != nil {
		t.Fatalf("second CreateOrder failed: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected the same order back, got %s then %s", first.ID, second.ID)
	}
	if first.Reference != second.Reference {
		t.Fatalf("expected the same reference back, got %q then %q", first.Reference, second.Reference)
	}

	// A different buyer gets their own order for the same asset.
	other := seedUser(t, repo, 0)
	third, _, err := svc.CreateOrder(context.Background(), other, CreateOrderRequest{AssetID: assetID, Channel: domain.ChannelBank})
	if err != nil {
		t.Fatalf("CreateOrder for second buyer failed: %v", err)
	}
	if third.ID == first.ID {
		t.Fatal("another buyer must not share the first buyer's order")
	}
}

func TestGetOrderExpiresLazily(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	now := time.Now().UTC()
	order := &domain.PaymentOrder{
		ID:          uuid.New(),
		Reference:   domain.NewOrderReference(now),
		BuyerID:     buyer,
		AssetID:     assetID,
		BasePrice:   75000,
		LicenseFee:  3750,
		TotalAmount: 78750,
		Currency:    domain.CurrencyEUR,
		Channel:     domain.ChannelBank,
		Status:      domain.OrderPendingPayment,
		CreatedAt:   now.Add(-80 * time.Hour),
		ExpiresAt:   now.Add(-8 * time.Hour),
		UpdatedAt:   now.Add(-80 * time.Hour),
	}
	if _, _, err := repo.CreateOrderIdempotent(context.Background(), order); err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}

	got, err := svc.GetOrder(context.Background(), order.ID, buyer, false)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got.Status != domain.OrderExpired {
		t.Fatalf("status = %s, want EXPIRED", got.Status)
	}

	// An expired order rejects payment marking.
	if _, err := repo.MarkOrderPaymentReceived(context.Background(), order.ID, "tx-late"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state error for expired order, got %v", err)
	}
}

func TestGetOrderHidesOtherBuyersOrders(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	snoop := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	order, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{AssetID: assetID, Channel: domain.ChannelBank})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if _, err := svc.GetOrder(context.Background(), order.ID, snoop, false); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), order.ID, snoop, true); err != nil {
		t.Fatalf("operator view should see any order, got %v", err)
	}
}

func TestCancelOrder(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	order, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{AssetID: assetID, Channel: domain.ChannelBank})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	other := seedUser(t, repo, 0)
	if _, err := svc.CancelOrder(context.Background(), order.ID, other); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized error for foreign cancel, got %v", err)
	}

	cancelled, err := svc.CancelOrder(context.Background(), order.ID, buyer)
	if err != nil {
		t.Fatalf("CancelOrder failed: %v", err)
	}
	if cancelled.Status != domain.OrderCancelled {
		t.Fatalf("status = %s, want CANCELLED", cancelled.Status)
	}

	if _, err := svc.CancelOrder(context.Background(), order.ID, buyer); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state error for double cancel, got %v", err)
	}
}

func TestConfirmAndDeliverJoinsMoneyAndOwnership(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	order, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{AssetID: assetID, Channel: domain.ChannelBank})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if _, err := repo.MarkOrderPaymentReceived(context.Background(), order.ID, "bank-tx-1"); err != nil {
		t.Fatalf("failed to mark payment received: %v", err)
	}

	delivered, err := svc.ConfirmAndDeliver(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("ConfirmAndDeliver failed: %v", err)
	}
	if delivered.Status != domain.OrderDelivered {
		t.Fatalf("status = %s, want DELIVERED", delivered.Status)
	}

	asset, err := repo.FindAssetByID(context.Background(), assetID)
	if err != nil {
		t.Fatalf("failed to load asset: %v", err)
	}
	if asset.State != domain.AssetOwned || !asset.OwnedBy(buyer) {
		t.Fatalf("asset should be OWNED by the buyer, got state=%s", asset.State)
	}
	if asset.AcquisitionPrice != 75000 {
		t.Fatalf("acquisition price = %d, want base price 75000", asset.AcquisitionPrice)
	}

	entries := repo.LedgerEntries()
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
	if entries[0].Type != domain.LedgerPurchase || entries[0].Amount != 78750 || entries[0].Fee != 3750 {
		t.Fatalf("unexpected purchase entry: %+v", entries[0])
	}
}

func TestRefundOrderRetainsLicenseFee(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 50000)

	order, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{AssetID: assetID, Channel: domain.ChannelBank})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if order.TotalAmount != 52500 {
		t.Fatalf("total = %d, want 52500", order.TotalAmount)
	}
	if _, err := repo.MarkOrderPaymentReceived(context.Background(), order.ID, "bank-tx-2"); err != nil {
		t.Fatalf("failed to mark payment received: %v", err)
	}
	if _, err := svc.ConfirmAndDeliver(context.Background(), order.ID); err != nil {
		t.Fatalf("ConfirmAndDeliver failed: %v", err)
	}

	refunded, err := svc.RefundOrder(context.Background(), order.ID, 0, "buyer request")
	if err != nil {
		t.Fatalf("RefundOrder failed: %v", err)
	}
	if refunded.Status != domain.OrderRefunded {
		t.Fatalf("status = %s, want REFUNDED", refunded.Status)
	}

	entries := repo.LedgerEntries()
	var refundEntry *domain.LedgerEntry
	for i := range entries {
		if entries[i].Type == domain.LedgerRefund {
			refundEntry = &entries[i]
		}
	}
	if refundEntry == nil {
		t.Fatal("expected a refund ledger entry")
	}
	// The buyer paid 52500; only the 50000 base comes back.
	if refundEntry.Amount != 50000 {
		t.Fatalf("refund amount = %d, want 50000", refundEntry.Amount)
	}
	if refundEntry.Status != domain.LedgerPending {
		t.Fatalf("refund entry status = %s, want pending (manual rail settlement)", refundEntry.Status)
	}

	asset, err := repo.FindAssetByID(context.Background(), assetID)
	if err != nil {
		t.Fatalf("failed to load asset: %v", err)
	}
	if asset.State != domain.AssetAvailable || asset.OwnerID != nil {
		t.Fatalf("asset should revert to AVAILABLE with no owner, got state=%s", asset.State)
	}
}

func TestExpireOverdueOrdersSweep(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		assetID := seedAsset(t, repo, 10000)
		order := &domain.PaymentOrder{
			ID:          uuid.New(),
			Reference:   domain.NewOrderReference(now),
			BuyerID:     buyer,
			AssetID:     assetID,
			BasePrice:   10000,
			LicenseFee:  500,
			TotalAmount: 10500,
			Currency:    domain.CurrencyEUR,
			Channel:     domain.ChannelBank,
			Status:      domain.OrderPendingPayment,
			CreatedAt:   now.Add(-100 * time.Hour),
			ExpiresAt:   now.Add(-28 * time.Hour),
			UpdatedAt:   now.Add(-100 * time.Hour),
		}
		if _, _, err := repo.CreateOrderIdempotent(context.Background(), order); err != nil {
			t.Fatalf("failed to seed order: %v", err)
		}
	}
	// One order still inside its window.
	liveAsset := seedAsset(t, repo, 10000)
	if _, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{AssetID: liveAsset, Channel: domain.ChannelBank}); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	expired, err := svc.ExpireOverdueOrders(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ExpireOverdueOrders failed: %v", err)
	}
	if expired != 3 {
		t.Fatalf("expired %d orders, want 3", expired)
	}

	open, err := svc.ListOpenOrders(context.Background())
	if err != nil {
		t.Fatalf("ListOpenOrders failed: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open order after sweep, got %d", len(open))
	}
}
