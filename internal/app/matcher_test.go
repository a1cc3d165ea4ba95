package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fera-art/commerce-service/internal/domain"
)

func TestClassifyAmount(t *testing.T) {
	// Total 78750 with a 1% tolerance gives a band of [77963, 79537].
	tests := []struct {
		name        string
		amount      int64
		wantOutcome domain.MatchOutcome
		wantSurplus int64
	}{
		{"exact amount", 78750, domain.OutcomeMatched, 0},
		{"slightly short but inside the band", 78000, domain.OutcomeMatched, 0},
		{"lower band edge", 77963, domain.OutcomeMatched, 0},
		{"one cent below the band", 77962, domain.OutcomeUnderpaid, 0},
		{"large underpayment", 70000, domain.OutcomeUnderpaid, 0},
		{"upper band edge", 79537, domain.OutcomeMatched, 0},
		{"one cent above the band", 79538, domain.OutcomeOverpayment, 788},
		{"large overpayment", 80000, domain.OutcomeOverpayment, 1250},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, surplus := classifyAmount(tt.amount, 78750, 1)
			if outcome != tt.wantOutcome {
				t.Fatalf("classifyAmount(%d) outcome = %s, want %s", tt.amount, outcome, tt.wantOutcome)
			}
			if surplus != tt.wantSurplus {
				t.Fatalf("classifyAmount(%d) surplus = %d, want %d", tt.amount, surplus, tt.wantSurplus)
			}
		})
	}
}

func TestNormalizeReference(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"IAG-2024-a1b2c3-X7KQ2M", "iag2024a1b2c3x7kq2m"},
		{"  iag 2024 A1B2C3 x7kq2m  ", "iag2024a1b2c3x7kq2m"},
		{"Zahlung IAG-2024-a1b2c3-X7KQ2M danke", "zahlungiag2024a1b2c3x7kq2mdanke"},
		{"", ""},
		{"---", ""},
	}
	for _, tt := range tests {
		if got := normalizeReference(tt.in); got != tt.want {
			t.Fatalf("normalizeReference(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func openOrder(reference string, total int64, channel domain.PaymentChannel, network domain.CryptoNetwork, createdAt time.Time) domain.PaymentOrder {
	currency := domain.CurrencyEUR
	if channel == domain.ChannelCrypto {
		currency = domain.CurrencyUSDT
	}
	return domain.PaymentOrder{
		ID:          uuid.New(),
		Reference:   reference,
		BuyerID:     uuid.New(),
		AssetID:     uuid.New(),
		TotalAmount: total,
		Currency:    currency,
		Channel:     channel,
		Network:     network,
		Status:      domain.OrderPendingPayment,
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(72 * time.Hour),
	}
}

func TestMatchOrderTieBreak(t *testing.T) {
	now := time.Now().UTC()
	older := openOrder("IAG-2024-aaaaaa-AAAAAA", 10000, domain.ChannelBank, "", now.Add(-2*time.Hour))
	newer := openOrder("IAG-2024-bbbbbb-BBBBBB", 10000, domain.ChannelBank, "", now.Add(-time.Hour))

	rec := &domain.ExternalTransactionRecord{
		Rail:      domain.RailBank,
		Currency:  domain.CurrencyEUR,
		Reference: "IAG-2024-bbbbbb-BBBBBB",
	}
	// Exact equality beats the substring hit even on a younger order.
	got := matchOrder(rec, []domain.PaymentOrder{older, newer}, now)
	if got == nil || got.ID != newer.ID {
		t.Fatal("expected the exact-reference order to win")
	}

	// With only substring hits the earliest-created order wins.
	memo := &domain.ExternalTransactionRecord{
		Rail:      domain.RailBank,
		Currency:  domain.CurrencyEUR,
		Reference: "payment IAG-2024-aaaaaa-AAAAAA and IAG-2024-bbbbbb-BBBBBB",
	}
	got = matchOrder(memo, []domain.PaymentOrder{older, newer}, now)
	if got == nil || got.ID != older.ID {
		t.Fatal("expected the earliest-created substring hit to win")
	}
}

func TestMatchOrderFilters(t *testing.T) {
	now := time.Now().UTC()
	bankOrder := openOrder("IAG-2024-cccccc-CCCCCC", 10000, domain.ChannelBank, "", now.Add(-time.Hour))
	erc20Order := openOrder("IAG-2024-dddddd-DDDDDD", 10000, domain.ChannelCrypto, domain.NetworkERC20, now.Add(-time.Hour))
	expired := openOrder("IAG-2024-eeeeee-EEEEEE", 10000, domain.ChannelBank, "", now.Add(-100*time.Hour))
	expired.ExpiresAt = now.Add(-28 * time.Hour)
	orders := []domain.PaymentOrder{bankOrder, erc20Order, expired}

	// A crypto report on the wrong network matches nothing.
	wrongNetwork := &domain.ExternalTransactionRecord{
		Rail:      domain.RailCrypto,
		Currency:  domain.CurrencyUSDT,
		Network:   domain.NetworkTRC20,
		Reference: "IAG-2024-dddddd-DDDDDD",
	}
	if got := matchOrder(wrongNetwork, orders, now); got != nil {
		t.Fatalf("expected no match across networks, got order %s", got.ID)
	}

	// The right network matches.
	rightNetwork := &domain.ExternalTransactionRecord{
		Rail:      domain.RailCrypto,
		Currency:  domain.CurrencyUSDT,
		Network:   domain.NetworkERC20,
		Reference: "IAG-2024-dddddd-DDDDDD",
	}
	if got := matchOrder(rightNetwork, orders, now); got == nil || got.ID != erc20Order.ID {
		t.Fatal("expected the erc20 order to match")
	}

	// A bank report never pays a crypto order, even with the right reference.
	crossRail := &domain.ExternalTransactionRecord{
		Rail:      domain.RailBank,
		Currency:  domain.CurrencyUSDT,
		Reference: "IAG-2024-dddddd-DDDDDD",
	}
	if got := matchOrder(crossRail, orders, now); got != nil {
		t.Fatalf("expected no cross-rail match, got order %s", got.ID)
	}

	// Expired orders are never candidates.
	lateMemo := &domain.ExternalTransactionRecord{
		Rail:      domain.RailBank,
		Currency:  domain.CurrencyEUR,
		Reference: "IAG-2024-eeeeee-EEEEEE",
	}
	if got := matchOrder(lateMemo, orders, now); got != nil {
		t.Fatalf("expected no match on an expired order, got order %s", got.ID)
	}
}

func TestMatchOrderTruncatedMemo(t *testing.T) {
	now := time.Now().UTC()
	order := openOrder("IAG-2024-a1b2c3-X7KQ2M", 78750, domain.ChannelBank, "", now.Add(-time.Hour))
	orders := []domain.PaymentOrder{order}

	// Some bank rails cut the memo field short; the surviving prefix still
	// pins the order.
	truncated := &domain.ExternalTransactionRecord{
		Rail:      domain.RailBank,
		Currency:  domain.CurrencyEUR,
		Reference: "IAG-2024-a1b2c3",
	}
	if got := matchOrder(truncated, orders, now); got == nil || got.ID != order.ID {
		t.Fatal("expected the truncated memo to match its order")
	}

	// A fragment below the minimum length is too generic to match anything.
	tooShort := &domain.ExternalTransactionRecord{
		Rail:      domain.RailBank,
		Currency:  domain.CurrencyEUR,
		Reference: "IAG-20",
	}
	if got := matchOrder(tooShort, orders, now); got != nil {
		t.Fatalf("expected no match for a too-short fragment, got order %s", got.ID)
	}
}

func TestRecordBankTransactionTruncatedMemoAdvances(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	order, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{AssetID: assetID, Channel: domain.ChannelBank})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	// The rail kept only the first 15 characters of the reference.
	result, err := svc.RecordBankTransaction(context.Background(), RecordTransactionRequest{
		TxID:      "SEPA-20240601-0009",
		Amount:    78750,
		Reference: order.Reference[:15],
	})
	if err != nil {
		t.Fatalf("RecordBankTransaction failed: %v", err)
	}
	if result.Outcome != domain.OutcomeMatched {
		t.Fatalf("outcome = %s, want MATCHED", result.Outcome)
	}
	if result.Order == nil || result.Order.ID != order.ID {
		t.Fatal("expected the truncated memo to match the created order")
	}
	if result.Order.Status != domain.OrderPaymentReceived {
		t.Fatalf("order status = %s, want PAYMENT_RECEIVED", result.Order.Status)
	}
}

func TestRecordBankTransactionMatchesAndAdvances(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	order, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{AssetID: assetID, Channel: domain.ChannelBank})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	result, err := svc.RecordBankTransaction(context.Background(), RecordTransactionRequest{
		TxID:         "SEPA-20240601-0001",
		Amount:       78750,
		Counterparty: "DE89370400440532013000",
		Reference:    "Zahlung " + order.Reference + " danke",
	})
	if err != nil {
		t.Fatalf("RecordBankTransaction failed: %v", err)
	}
	if result.Outcome != domain.OutcomeMatched {
		t.Fatalf("outcome = %s, want MATCHED", result.Outcome)
	}
	if result.Order == nil || result.Order.ID != order.ID {
		t.Fatal("expected the created order to be matched")
	}
	if result.Order.Status != domain.OrderPaymentReceived {
		t.Fatalf("order status = %s, want PAYMENT_RECEIVED", result.Order.Status)
	}

	rec, err := svc.GetTransaction(context.Background(), "SEPA-20240601-0001")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if !rec.Matched || rec.MatchedOrderID == nil || *rec.MatchedOrderID != order.ID {
		t.Fatalf("transaction annotation is wrong: %+v", rec)
	}
}

func TestRecordTransactionIsIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	order, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{AssetID: assetID, Channel: domain.ChannelBank})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	req := RecordTransactionRequest{
		TxID:      "SEPA-20240601-0002",
		Amount:    78750,
		Reference: order.Reference,
	}
	first, err := svc.RecordBankTransaction(context.Background(), req)
	if err != nil {
		t.Fatalf("first RecordBankTransaction failed: %v", err)
	}
	if first.Replayed {
		t.Fatal("first recording must not be a replay")
	}

	second, err := svc.RecordBankTransaction(context.Background(), req)
	if err != nil {
		t.Fatalf("second RecordBankTransaction failed: %v", err)
	}
	if !second.Replayed {
		t.Fatal("second recording must be a replay")
	}
	if second.Outcome != first.Outcome {
		t.Fatalf("replay outcome = %s, want %s", second.Outcome, first.Outcome)
	}

	// The order advanced exactly once.
	got, err := repo.FindOrderByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if len(got.MatchedTxIDs) != 1 {
		t.Fatalf("expected one matched tx id, got %v", got.MatchedTxIDs)
	}
}

func TestRecordCryptoUnderpaymentDoesNotAdvance(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	order, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{
		AssetID: assetID,
		Channel: domain.ChannelCrypto,
		Network: domain.NetworkERC20,
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	result, err := svc.RecordCryptoTransaction(context.Background(), RecordTransactionRequest{
		TxID:          "0xdeadbeef01",
		Amount:        70000,
		Network:       domain.NetworkERC20,
		Counterparty:  "0x2c5fa44a1472e3a2a72d757e3a43ef28b25bf44b",
		Reference:     order.Reference,
		Confirmations: 12,
	})
	if err != nil {
		t.Fatalf("RecordCryptoTransaction failed: %v", err)
	}
	if result.Outcome != domain.OutcomeUnderpaid {
		t.Fatalf("outcome = %s, want UNDERPAYMENT", result.Outcome)
	}

	got, err := repo.FindOrderByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if got.Status != domain.OrderPendingPayment {
		t.Fatalf("order status = %s, underpayment must not advance it", got.Status)
	}

	// The underpaid report stays in the review queue.
	queue, err := svc.ListUnmatchedTransactions(context.Background())
	if err != nil {
		t.Fatalf("ListUnmatchedTransactions failed: %v", err)
	}
	if len(queue) != 1 || queue[0].ID != "0xdeadbeef01" {
		t.Fatalf("expected the underpaid report in the queue, got %+v", queue)
	}
}

func TestRecordOverpaymentAdvancesWithSurplus(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	order, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{AssetID: assetID, Channel: domain.ChannelBank})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	result, err := svc.RecordBankTransaction(context.Background(), RecordTransactionRequest{
		TxID:      "SEPA-20240601-0003",
		Amount:    80000,
		Reference: order.Reference,
	})
	if err != nil {
		t.Fatalf("RecordBankTransaction failed: %v", err)
	}
	if result.Outcome != domain.OutcomeOverpayment {
		t.Fatalf("outcome = %s, want MATCHED_WITH_OVERPAYMENT", result.Outcome)
	}
	if result.Surplus != 1250 {
		t.Fatalf("surplus = %d, want 1250", result.Surplus)
	}
	if result.Order.Status != domain.OrderPaymentReceived {
		t.Fatalf("order status = %s, an overpayment still advances", result.Order.Status)
	}
}

func TestUnmatchedThenPairedManually(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	order, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{AssetID: assetID, Channel: domain.ChannelBank})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	// The payer forgot the memo entirely.
	result, err := svc.RecordBankTransaction(context.Background(), RecordTransactionRequest{
		TxID:   "SEPA-20240601-0004",
		Amount: 78750,
	})
	if err != nil {
		t.Fatalf("RecordBankTransaction failed: %v", err)
	}
	if result.Outcome != domain.OutcomeUnmatched {
		t.Fatalf("outcome = %s, want UNMATCHED", result.Outcome)
	}

	paired, err := svc.PairTransaction(context.Background(), "SEPA-20240601-0004", order.ID)
	if err != nil {
		t.Fatalf("PairTransaction failed: %v", err)
	}
	if paired.Outcome != domain.OutcomeMatched {
		t.Fatalf("pair outcome = %s, want MATCHED", paired.Outcome)
	}
	if paired.Order.Status != domain.OrderPaymentReceived {
		t.Fatalf("order status = %s, want PAYMENT_RECEIVED", paired.Order.Status)
	}

	// Pairing is one-shot.
	if _, err := svc.PairTransaction(context.Background(), "SEPA-20240601-0004", order.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state error on double pair, got %v", err)
	}
}

func TestPairTransactionRejectsUnderpayment(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	order, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{AssetID: assetID, Channel: domain.ChannelBank})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if _, err := svc.RecordBankTransaction(context.Background(), RecordTransactionRequest{
		TxID:   "SEPA-20240601-0005",
		Amount: 50000,
	}); err != nil {
		t.Fatalf("RecordBankTransaction failed: %v", err)
	}

	_, err = svc.PairTransaction(context.Background(), "SEPA-20240601-0005", order.ID)
	if !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("expected amount mismatch error, got %v", err)
	}
}

func TestRecordTransactionValidation(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.RecordBankTransaction(context.Background(), RecordTransactionRequest{Amount: 100}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for missing tx id, got %v", err)
	}
	if _, err := svc.RecordBankTransaction(context.Background(), RecordTransactionRequest{TxID: "t", Amount: 0}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for non-positive amount, got %v", err)
	}
	if _, err := svc.RecordCryptoTransaction(context.Background(), RecordTransactionRequest{TxID: "t", Amount: 100, Network: "solana"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for unsupported network, got %v", err)
	}
}
