package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fera-art/commerce-service/internal/domain"
)

func TestHandlePaymentReportAcksValidReport(t *testing.T) {
	svc, repo := newTestService(t)
	buyer := seedUser(t, repo, 0)
	assetID := seedAsset(t, repo, 75000)

	order, _, err := svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{AssetID: assetID, Channel: domain.ChannelBank})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	body, err := json.Marshal(domain.PaymentReport{
		Rail:      domain.RailBank,
		TxID:      "SEPA-20240601-0100",
		Amount:    78750,
		Reference: order.Reference,
	})
	if err != nil {
		t.Fatalf("failed to marshal report: %v", err)
	}

	handler := svc.PaymentReportBindings()[RoutingKeyBankReport]
	if !handler(body) {
		t.Fatal("a processable report must be acked")
	}

	got, err := repo.FindOrderByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("failed to load order: %v", err)
	}
	if got.Status != domain.OrderPaymentReceived {
		t.Fatalf("order status = %s, want PAYMENT_RECEIVED", got.Status)
	}
}

func TestHandlePaymentReportDropsPoisonMessages(t *testing.T) {
	svc, _ := newTestService(t)
	handler := svc.PaymentReportBindings()[RoutingKeyCryptoReport]

	// Unparseable JSON can never succeed on redelivery.
	if !handler([]byte("{not json")) {
		t.Fatal("malformed JSON must be acked and dropped, not requeued")
	}

	// Neither can a report the matcher will always reject.
	invalid, err := json.Marshal(domain.PaymentReport{
		Rail:    domain.RailCrypto,
		TxID:    "0xdeadbeef99",
		Amount:  10000,
		Network: "solana",
	})
	if err != nil {
		t.Fatalf("failed to marshal report: %v", err)
	}
	if !handler(invalid) {
		t.Fatal("an invalid report must be acked and dropped, not requeued")
	}

	negative, err := json.Marshal(domain.PaymentReport{
		Rail:   domain.RailBank,
		TxID:   "SEPA-20240601-0101",
		Amount: -50,
	})
	if err != nil {
		t.Fatalf("failed to marshal report: %v", err)
	}
	if !svc.PaymentReportBindings()[RoutingKeyBankReport](negative) {
		t.Fatal("a non-positive amount must be acked and dropped, not requeued")
	}

	// An unknown rail is dropped too.
	unknown, err := json.Marshal(domain.PaymentReport{Rail: "cash", TxID: "x", Amount: 100})
	if err != nil {
		t.Fatalf("failed to marshal report: %v", err)
	}
	if !svc.PaymentReportBindings()[RoutingKeyBankReport](unknown) {
		t.Fatal("an unknown rail must be acked and dropped, not requeued")
	}
}
