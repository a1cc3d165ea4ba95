/**
 * @description
 * RabbitMQ consumer wiring for payment reports. Ingest adapters that watch
 * the bank account or the USDT wallets publish observations as
 * payment.report.* messages; each one goes through the same record-and-match
 * path as the operator HTTP endpoints, so the idempotent transaction id
 * makes redelivery safe.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/fera-art/commerce-service/internal/domain"
)

// Routing keys consumed from the commerce exchange.
const (
	RoutingKeyBankReport   = "payment.report.bank"
	RoutingKeyCryptoReport = "payment.report.crypto"
)

// PaymentReportBindings returns the routing-key-to-handler map for
// rabbitmq.Consumer.ConsumeWithBindings. A handler returning false requeues
// the delivery.
func (s *Service) PaymentReportBindings() map[string]func([]byte) bool {
	return map[string]func([]byte) bool{
		RoutingKeyBankReport:   s.handlePaymentReport,
		RoutingKeyCryptoReport: s.handlePaymentReport,
	}
}

func (s *Service) handlePaymentReport(body []byte) bool {
	var report domain.PaymentReport
	if err := json.Unmarshal(body, &report); err != nil {
		log.Printf("level=error component=consumer msg=\"malformed payment report, dropping\" err=%v", err)
		// Requeueing a parse failure would loop forever.
		return true
	}

	req := RecordTransactionRequest{
		TxID:          report.TxID,
		Amount:        report.Amount,
		Currency:      report.Currency,
		Network:       report.Network,
		Counterparty:  report.Counterparty,
		Reference:     report.Reference,
		Confirmations: report.Confirmations,
	}

	ctx := context.Background()
	var result *MatchResult
	var err error
	switch report.Rail {
	case domain.RailBank:
		result, err = s.RecordBankTransaction(ctx, req)
	case domain.RailCrypto:
		result, err = s.RecordCryptoTransaction(ctx, req)
	default:
		log.Printf("level=error component=consumer msg=\"unknown payment rail, dropping\" rail=%q tx_id=%s", report.Rail, report.TxID)
		return true
	}
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			// A report the matcher will never accept; redelivery cannot fix it.
			log.Printf("level=error component=consumer msg=\"invalid payment report, dropping\" tx_id=%s err=%v", report.TxID, err)
			return true
		}
		log.Printf("level=error component=consumer msg=\"failed to record payment report, requeueing\" tx_id=%s err=%v", report.TxID, err)
		return false
	}

	log.Printf("level=info component=consumer msg=\"payment report processed\" tx_id=%s outcome=%s replayed=%v",
		report.TxID, result.Outcome, result.Replayed)
	return true
}
