/**
 * @description
 * The payment matcher: operator-reported bank transfers and blockchain
 * transactions are recorded, matched against open payment orders by
 * reference, checked against the amount tolerance band and, on success,
 * advance the matched order to PAYMENT_RECEIVED.
 *
 * Matching rules, in order:
 *  1. Currency must equal the order's currency; crypto reports must also be
 *     on the order's network.
 *  2. References are compared normalized (case-folded, punctuation and
 *     whitespace stripped). An exact normalized equality beats a substring
 *     hit; the substring tier runs both directions, so a reference buried in
 *     a longer memo and a memo the rail truncated mid-reference both match.
 *     Within the same tier the earliest-created order wins.
 *  3. The amount must land within total ± tolerance. Above the band the
 *     order still advances with the surplus flagged; below it the order
 *     stays PENDING_PAYMENT.
 *
 * @notes
 * - Recording is idempotent on the transaction id: replaying a report
 *   returns the stored verdict without re-running the matcher.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fera-art/commerce-service/internal/domain"
)

// RecordTransactionRequest is the operator's report of one observed payment.
type RecordTransactionRequest struct {
	TxID          string               `json:"tx_id"`
	Amount        int64                `json:"amount"`
	Currency      string               `json:"currency"`
	Network       domain.CryptoNetwork `json:"network,omitempty"`
	Counterparty  string               `json:"counterparty"`
	Reference     string               `json:"reference"`
	Confirmations int                  `json:"confirmations,omitempty"`
}

// MatchResult is what recording a transaction produced.
type MatchResult struct {
	Transaction *domain.ExternalTransactionRecord `json:"transaction"`
	Order       *domain.PaymentOrder              `json:"order,omitempty"`
	Outcome     domain.MatchOutcome               `json:"outcome"`
	Surplus     int64                             `json:"surplus,omitempty"`
	Replayed    bool                              `json:"replayed"`
}

// RecordBankTransaction records a EUR bank transfer report and runs the
// matcher over it.
func (s *Service) RecordBankTransaction(ctx context.Context, req RecordTransactionRequest) (*MatchResult, error) {
	if err := validateReport(req); err != nil {
		return nil, err
	}
	if req.Currency == "" {
		req.Currency = domain.CurrencyEUR
	}
	rec := &domain.ExternalTransactionRecord{
		ID:           strings.TrimSpace(req.TxID),
		Rail:         domain.RailBank,
		Amount:       req.Amount,
		Currency:     strings.ToUpper(req.Currency),
		Counterparty: req.Counterparty,
		Reference:    req.Reference,
		Outcome:      domain.OutcomeUnmatched,
		RecordedAt:   time.Now().UTC(),
	}
	return s.recordAndMatch(ctx, rec)
}

// RecordCryptoTransaction records a USDT transaction report and runs the
// matcher over it.
func (s *Service) RecordCryptoTransaction(ctx context.Context, req RecordTransactionRequest) (*MatchResult, error) {
	if err := validateReport(req); err != nil {
		return nil, err
	}
	if !domain.ValidCryptoNetwork(req.Network) {
		return nil, fmt.Errorf("%w: unsupported crypto network %q", domain.ErrValidation, req.Network)
	}
	if req.Currency == "" {
		req.Currency = domain.CurrencyUSDT
	}
	rec := &domain.ExternalTransactionRecord{
		ID:            strings.TrimSpace(req.TxID),
		Rail:          domain.RailCrypto,
		Amount:        req.Amount,
		Currency:      strings.ToUpper(req.Currency),
		Network:       req.Network,
		Counterparty:  req.Counterparty,
		Reference:     req.Reference,
		Confirmations: req.Confirmations,
		Outcome:       domain.OutcomeUnmatched,
		RecordedAt:    time.Now().UTC(),
	}
	return s.recordAndMatch(ctx, rec)
}

func validateReport(req RecordTransactionRequest) error {
	if strings.TrimSpace(req.TxID) == "" {
		return fmt.Errorf("%w: transaction id is required", domain.ErrValidation)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	return nil
}

func (s *Service) recordAndMatch(ctx context.Context, rec *domain.ExternalTransactionRecord) (*MatchResult, error) {
	existing, err := s.repo.RecordExternalTransaction(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}
	if existing != nil {
		// Replay: hand back the stored verdict.
		result := &MatchResult{Transaction: existing, Outcome: existing.Outcome, Surplus: existing.Surplus, Replayed: true}
		if existing.MatchedOrderID != nil {
			if order, ferr := s.repo.FindOrderByID(ctx, *existing.MatchedOrderID); ferr == nil {
				result.Order = order
			}
		}
		log.Printf("level=info component=matcher msg=\"replayed transaction report\" tx_id=%s outcome=%s", existing.ID, existing.Outcome)
		return result, nil
	}

	open, err := s.repo.ListOpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	order := matchOrder(rec, open, time.Now())
	if order == nil {
		if err := s.repo.AnnotateTransactionMatch(ctx, rec.ID, nil, domain.OutcomeUnmatched, 0); err != nil {
			return nil, err
		}
		rec.Outcome = domain.OutcomeUnmatched
		log.Printf("level=warn component=matcher msg=\"no order matched, queued for review\" tx_id=%s rail=%s amount=%d reference=%q",
			rec.ID, rec.Rail, rec.Amount, rec.Reference)
		return &MatchResult{Transaction: rec, Outcome: domain.OutcomeUnmatched}, nil
	}

	outcome, surplus := classifyAmount(rec.Amount, order.TotalAmount, s.settings.TolerancePercent)
	if err := s.repo.AnnotateTransactionMatch(ctx, rec.ID, &order.ID, outcome, surplus); err != nil {
		return nil, err
	}
	rec.Outcome = outcome
	rec.Surplus = surplus
	rec.Matched = outcome.Advances()
	id := order.ID
	rec.MatchedOrderID = &id

	if !outcome.Advances() {
		log.Printf("level=warn component=matcher msg=\"underpayment, order not advanced\" tx_id=%s order_id=%s amount=%d expected=%d",
			rec.ID, order.ID, rec.Amount, order.TotalAmount)
		return &MatchResult{Transaction: rec, Order: order, Outcome: outcome}, nil
	}

	advanced, err := s.repo.MarkOrderPaymentReceived(ctx, order.ID, rec.ID)
	if err != nil {
		// The order left PENDING_PAYMENT between listing and marking; park the
		// report for manual review instead of failing the record.
		log.Printf("level=warn component=matcher msg=\"matched order no longer pending, queued for review\" tx_id=%s order_id=%s err=%v", rec.ID, order.ID, err)
		if aerr := s.repo.AnnotateTransactionMatch(ctx, rec.ID, nil, domain.OutcomeUnmatched, 0); aerr != nil {
			return nil, aerr
		}
		rec.Outcome = domain.OutcomeUnmatched
		rec.Matched = false
		rec.MatchedOrderID = nil
		rec.Surplus = 0
		return &MatchResult{Transaction: rec, Outcome: domain.OutcomeUnmatched}, nil
	}

	s.publishOrderEvent(ctx, domain.EventOrderPaymentReceived, advanced)
	log.Printf("level=info component=matcher msg=\"payment matched\" tx_id=%s order_id=%s reference=%s outcome=%s surplus=%d",
		rec.ID, advanced.ID, advanced.Reference, outcome, surplus)
	return &MatchResult{Transaction: rec, Order: advanced, Outcome: outcome, Surplus: surplus}, nil
}

// minTruncatedMemoLen is the shortest normalized memo that may match as a
// prefix of a longer order reference. Full references normalize to 19
// characters; anything shorter than this is too generic to pin an order.
const minTruncatedMemoLen = 8

// matchOrder picks the open order the report pays for, or nil. Orders past
// their deadline are never match candidates even before the sweeper catches
// them.
func matchOrder(rec *domain.ExternalTransactionRecord, open []domain.PaymentOrder, now time.Time) *domain.PaymentOrder {
	memo := normalizeReference(rec.Reference)
	if memo == "" {
		return nil
	}

	var substringHit *domain.PaymentOrder
	for i := range open {
		order := &open[i]
		if order.ExpiredAt(now) {
			continue
		}
		if order.Currency != rec.Currency {
			continue
		}
		if rec.Rail == domain.RailBank && order.Channel != domain.ChannelBank {
			continue
		}
		if rec.Rail == domain.RailCrypto && (order.Channel != domain.ChannelCrypto || order.Network != rec.Network) {
			continue
		}

		ref := normalizeReference(order.Reference)
		if ref == memo {
			// Exact normalized equality; the list is oldest-first, so the
			// first hit is the earliest-created order.
			return order
		}
		if substringHit == nil && containsReference(memo, ref) {
			substringHit = order
		}
	}
	return substringHit
}

// containsReference reports a substring hit in either direction: the order
// reference buried inside a longer memo, or a memo the rail truncated to a
// prefix (or any slice) of the reference.
func containsReference(memo, ref string) bool {
	if strings.Contains(memo, ref) {
		return true
	}
	return len(memo) >= minTruncatedMemoLen && strings.Contains(ref, memo)
}

// classifyAmount places the paid amount on the tolerance band around the
// expected total.
func classifyAmount(amount, total, tolerancePercent int64) (domain.MatchOutcome, int64) {
	tolerance := total * tolerancePercent / 100
	switch {
	case amount < total-tolerance:
		return domain.OutcomeUnderpaid, 0
	case amount > total+tolerance:
		return domain.OutcomeOverpayment, amount - total
	default:
		return domain.OutcomeMatched, 0
	}
}

// normalizeReference case-folds and strips everything that is not a letter
// or digit, so "iag-2024-A1... " in a bank memo still matches.
func normalizeReference(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PairTransaction manually matches a recorded but unmatched transaction to
// an order. The tolerance band still applies; an operator cannot pair an
// underpayment.
func (s *Service) PairTransaction(ctx context.Context, txID string, orderID uuid.UUID) (*MatchResult, error) {
	rec, err := s.repo.FindExternalTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if rec.Matched {
		return nil, fmt.Errorf("%w: transaction %s is already matched", domain.ErrInvalidState, txID)
	}
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderPendingPayment {
		return nil, fmt.Errorf("%w: order is %s, cannot pair a payment", domain.ErrInvalidState, order.Status)
	}
	if order.Currency != rec.Currency {
		return nil, fmt.Errorf("%w: transaction currency %s does not match order currency %s", domain.ErrValidation, rec.Currency, order.Currency)
	}

	outcome, surplus := classifyAmount(rec.Amount, order.TotalAmount, s.settings.TolerancePercent)
	if !outcome.Advances() {
		return nil, fmt.Errorf("%w: paid %d, expected %d", domain.ErrAmountMismatch, rec.Amount, order.TotalAmount)
	}

	if err := s.repo.AnnotateTransactionMatch(ctx, txID, &orderID, outcome, surplus); err != nil {
		return nil, err
	}
	advanced, err := s.repo.MarkOrderPaymentReceived(ctx, orderID, txID)
	if err != nil {
		return nil, err
	}

	rec.Outcome = outcome
	rec.Surplus = surplus
	rec.Matched = true
	rec.MatchedOrderID = &orderID

	s.publishOrderEvent(ctx, domain.EventOrderPaymentReceived, advanced)
	log.Printf("level=info component=matcher msg=\"transaction paired manually\" tx_id=%s order_id=%s outcome=%s", txID, orderID, outcome)
	return &MatchResult{Transaction: rec, Order: advanced, Outcome: outcome, Surplus: surplus}, nil
}

// GetTransaction returns one recorded external transaction.
func (s *Service) GetTransaction(ctx context.Context, txID string) (*domain.ExternalTransactionRecord, error) {
	return s.repo.FindExternalTransaction(ctx, txID)
}

// ListUnmatchedTransactions returns the manual review queue, oldest first.
func (s *Service) ListUnmatchedTransactions(ctx context.Context) ([]domain.ExternalTransactionRecord, error) {
	return s.repo.ListUnmatchedTransactions(ctx)
}
