/**
 * @description
 * Operator-facing HTTP handlers, gated by the internal API key: cataloguing
 * assets, reporting observed bank and crypto transactions, the manual review
 * queue, order confirmation and refunds, withdrawal settlement.
 */

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fera-art/commerce-service/internal/app"
)

// CreateAssetHandler catalogues a new artwork.
func (h *CommerceHandlers) CreateAssetHandler(w http.ResponseWriter, r *http.Request) {
	var req app.CreateAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	asset, err := h.service.CreateAsset(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, asset)
}

// RecordBankTransactionHandler reports an observed EUR bank transfer.
func (h *CommerceHandlers) RecordBankTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req app.RecordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.RecordBankTransaction(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, recordStatus(result), result)
}

// RecordCryptoTransactionHandler reports an observed USDT transaction.
func (h *CommerceHandlers) RecordCryptoTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req app.RecordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.RecordCryptoTransaction(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, recordStatus(result), result)
}

// recordStatus keeps replays distinguishable from fresh recordings.
func recordStatus(result *app.MatchResult) int {
	if result.Replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}

// GetTransactionHandler returns one recorded external transaction.
func (h *CommerceHandlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	txID := strings.TrimSpace(chi.URLParam(r, "txID"))
	if txID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	rec, err := h.service.GetTransaction(r.Context(), txID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// ListUnmatchedTransactionsHandler returns the manual review queue.
func (h *CommerceHandlers) ListUnmatchedTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListUnmatchedTransactions(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, records)
}

type pairRequest struct {
	TxID string `json:"tx_id"`
}

// PairTransactionHandler manually matches a queued transaction to an order.
func (h *CommerceHandlers) PairTransactionHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlUUID(r, "orderID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.TxID) == "" {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.PairTransaction(r.Context(), strings.TrimSpace(req.TxID), orderID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ListOrdersHandler returns every order. Operator view.
func (h *CommerceHandlers) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

// ListOpenOrdersHandler returns the orders still awaiting payment.
func (h *CommerceHandlers) ListOpenOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOpenOrders(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

// ConfirmOrderHandler approves a paid order and delivers the asset.
func (h *CommerceHandlers) ConfirmOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlUUID(r, "orderID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.service.ConfirmAndDeliver(r.Context(), orderID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

type refundOrderRequest struct {
	Amount int64  `json:"amount,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// RefundOrderHandler refunds a paid order. The license protection fee is
// retained; omitting the amount refunds the base price.
func (h *CommerceHandlers) RefundOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := urlUUID(r, "orderID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req refundOrderRequest
	if r.Body != nil {
		// Body is optional for a default refund.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	order, err := h.service.RefundOrder(r.Context(), orderID, req.Amount, req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// CompleteWithdrawalHandler marks a pending withdrawal as settled.
func (h *CommerceHandlers) CompleteWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	entryID, err := urlUUID(r, "entryID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid ledger entry id")
		return
	}

	if err := h.service.CompleteWithdrawal(r.Context(), entryID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}
