/**
 * @description
 * This file contains the buyer-facing HTTP handlers for the
 * commerce-service. Handlers parse incoming requests, call the application
 * service and write the HTTP response; all business rules live below them.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: Route parameter extraction.
 * - internal/app, internal/domain: Service logic, models and error kinds.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fera-art/commerce-service/internal/app"
	"github.com/fera-art/commerce-service/internal/domain"
)

// CommerceHandlers holds the application service that handlers will use.
type CommerceHandlers struct {
	service *app.Service
}

// NewCommerceHandlers creates a new instance of CommerceHandlers.
func NewCommerceHandlers(service *app.Service) *CommerceHandlers {
	return &CommerceHandlers{service: service}
}

func (h *CommerceHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
		}
	}
}

func (h *CommerceHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses.
func (h *CommerceHandlers) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrAmountMismatch):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *CommerceHandlers) authedUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := GetAuthUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "could not get user id from context")
		return uuid.Nil, false
	}
	return userID, true
}

func urlUUID(r *http.Request, param string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, param))
}

// orderResponse pairs an order with the payer-facing instructions.
type orderResponse struct {
	Order        *domain.PaymentOrder     `json:"order"`
	Instructions *app.PaymentInstructions `json:"payment_instructions,omitempty"`
}

// CreateOrderHandler opens a payment order for an asset.
func (h *CommerceHandlers) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req app.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, instructions, err := h.service.CreateOrder(r.Context(), userID, req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, orderResponse{Order: order, Instructions: instructions})
}

// GetOrderHandler returns one of the caller's orders.
func (h *CommerceHandlers) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}
	orderID, err := urlUUID(r, "orderID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), orderID, userID, false)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// CancelOrderHandler abandons one of the caller's unpaid orders.
func (h *CommerceHandlers) CancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}
	orderID, err := urlUUID(r, "orderID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.service.CancelOrder(r.Context(), orderID, userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

// GetAssetHandler returns a single asset.
func (h *CommerceHandlers) GetAssetHandler(w http.ResponseWriter, r *http.Request) {
	assetID, err := urlUUID(r, "assetID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid asset id")
		return
	}
	asset, err := h.service.GetAsset(r.Context(), assetID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, asset)
}

// ListMyAssetsHandler returns the caller's collection.
func (h *CommerceHandlers) ListMyAssetsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}
	assets, err := h.service.ListOwnedAssets(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, assets)
}

// MarkAssetUsedHandler records extraction of the deliverable.
func (h *CommerceHandlers) MarkAssetUsedHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}
	assetID, err := urlUUID(r, "assetID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	asset, err := h.service.MarkAssetUsed(r.Context(), assetID, userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, asset)
}

// RefundAssetHandler refunds an unused acquisition to the caller's balance.
func (h *CommerceHandlers) RefundAssetHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}
	assetID, err := urlUUID(r, "assetID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	refunded, err := h.service.RefundAsset(r.Context(), assetID, userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"refunded_amount": refunded})
}

// ListListingsHandler returns everything currently for sale.
func (h *CommerceHandlers) ListListingsHandler(w http.ResponseWriter, r *http.Request) {
	listings, err := h.service.ListActiveListings(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listings)
}

// CreateListingHandler relists an owned asset.
func (h *CommerceHandlers) CreateListingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req app.CreateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	listing, err := h.service.CreateListing(r.Context(), userID, req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, listing)
}

// BuyListingHandler settles a resale for the caller.
func (h *CommerceHandlers) BuyListingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}
	listingID, err := urlUUID(r, "listingID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	listing, err := h.service.BuyListing(r.Context(), listingID, userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listing)
}

// CancelListingHandler withdraws one of the caller's active listings.
func (h *CommerceHandlers) CancelListingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}
	listingID, err := urlUUID(r, "listingID")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid listing id")
		return
	}

	listing, err := h.service.CancelListing(r.Context(), listingID, userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listing)
}

// GetBalanceHandler returns the caller's internal balance.
func (h *CommerceHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}
	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

// ListLedgerHandler returns the caller's money movement history.
func (h *CommerceHandlers) ListLedgerHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}
	entries, err := h.service.ListLedgerEntries(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

type withdrawRequest struct {
	Amount      int64  `json:"amount"`
	Destination string `json:"destination"`
}

// WithdrawHandler debits the caller's balance and queues the payout.
func (h *CommerceHandlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.service.Withdraw(r.Context(), userID, req.Amount, req.Destination)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}
