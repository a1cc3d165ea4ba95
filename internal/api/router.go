/**
 * @description
 * This file sets up the HTTP router for the commerce-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies authentication and rate-limit middleware.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterOptions carries the cross-cutting pieces the routes need.
type RouterOptions struct {
	JWKSURL              string
	InternalAPIKey       string
	RecordRateLimiter    RateLimiter
	RecordLimitPerMinute int
}

// CommerceRoutes creates and returns the router for the commerce service.
func CommerceRoutes(h *CommerceHandlers, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Catalogue browsing is public.
	r.Get("/assets/{assetID}", h.GetAssetHandler)
	r.Get("/marketplace/listings", h.ListListingsHandler)

	// Buyer endpoints require a valid JWT.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(opts.JWKSURL))

		r.Post("/orders", h.CreateOrderHandler)
		r.Get("/orders/{orderID}", h.GetOrderHandler)
		r.Post("/orders/{orderID}/cancel", h.CancelOrderHandler)

		r.Get("/assets", h.ListMyAssetsHandler)
		r.Post("/assets/{assetID}/use", h.MarkAssetUsedHandler)
		r.Post("/assets/{assetID}/refund", h.RefundAssetHandler)

		r.Post("/marketplace/listings", h.CreateListingHandler)
		r.Post("/marketplace/listings/{listingID}/buy", h.BuyListingHandler)
		r.Post("/marketplace/listings/{listingID}/cancel", h.CancelListingHandler)

		r.Get("/wallet/balance", h.GetBalanceHandler)
		r.Get("/wallet/ledger", h.ListLedgerHandler)
		r.Post("/wallet/withdrawals", h.WithdrawHandler)
	})

	// Operator endpoints sit behind the internal API key.
	r.Route("/operator", func(r chi.Router) {
		r.Use(InternalAPIKeyMiddleware(opts.InternalAPIKey))

		r.Post("/assets", h.CreateAssetHandler)

		r.Group(func(r chi.Router) {
			r.Use(RecordRateLimitMiddleware(opts.RecordRateLimiter, "record_transaction", opts.RecordLimitPerMinute))
			r.Post("/transactions/bank", h.RecordBankTransactionHandler)
			r.Post("/transactions/crypto", h.RecordCryptoTransactionHandler)
		})

		r.Get("/transactions/unmatched", h.ListUnmatchedTransactionsHandler)
		r.Get("/transactions/{txID}", h.GetTransactionHandler)

		r.Get("/orders", h.ListOrdersHandler)
		r.Get("/orders/open", h.ListOpenOrdersHandler)
		r.Post("/orders/{orderID}/confirm", h.ConfirmOrderHandler)
		r.Post("/orders/{orderID}/refund", h.RefundOrderHandler)
		r.Post("/orders/{orderID}/pair", h.PairTransactionHandler)

		r.Post("/withdrawals/{entryID}/complete", h.CompleteWithdrawalHandler)
	})

	return r
}
