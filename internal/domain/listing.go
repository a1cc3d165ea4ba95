/**
 * @description
 * This file defines the P2P marketplace listing model. A listing re-enters
 * an owned asset into commerce; settlement happens from the buyer's already
 * reconciled internal balance, so resales never touch the matcher.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// ListingStatus is the lifecycle state of a marketplace listing.
type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingSold      ListingStatus = "sold"
	ListingCancelled ListingStatus = "cancelled"
)

// MarketplaceListing maps to the `marketplace_listings` table.
type MarketplaceListing struct {
	ID         uuid.UUID     `json:"id"`
	AssetID    uuid.UUID     `json:"asset_id"`
	SellerID   uuid.UUID     `json:"seller_id"`
	SalePrice  int64         `json:"sale_price"` // in cents
	Commission int64         `json:"commission"` // 1% of sale price, in cents
	Status     ListingStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// MinResalePrice is the lowest price an owner may relist at: 1% above their
// own acquisition price, rounded up so the floor is never undercut by a cent.
func MinResalePrice(acquisitionPrice int64) int64 {
	return (acquisitionPrice*101 + 99) / 100
}

// ResaleCommission computes the platform's 1% cut. Seller proceeds are
// salePrice - commission, so the split always conserves the sale price.
func ResaleCommission(salePrice int64) int64 {
	return salePrice / 100
}
