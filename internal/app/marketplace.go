/**
 * @description
 * P2P marketplace use cases: listing an owned asset for resale, buying a
 * listing and cancelling one. Resales settle internally from ledgered
 * balances, never through the external rails, so no matcher involvement.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/fera-art/commerce-service/internal/domain"
	"github.com/fera-art/commerce-service/pkg/rabbitmq"
)

// CreateListingRequest is the seller's input for relisting an owned asset.
type CreateListingRequest struct {
	AssetID   uuid.UUID `json:"asset_id"`
	SalePrice int64     `json:"sale_price"`
}

// CreateListing puts an owned asset up for resale. The price floor is 1%
// above the seller's own acquisition price, so the platform's commission can
// never push a seller into a loss.
func (s *Service) CreateListing(ctx context.Context, sellerID uuid.UUID, req CreateListingRequest) (*domain.MarketplaceListing, error) {
	asset, err := s.repo.FindAssetByID(ctx, req.AssetID)
	if err != nil {
		return nil, err
	}
	if !asset.OwnedBy(sellerID) {
		return nil, fmt.Errorf("%w: caller does not own asset %s", domain.ErrUnauthorized, req.AssetID)
	}
	if floor := domain.MinResalePrice(asset.AcquisitionPrice); req.SalePrice < floor {
		return nil, fmt.Errorf("%w: sale price %d below minimum %d", domain.ErrValidation, req.SalePrice, floor)
	}

	now := time.Now().UTC()
	listing := &domain.MarketplaceListing{
		ID:         uuid.New(),
		AssetID:    req.AssetID,
		SellerID:   sellerID,
		SalePrice:  req.SalePrice,
		Commission: domain.ResaleCommission(req.SalePrice),
		Status:     domain.ListingActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateListingAtomic(ctx, listing); err != nil {
		return nil, err
	}
	log.Printf("level=info component=marketplace msg=\"listing created\" listing_id=%s asset_id=%s price=%d commission=%d",
		listing.ID, listing.AssetID, listing.SalePrice, listing.Commission)
	return listing, nil
}

// BuyListing settles a resale: ownership transfers to the buyer, the seller
// is credited with price minus commission, the listing closes. All in one
// unit of work in the store.
func (s *Service) BuyListing(ctx context.Context, listingID, buyerID uuid.UUID) (*domain.MarketplaceListing, error) {
	listing, entry, err := s.repo.PurchaseListingAtomic(ctx, listingID, buyerID)
	if err != nil {
		return nil, err
	}

	event := domain.ListingSoldEvent{
		ListingID:      listing.ID,
		AssetID:        listing.AssetID,
		SellerID:       listing.SellerID,
		BuyerID:        buyerID,
		SalePrice:      listing.SalePrice,
		Commission:     listing.Commission,
		SellerProceeds: listing.SalePrice - listing.Commission,
		Timestamp:      time.Now().UTC(),
	}
	if perr := s.eventProducer.Publish(ctx, rabbitmq.CommerceExchange, domain.EventListingSold, event); perr != nil {
		log.Printf("level=warn component=marketplace msg=\"event publish failed\" listing_id=%s err=%v", listing.ID, perr)
	}
	s.publishLedgerEvent(ctx, entry)
	log.Printf("level=info component=marketplace msg=\"listing sold\" listing_id=%s asset_id=%s buyer_id=%s price=%d",
		listing.ID, listing.AssetID, buyerID, listing.SalePrice)
	return listing, nil
}

// CancelListing withdraws an active listing and puts the asset back in the
// seller's collection.
func (s *Service) CancelListing(ctx context.Context, listingID, sellerID uuid.UUID) (*domain.MarketplaceListing, error) {
	listing, err := s.repo.CancelListingAtomic(ctx, listingID, sellerID)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=marketplace msg=\"listing cancelled\" listing_id=%s asset_id=%s", listing.ID, listing.AssetID)
	return listing, nil
}

// GetListing returns one listing by id.
func (s *Service) GetListing(ctx context.Context, listingID uuid.UUID) (*domain.MarketplaceListing, error) {
	return s.repo.FindListingByID(ctx, listingID)
}

// ListActiveListings returns everything currently for sale, newest first.
func (s *Service) ListActiveListings(ctx context.Context) ([]domain.MarketplaceListing, error) {
	return s.repo.ListActiveListings(ctx)
}
