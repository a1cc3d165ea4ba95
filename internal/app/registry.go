/**
 * @description
 * Asset registry use cases: cataloguing artworks, claiming ownership,
 * marking the deliverable as used and refunding an unused acquisition.
 * Ownership transitions run inside the repository's atomic methods; this
 * layer validates input and reports the outcome.
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

// CreateAssetRequest is the operator's input for cataloguing a new artwork.
type CreateAssetRequest struct {
	Title      string   `json:"title"`
	ArtistName string   `json:"artist_name"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags,omitempty"`
	BasePrice  int64    `json:"base_price"`
}

// CreateAsset catalogues a new artwork as AVAILABLE.
func (s *Service) CreateAsset(ctx context.Context, req CreateAssetRequest) (*domain.Asset, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if req.BasePrice <= 0 {
		return nil, fmt.Errorf("%w: base price must be positive", domain.ErrValidation)
	}

	now := time.Now().UTC()
	asset := &domain.Asset{
		ID:         uuid.New(),
		Title:      strings.TrimSpace(req.Title),
		ArtistName: strings.TrimSpace(req.ArtistName),
		Category:   strings.TrimSpace(req.Category),
		Tags:       req.Tags,
		BasePrice:  req.BasePrice,
		State:      domain.AssetAvailable,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateAsset(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}
	log.Printf("level=info component=registry msg=\"asset catalogued\" asset_id=%s title=%q base_price=%d", asset.ID, asset.Title, asset.BasePrice)
	return asset, nil
}

// GetAsset returns a single asset by id.
func (s *Service) GetAsset(ctx context.Context, assetID uuid.UUID) (*domain.Asset, error) {
	return s.repo.FindAssetByID(ctx, assetID)
}

// ListOwnedAssets returns the caller's collection.
func (s *Service) ListOwnedAssets(ctx context.Context, ownerID uuid.UUID) ([]domain.Asset, error) {
	return s.repo.ListAssetsByOwner(ctx, ownerID)
}

// AcquireAsset claims ownership for the buyer. Exactly one of any number of
// concurrent acquisitions succeeds; the rest fail with a conflict.
func (s *Service) AcquireAsset(ctx context.Context, assetID, buyerID uuid.UUID) (*domain.Asset, error) {
	asset, err := s.repo.FindAssetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ClaimAssetAtomic(ctx, assetID, buyerID, asset.BasePrice); err != nil {
		return nil, err
	}
	log.Printf("level=info component=registry msg=\"asset acquired\" asset_id=%s owner_id=%s", assetID, buyerID)
	return s.repo.FindAssetByID(ctx, assetID)
}

// MarkAssetUsed records that the owner extracted the deliverable. The asset
// leaves commerce permanently: no resale, no refund from here on.
func (s *Service) MarkAssetUsed(ctx context.Context, assetID, ownerID uuid.UUID) (*domain.Asset, error) {
	if err := s.repo.MarkAssetUsed(ctx, assetID, ownerID); err != nil {
		return nil, err
	}
	log.Printf("level=info component=registry msg=\"asset marked used\" asset_id=%s owner_id=%s", assetID, ownerID)
	return s.repo.FindAssetByID(ctx, assetID)
}

// RefundAsset reverts an unused, untransferred acquisition and credits the
// owner's internal balance with the acquisition price. The license
// protection fee was never part of the acquisition price, so it stays with
// the platform.
func (s *Service) RefundAsset(ctx context.Context, assetID, ownerID uuid.UUID) (int64, error) {
	refunded, err := s.repo.RefundAssetAtomic(ctx, assetID, ownerID)
	if err != nil {
		return 0, err
	}
	log.Printf("level=info component=registry msg=\"asset refunded\" asset_id=%s owner_id=%s amount=%d", assetID, ownerID, refunded)
	return refunded, nil
}
