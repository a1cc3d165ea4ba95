/**
 * @description
 * This file defines the artwork asset model and its ownership state machine.
 * An asset cycles through ownership states for its whole life; the state and
 * the owner reference must always agree (Available implies no owner).
 *
 * @notes
 * - Amounts are stored as `int64` in cents to avoid floating-point
 *   inaccuracies with financial data.
 * - `Transferred` is a permanent flag, not a state: a transferred asset keeps
 *   cycling through Owned/Listed but can never be refunded again.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssetState is the single ownership state of an asset.
type AssetState string

const (
	AssetAvailable AssetState = "AVAILABLE"
	AssetOwned     AssetState = "OWNED"
	AssetListed    AssetState = "LISTED"
	AssetUsed      AssetState = "USED"
	AssetRefunded  AssetState = "REFUNDED"
)

// assetValidNext encodes the legal ownership transitions. USED is terminal
// for commerce: once the buyer extracts the deliverable, protections end.
var assetValidNext = map[AssetState]map[AssetState]bool{
	AssetAvailable: {AssetOwned: true},
	AssetRefunded:  {AssetOwned: true},
	AssetOwned:     {AssetUsed: true, AssetListed: true, AssetRefunded: true, AssetOwned: true},
	AssetListed:    {AssetOwned: true},
	AssetUsed:      {},
}

// CanTransitionAsset reports whether an asset may move from one ownership
// state to another. Owned -> Owned is the resale transfer to a new owner.
func CanTransitionAsset(from, to AssetState) bool {
	return assetValidNext[from][to]
}

// Asset represents a unique digital artwork whose ownership this service
// brokers. It maps to the `assets` table.
type Asset struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	ArtistName       string     `json:"artist_name"`
	Category         string     `json:"category"`
	Tags             []string   `json:"tags,omitempty"`
	BasePrice        int64      `json:"base_price"` // in cents
	State            AssetState `json:"state"`
	OwnerID          *uuid.UUID `json:"owner_id,omitempty"`
	AcquisitionPrice int64      `json:"acquisition_price"` // price the current owner paid, in cents
	Transferred      bool       `json:"transferred"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Acquirable reports whether the asset can be claimed by a primary purchase.
func (a *Asset) Acquirable() bool {
	return a.State == AssetAvailable || a.State == AssetRefunded
}

// OwnedBy reports whether userID is the asset's current owner.
func (a *Asset) OwnedBy(userID uuid.UUID) bool {
	return a.OwnerID != nil && *a.OwnerID == userID
}
