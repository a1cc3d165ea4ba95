/**
 * @description
 * This file defines the error taxonomy shared by every layer of the
 * commerce-service. Each sentinel represents one class of rejection; callers
 * wrap them with the violated invariant so the API layer can map the kind to
 * an HTTP status while the message still tells the user exactly what rule
 * was broken.
 *
 * @notes
 * - Guard violations are surfaced, never silently retried. Retrying a state
 *   machine rejection is how money gets spent twice.
 * - AmountMismatch is not a hard failure: it marks a report that landed
 *   outside the tolerance band and needs manual reconciliation.
 */

package domain

import "errors"

var (
	// ErrNotFound indicates an unknown entity id.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a lost concurrent race (double acquisition) or a
	// duplicate unique value (active order reference).
	ErrConflict = errors.New("conflict")

	// ErrInvalidState indicates an operation that is illegal for the entity's
	// current state, e.g. refunding a downloaded artwork.
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation indicates malformed or out-of-range input, e.g. a resale
	// price below the floor or an unsupported crypto network.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized indicates the acting user is not the owner, seller or
	// buyer of record for the entity being mutated.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAmountMismatch indicates a reported payment outside the matching
	// tolerance band. The report is stored for manual review.
	ErrAmountMismatch = errors.New("amount outside tolerance")
)
