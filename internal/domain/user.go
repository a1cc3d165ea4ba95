// User is the simplified view of a platform user that the commerce engine
// needs: identity plus the internal balance credited by resales and refunds.
// Identity issuance lives in the auth service; we only consume its subject id.

package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	WalletAddress  *string   `json:"wallet_address,omitempty"`
	Balance        int64     `json:"balance"` // in cents
	IsFounderAdmin bool      `json:"is_founder_admin"`
	CreatedAt      time.Time `json:"created_at"`
}

// WithdrawalFeePercent is the platform's cut on balance withdrawals.
const WithdrawalFeePercent = 1

// WithdrawalFee computes the 1% withdrawal surcharge.
func WithdrawalFee(amount int64) int64 {
	return amount * WithdrawalFeePercent / 100
}
