/**
 * @description
 * Internal balance use cases: balance lookup, ledger history and
 * withdrawals. Balances accumulate from resale proceeds and asset refunds;
 * withdrawing debits immediately and records a pending withdrawal that the
 * operator settles manually on the external rail.
 */

package app

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/fera-art/commerce-service/internal/domain"
)

// GetBalance returns the user's current internal balance in cents.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.Balance, nil
}

// ListLedgerEntries returns the user's money movement history, newest first.
func (s *Service) ListLedgerEntries(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	return s.repo.ListLedgerEntriesByUser(ctx, userID)
}

// Withdraw debits the user's balance and records the pending payout. The 1%
// withdrawal surcharge comes out of the withdrawn amount: the user receives
// amount - fee on the rail.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount int64, destination string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: withdrawal amount must be positive", domain.ErrValidation)
	}
	fee := domain.WithdrawalFee(amount)
	entry, err := s.repo.WithdrawBalanceAtomic(ctx, userID, amount, fee, destination)
	if err != nil {
		return nil, err
	}
	s.publishLedgerEvent(ctx, entry)
	log.Printf("level=info component=wallet msg=\"withdrawal requested\" user_id=%s amount=%d fee=%d entry_id=%s", userID, amount, fee, entry.ID)
	return entry, nil
}

// CompleteWithdrawal marks a pending withdrawal as settled on the external
// rail. Operator action.
func (s *Service) CompleteWithdrawal(ctx context.Context, entryID uuid.UUID) error {
	if err := s.repo.UpdateLedgerEntryStatus(ctx, entryID, domain.LedgerCompleted); err != nil {
		return err
	}
	log.Printf("level=info component=wallet msg=\"withdrawal settled\" entry_id=%s", entryID)
	return nil
}
