package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/logging"
	"github.com/gem-ledger/internal/models"
	"github.com/gem-ledger/internal/types"
)

// WithdrawalRequest represents input for requesting a payout
type WithdrawalRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Address  string `json:"address"`
}

// WithdrawalService runs the PENDING -> COMPLETED/REJECTED workflow
type WithdrawalService struct {
	tx          TxManager
	withdrawals WithdrawalRepository
	ledger      *LedgerService
	now         func() time.Time
}

// NewWithdrawalService creates a withdrawal service
func NewWithdrawalService(tx TxManager, withdrawals WithdrawalRepository, ledger *LedgerService) *WithdrawalService {
	return &WithdrawalService{
		tx:          tx,
		withdrawals: withdrawals,
		ledger:      ledger,
		now:         time.Now,
	}
}

// RequestWithdrawal debits the amount and files a PENDING request in one transaction
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, accountID string, in WithdrawalRequest) (*models.Withdrawal, error) {
	acc, err := s.ledger.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.IsBanned {
		return nil, apperrors.NewAccountBannedError(accountID)
	}
	if !acc.IsVerified {
		return nil, apperrors.NewMembershipRequiredError(accountID)
	}

	currency, ok := types.ParseCurrency(in.Currency)
	if !ok {
		return nil, apperrors.NewInvalidParameterError("currency", "unsupported currency "+in.Currency)
	}
	if in.Amount <= 0 {
		return nil, apperrors.NewInvalidParameterError("amount", "must be positive")
	}

	settings, err := s.ledger.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if minimum := settings.MinimumFor(currency); in.Amount < minimum {
		return nil, apperrors.NewBelowMinimumError(currency, in.Amount, minimum)
	}

	address := strings.TrimSpace(in.Address)
	if address == "" {
		return nil, apperrors.NewInvalidAddressError(in.Address)
	}

	w := &models.Withdrawal{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Amount:    in.Amount,
		Currency:  currency,
		Address:   address,
		Status:    types.WithdrawalPending,
		CreatedAt: s.now().UTC(),
	}

	var events []models.LedgerEvent
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		locked, err := s.ledger.accounts.GetForUpdate(ctx, accountID)
		if err != nil {
			return wrapRepoError("lock account", err)
		}
		_, evs, err := s.ledger.mutate(ctx, locked, Delta{
			Balance:       -in.Amount,
			Kind:          types.EventWithdrawalDebit,
			Reference:     w.ID,
			UserInitiated: true,
		}, settings.Levels)
		if err != nil {
			return err
		}

		w.Username = locked.Username
		if err := s.withdrawals.Create(ctx, w); err != nil {
			return apperrors.NewDatabaseError("create withdrawal", err)
		}
		events = evs
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.ledger.emit(ctx, events)
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"withdrawalId": w.ID,
		"accountId":    accountID,
		"amount":       w.Amount,
		"currency":     w.Currency,
	}).Info("withdrawal requested")
	return w, nil
}

// ResolveWithdrawal moves a PENDING request to COMPLETED or REJECTED.
// Rejection refunds the amount.
func (s *WithdrawalService) ResolveWithdrawal(ctx context.Context, withdrawalID string, outcome types.WithdrawalStatus) (*models.Withdrawal, error) {
	outcome = types.WithdrawalStatus(strings.ToUpper(strings.TrimSpace(string(outcome))))
	if !outcome.Terminal() {
		return nil, apperrors.NewInvalidParameterError("status", "must be COMPLETED or REJECTED")
	}

	var (
		levels []models.LevelRequirement
		err    error
	)
	if outcome == types.WithdrawalRejected {
		if levels, err = s.ledger.levels(ctx); err != nil {
			return nil, err
		}
	}

	var (
		w      *models.Withdrawal
		events []models.LedgerEvent
	)
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		w, err = s.withdrawals.GetForUpdate(ctx, withdrawalID)
		if err != nil {
			return wrapRepoError("lock withdrawal", err)
		}
		if !w.Status.CanTransition(outcome) {
			return apperrors.NewAlreadyResolvedError(w.ID, w.Status)
		}

		resolvedAt := s.now().UTC()
		w.Status = outcome
		w.ResolvedAt = &resolvedAt
		if err := s.withdrawals.UpdateStatus(ctx, w); err != nil {
			return wrapRepoError("update withdrawal", err)
		}

		if outcome != types.WithdrawalRejected {
			return nil
		}
		acc, err := s.ledger.accounts.GetForUpdate(ctx, w.AccountID)
		if err != nil {
			return wrapRepoError("lock account", err)
		}
		_, events, err = s.ledger.mutate(ctx, acc, Delta{
			Balance:   w.Amount,
			Kind:      types.EventWithdrawalRefund,
			Reference: w.ID,
		}, levels)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.ledger.emit(ctx, events)
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"withdrawalId": w.ID,
		"accountId":    w.AccountID,
		"status":       w.Status,
		"amount":       w.Amount,
	}).Info("withdrawal resolved")
	return w, nil
}

// ListWithdrawals returns requests matching the filter, newest first
func (s *WithdrawalService) ListWithdrawals(ctx context.Context, filter models.WithdrawalFilter) ([]*models.Withdrawal, error) {
	if filter.Status != "" {
		filter.Status = types.WithdrawalStatus(strings.ToUpper(string(filter.Status)))
		switch filter.Status {
		case types.WithdrawalPending, types.WithdrawalCompleted, types.WithdrawalRejected:
		default:
			return nil, apperrors.NewInvalidParameterError("status", "unknown status "+string(filter.Status))
		}
	}
	if filter.Limit < 0 {
		return nil, apperrors.NewInvalidParameterError("limit", "must not be negative")
	}

	withdrawals, err := s.withdrawals.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list withdrawals", err)
	}
	return withdrawals, nil
}
