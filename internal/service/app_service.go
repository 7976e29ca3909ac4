package service

import (
	"context"

	"github.com/gem-ledger/internal/models"
	"github.com/gem-ledger/internal/progression"
)

// AppService assembles the client-facing views
type AppService struct {
	ledger      *LedgerService
	settings    *SettingsService
	tasks       *TaskService
	withdrawals *WithdrawalService
}

// NewAppService creates an app service
func NewAppService(ledger *LedgerService, settings *SettingsService, tasks *TaskService, withdrawals *WithdrawalService) *AppService {
	return &AppService{
		ledger:      ledger,
		settings:    settings,
		tasks:       tasks,
		withdrawals: withdrawals,
	}
}

// Init returns everything a client shows on first load. Admins also get
// every withdrawal and the account list.
func (s *AppService) Init(ctx context.Context, acc *models.Account) (*models.InitPayload, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	tasks, err := s.tasks.ListAvailable(ctx, acc.ID)
	if err != nil {
		return nil, err
	}

	filter := models.WithdrawalFilter{AccountID: acc.ID}
	if acc.IsAdmin() {
		filter = models.WithdrawalFilter{}
	}
	withdrawals, err := s.withdrawals.ListWithdrawals(ctx, filter)
	if err != nil {
		return nil, err
	}

	payload := &models.InitPayload{
		Account:     View(acc, settings),
		Tasks:       tasks,
		Settings:    settings,
		Withdrawals: withdrawals,
	}
	if acc.IsAdmin() {
		payload.Accounts, err = s.ledger.List(ctx, 0, 0)
		if err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// Sync updates the account's profile fields and returns its view
func (s *AppService) Sync(ctx context.Context, accountID string, in ProfileUpdate) (*models.AccountView, error) {
	acc, err := s.ledger.UpdateProfile(ctx, accountID, in)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	view := View(acc, settings)
	return &view, nil
}

// View decorates an account with its level progress
func View(acc *models.Account, settings *models.GlobalSettings) models.AccountView {
	return models.AccountView{
		Account:     acc,
		NextLevelXP: progression.NextThreshold(acc.Level, settings.Levels),
		Progress:    progression.Progress(acc.XP, acc.Level, settings.Levels),
	}
}
