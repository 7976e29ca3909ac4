package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gem-ledger/internal/audit"
	"github.com/gem-ledger/internal/config"
	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/logging"
	"github.com/gem-ledger/internal/models"
	"github.com/gem-ledger/internal/progression"
	"github.com/gem-ledger/internal/types"
)

// Delta is a single balance/XP mutation
type Delta struct {
	Balance   int64
	XP        int64
	Kind      types.LedgerEventKind
	Reference string
	// UserInitiated mutations are refused for banned accounts
	UserInitiated bool
}

// DeltaResult is the account state after ApplyDelta
type DeltaResult struct {
	Account    *models.Account
	LevelBonus int64
}

// ProfileUpdate carries the self-service fields an account may change.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Username      *string `json:"username,omitempty"`
	WalletAddress *string `json:"walletAddress,omitempty"`
}

// LedgerService owns account balances, XP and levels
type LedgerService struct {
	tx       TxManager
	accounts AccountRepository
	settings *SettingsService
	sink     audit.Sink
	admins   config.AdminConfig
	now      func() time.Time
}

// NewLedgerService creates a ledger service. sink may be nil.
func NewLedgerService(
	tx TxManager,
	accounts AccountRepository,
	settings *SettingsService,
	sink audit.Sink,
	admins config.AdminConfig,
) *LedgerService {
	return &LedgerService{
		tx:       tx,
		accounts: accounts,
		settings: settings,
		sink:     sink,
		admins:   admins,
		now:      time.Now,
	}
}

// GetOrCreate returns the account for an external identity, creating it on first contact
func (s *LedgerService) GetOrCreate(ctx context.Context, telegramID int64, displayName string) (*models.Account, error) {
	if telegramID <= 0 {
		return nil, apperrors.NewInvalidParameterError("telegramId", "must be a positive integer")
	}

	acc, err := s.accounts.GetByTelegramID(ctx, telegramID)
	if err == nil {
		return s.promote(ctx, acc)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NewDatabaseError("get account", err)
	}

	username := strings.TrimSpace(displayName)
	if username == "" {
		username = models.DefaultUsername(telegramID)
	}
	role := types.RoleUser
	if s.admins.IsAdmin(telegramID) {
		role = types.RoleAdmin
	}

	candidate := &models.Account{
		TelegramID: telegramID,
		Username:   username,
		Level:      1,
		Role:       role,
	}
	if err := s.accounts.InsertIfAbsent(ctx, candidate); err != nil {
		return nil, apperrors.NewDatabaseError("create account", err)
	}

	// a concurrent first contact may have won the insert
	acc, err = s.accounts.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get account", err)
	}
	if acc.ID == candidate.ID {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"accountId":  acc.ID,
			"telegramId": telegramID,
			"role":       acc.Role,
		}).Info("account created")
	}
	return acc, nil
}

// promote grants ADMIN to accounts whose telegram id was added to the admin list later
func (s *LedgerService) promote(ctx context.Context, acc *models.Account) (*models.Account, error) {
	if acc.IsAdmin() || !s.admins.IsAdmin(acc.TelegramID) {
		return acc, nil
	}
	return s.modify(ctx, acc.ID, func(a *models.Account) {
		a.Role = types.RoleAdmin
	})
}

// Get returns an account by id
func (s *LedgerService) Get(ctx context.Context, accountID string) (*models.Account, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, wrapRepoError("get account", err)
	}
	return acc, nil
}

// GetByTelegramID returns an account by external identity
func (s *LedgerService) GetByTelegramID(ctx context.Context, telegramID int64) (*models.Account, error) {
	acc, err := s.accounts.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, wrapRepoError("get account", err)
	}
	return acc, nil
}

// List returns accounts in creation order
func (s *LedgerService) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	if limit < 0 || offset < 0 {
		return nil, apperrors.NewInvalidParameterError("limit", "limit and offset must not be negative")
	}
	accounts, err := s.accounts.List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list accounts", err)
	}
	return accounts, nil
}

// ApplyDelta atomically mutates balance and XP, crediting level bonuses
func (s *LedgerService) ApplyDelta(ctx context.Context, accountID string, d Delta) (*DeltaResult, error) {
	levels, err := s.levels(ctx)
	if err != nil {
		return nil, err
	}

	var (
		result *DeltaResult
		events []models.LedgerEvent
	)
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		acc, err := s.accounts.GetForUpdate(ctx, accountID)
		if err != nil {
			return wrapRepoError("lock account", err)
		}
		bonus, evs, err := s.mutate(ctx, acc, d, levels)
		if err != nil {
			return err
		}
		result = &DeltaResult{Account: acc, LevelBonus: bonus}
		events = evs
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events)
	return result, nil
}

// mutate applies d to a row already locked by the caller's transaction
func (s *LedgerService) mutate(ctx context.Context, acc *models.Account, d Delta, levels []models.LevelRequirement) (int64, []models.LedgerEvent, error) {
	if d.UserInitiated && acc.IsBanned {
		return 0, nil, apperrors.NewAccountBannedError(acc.ID)
	}
	if acc.XP+d.XP < 0 {
		return 0, nil, apperrors.NewInvalidParameterError("xpDelta", "xp must not become negative")
	}
	balance := acc.Balance + d.Balance
	if balance < 0 {
		return 0, nil, apperrors.NewInsufficientFundsError(acc.Balance, -d.Balance)
	}

	xp := acc.XP + d.XP
	level := acc.Level
	var bonus int64
	// only XP gains move levels; pure balance moves stay exact
	if d.XP > 0 {
		if reached := progression.LevelOf(xp, levels); reached > level {
			level = reached
		}
		bonus = progression.BonusesBetween(acc.Level, level, levels)
	}

	acc.Balance = balance + bonus
	acc.XP = xp
	acc.Level = level
	if err := s.accounts.Update(ctx, acc); err != nil {
		return 0, nil, wrapRepoError("update account", err)
	}

	now := s.now().UTC()
	events := []models.LedgerEvent{{
		ID:           uuid.New().String(),
		AccountID:    acc.ID,
		Kind:         d.Kind,
		BalanceDelta: d.Balance,
		XPDelta:      d.XP,
		BalanceAfter: balance,
		XPAfter:      xp,
		LevelAfter:   level,
		Reference:    d.Reference,
		CreatedAt:    now,
	}}
	if bonus > 0 {
		events = append(events, models.LedgerEvent{
			ID:           uuid.New().String(),
			AccountID:    acc.ID,
			Kind:         types.EventLevelBonus,
			BalanceDelta: bonus,
			BalanceAfter: acc.Balance,
			XPAfter:      xp,
			LevelAfter:   level,
			Reference:    d.Reference,
			CreatedAt:    now,
		})
	}
	return bonus, events, nil
}

// SetBanned toggles the ban flag
func (s *LedgerService) SetBanned(ctx context.Context, accountID string, banned bool) (*models.Account, error) {
	acc, err := s.modify(ctx, accountID, func(a *models.Account) { a.IsBanned = banned })
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"accountId": accountID,
		"banned":    banned,
	}).Info("account ban updated")
	return acc, nil
}

// SetVerified sets the membership flag
func (s *LedgerService) SetVerified(ctx context.Context, accountID string, verified bool) (*models.Account, error) {
	acc, err := s.modify(ctx, accountID, func(a *models.Account) { a.IsVerified = verified })
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"accountId": accountID,
		"verified":  verified,
	}).Info("account verification updated")
	return acc, nil
}

// UpdateProfile changes the username and remembered wallet address
func (s *LedgerService) UpdateProfile(ctx context.Context, accountID string, in ProfileUpdate) (*models.Account, error) {
	var username, wallet *string
	if in.Username != nil {
		u := strings.TrimSpace(*in.Username)
		if u == "" {
			return nil, apperrors.NewInvalidParameterError("username", "must not be empty")
		}
		username = &u
	}
	if in.WalletAddress != nil {
		w := strings.TrimSpace(*in.WalletAddress)
		wallet = &w
	}

	return s.modify(ctx, accountID, func(a *models.Account) {
		if username != nil {
			a.Username = *username
		}
		if wallet != nil {
			a.WalletAddress = *wallet
		}
	})
}

// ResetBalance zeroes the balance
func (s *LedgerService) ResetBalance(ctx context.Context, accountID string) (*models.Account, error) {
	return s.reset(ctx, accountID, types.EventBalanceReset, func(a *models.Account) models.LedgerEvent {
		e := models.LedgerEvent{BalanceDelta: -a.Balance}
		a.Balance = 0
		return e
	})
}

// ResetProgress zeroes XP and returns the account to level 1.
// It is the only operation that lowers a level.
func (s *LedgerService) ResetProgress(ctx context.Context, accountID string) (*models.Account, error) {
	return s.reset(ctx, accountID, types.EventProgressReset, func(a *models.Account) models.LedgerEvent {
		e := models.LedgerEvent{XPDelta: -a.XP}
		a.XP = 0
		a.Level = 1
		return e
	})
}

func (s *LedgerService) reset(ctx context.Context, accountID string, kind types.LedgerEventKind, apply func(a *models.Account) models.LedgerEvent) (*models.Account, error) {
	var (
		acc   *models.Account
		event models.LedgerEvent
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		acc, err = s.accounts.GetForUpdate(ctx, accountID)
		if err != nil {
			return wrapRepoError("lock account", err)
		}
		event = apply(acc)
		if err := s.accounts.Update(ctx, acc); err != nil {
			return wrapRepoError("update account", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	event.ID = uuid.New().String()
	event.AccountID = acc.ID
	event.Kind = kind
	event.BalanceAfter = acc.Balance
	event.XPAfter = acc.XP
	event.LevelAfter = acc.Level
	event.CreatedAt = s.now().UTC()
	s.emit(ctx, []models.LedgerEvent{event})
	return acc, nil
}

// modify runs a non-ledger field change under the row lock
func (s *LedgerService) modify(ctx context.Context, accountID string, change func(a *models.Account)) (*models.Account, error) {
	var acc *models.Account
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		acc, err = s.accounts.GetForUpdate(ctx, accountID)
		if err != nil {
			return wrapRepoError("lock account", err)
		}
		change(acc)
		if err := s.accounts.Update(ctx, acc); err != nil {
			return wrapRepoError("update account", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *LedgerService) levels(ctx context.Context) ([]models.LevelRequirement, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	return settings.Levels, nil
}

// emit hands committed events to the sink. Sink failures never undo a commit.
func (s *LedgerService) emit(ctx context.Context, events []models.LedgerEvent) {
	if s.sink == nil || len(events) == 0 {
		return
	}
	if err := s.sink.Emit(ctx, events); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("events", len(events)).Error("failed to emit ledger events")
	}
}

// wrapRepoError keeps categorized repository errors and wraps the rest as database errors
func wrapRepoError(op string, err error) error {
	var ce *apperrors.CategorizedError
	if errors.As(err, &ce) {
		return err
	}
	return apperrors.NewDatabaseError(op, err)
}
