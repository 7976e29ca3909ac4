package service

import (
	"context"
	"time"

	"github.com/gem-ledger/internal/models"
)

// Repository interfaces for dependency injection.
// storage (Postgres/Redis) and storage/memstore both satisfy them.

// TxManager runs fn in one storage transaction. Repositories called with the
// ctx handed to fn join that transaction.
type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AccountRepository interface for account data operations
type AccountRepository interface {
	InsertIfAbsent(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.Account, error)
	GetForUpdate(ctx context.Context, id string) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	List(ctx context.Context, limit, offset int) ([]*models.Account, error)
}

// TaskRepository interface for the task catalog
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	Delete(ctx context.Context, id string) error
	SetApproved(ctx context.Context, id string, approved bool) (*models.Task, error)
	IncrementViewCount(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Task, error)
	ListAvailable(ctx context.Context, accountID string) ([]*models.Task, error)
}

// ClaimRepository interface for claim records
type ClaimRepository interface {
	Insert(ctx context.Context, claim *models.TaskClaim) (bool, error)
	Exists(ctx context.Context, accountID, taskID string) (bool, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.TaskClaim, error)
}

// LedgerEventReader reads back emitted ledger events, newest first.
// A non-positive limit returns every event.
type LedgerEventReader interface {
	ListByAccount(ctx context.Context, accountID string, limit int) ([]models.LedgerEvent, error)
}

// WithdrawalRepository interface for withdrawal requests
type WithdrawalRepository interface {
	Create(ctx context.Context, w *models.Withdrawal) error
	GetForUpdate(ctx context.Context, id string) (*models.Withdrawal, error)
	UpdateStatus(ctx context.Context, w *models.Withdrawal) error
	List(ctx context.Context, filter models.WithdrawalFilter) ([]*models.Withdrawal, error)
}

// SettingsRepository interface for the settings singleton
type SettingsRepository interface {
	Get(ctx context.Context) (*models.GlobalSettings, error)
	Save(ctx context.Context, s *models.GlobalSettings) error
}

// SettingsCache is an optional read-through cache in front of SettingsRepository
type SettingsCache interface {
	Get(ctx context.Context) (*models.GlobalSettings, bool, error)
	Set(ctx context.Context, s *models.GlobalSettings) error
	Invalidate(ctx context.Context) error
}

// TaskStartStore keeps dwell start times between StartTask and ClaimTask
type TaskStartStore interface {
	Record(ctx context.Context, accountID, taskID string, at time.Time) error
	Get(ctx context.Context, accountID, taskID string) (time.Time, bool, error)
	Clear(ctx context.Context, accountID, taskID string) error
}

// MembershipChecker asks the chat platform whether a user joined a chat
type MembershipChecker interface {
	IsMember(ctx context.Context, chat string, userID int64) (bool, error)
}
