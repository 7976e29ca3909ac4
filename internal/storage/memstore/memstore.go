// Package memstore is an in-process implementation of the ledger repositories.
//
// Transactions are serialized by a single mutex and rolled back by restoring a
// snapshot taken when the transaction began. Writes made outside a transaction
// take the same mutex, so a rollback never discards them. Reads outside a
// transaction do not wait for open transactions.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/models"
)

type claimKey struct {
	accountID string
	taskID    string
}

type state struct {
	accounts    map[string]*models.Account
	byTelegram  map[int64]string
	tasks       map[string]*models.Task
	taskSeq     int64
	claims      map[claimKey]*models.TaskClaim
	withdrawals map[string]*models.Withdrawal
	settings    *models.GlobalSettings
}

func newState() *state {
	return &state{
		accounts:    make(map[string]*models.Account),
		byTelegram:  make(map[int64]string),
		tasks:       make(map[string]*models.Task),
		claims:      make(map[claimKey]*models.TaskClaim),
		withdrawals: make(map[string]*models.Withdrawal),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.accounts {
		a := *v
		out.accounts[k] = &a
	}
	for k, v := range s.byTelegram {
		out.byTelegram[k] = v
	}
	for k, v := range s.tasks {
		t := *v
		out.tasks[k] = &t
	}
	out.taskSeq = s.taskSeq
	for k, v := range s.claims {
		c := *v
		out.claims[k] = &c
	}
	for k, v := range s.withdrawals {
		w := *v
		out.withdrawals[k] = &w
	}
	if s.settings != nil {
		out.settings = s.settings.Clone()
	}
	return out
}

// Store holds all repositories over one shared state
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *state
}

// New creates an empty store
func New() *Store {
	return &Store{data: newState()}
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(bool)
	return ok
}

// InTx runs fn atomically. Any error restores the state seen when fn started.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// write applies fn under the data lock, joining the open transaction if any
func (s *Store) write(ctx context.Context, fn func(d *state) error) error {
	if !inTx(ctx) {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) read(fn func(d *state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.data)
}

// Accounts returns the account repository
func (s *Store) Accounts() *AccountRepository { return &AccountRepository{s: s} }

// Tasks returns the task repository
func (s *Store) Tasks() *TaskRepository { return &TaskRepository{s: s} }

// Claims returns the claim repository
func (s *Store) Claims() *ClaimRepository { return &ClaimRepository{s: s} }

// Withdrawals returns the withdrawal repository
func (s *Store) Withdrawals() *WithdrawalRepository { return &WithdrawalRepository{s: s} }

// Settings returns the settings repository
func (s *Store) Settings() *SettingsRepository { return &SettingsRepository{s: s} }

// AccountRepository is the in-memory account store
type AccountRepository struct{ s *Store }

// InsertIfAbsent creates the account unless its telegram id is already known
func (r *AccountRepository) InsertIfAbsent(ctx context.Context, account *models.Account) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.byTelegram[account.TelegramID]; ok {
			return nil
		}
		if account.ID == "" {
			account.ID = uuid.New().String()
		}
		now := time.Now().UTC()
		account.CreatedAt = now
		account.UpdatedAt = now

		a := *account
		d.accounts[a.ID] = &a
		d.byTelegram[a.TelegramID] = a.ID
		return nil
	})
}

func (r *AccountRepository) get(id string) (*models.Account, error) {
	var out *models.Account
	r.s.read(func(d *state) {
		if a, ok := d.accounts[id]; ok {
			cp := *a
			out = &cp
		}
	})
	if out == nil {
		return nil, apperrors.NewNotFoundError("account", id)
	}
	return out, nil
}

// GetByID returns a copy of the account
func (r *AccountRepository) GetByID(_ context.Context, id string) (*models.Account, error) {
	return r.get(id)
}

// GetForUpdate returns a copy of the account. Transactions are already serialized.
func (r *AccountRepository) GetForUpdate(_ context.Context, id string) (*models.Account, error) {
	return r.get(id)
}

// GetByTelegramID looks an account up by external identity
func (r *AccountRepository) GetByTelegramID(_ context.Context, telegramID int64) (*models.Account, error) {
	var id string
	r.s.read(func(d *state) { id = d.byTelegram[telegramID] })
	if id == "" {
		return nil, apperrors.NewNotFoundError("account", "telegram")
	}
	return r.get(id)
}

// Update replaces the stored account
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.accounts[account.ID]; !ok {
			return apperrors.NewNotFoundError("account", account.ID)
		}
		account.UpdatedAt = time.Now().UTC()
		a := *account
		d.accounts[a.ID] = &a
		return nil
	})
}

// List returns accounts ordered by creation time
func (r *AccountRepository) List(_ context.Context, limit, offset int) ([]*models.Account, error) {
	var all []*models.Account
	r.s.read(func(d *state) {
		for _, a := range d.accounts {
			cp := *a
			all = append(all, &cp)
		}
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return page(all, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
