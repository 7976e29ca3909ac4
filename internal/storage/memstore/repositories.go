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

// TaskRepository is the in-memory task catalog
type TaskRepository struct{ s *Store }

// Create appends the task and assigns its sequence number
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	return r.s.write(ctx, func(d *state) error {
		if task.ID == "" {
			task.ID = uuid.New().String()
		}
		task.CreatedAt = time.Now().UTC()
		d.taskSeq++
		task.Seq = d.taskSeq

		t := *task
		d.tasks[t.ID] = &t
		return nil
	})
}

// GetByID returns a copy of the task
func (r *TaskRepository) GetByID(_ context.Context, id string) (*models.Task, error) {
	var out *models.Task
	r.s.read(func(d *state) {
		if t, ok := d.tasks[id]; ok {
			cp := *t
			out = &cp
		}
	})
	if out == nil {
		return nil, apperrors.NewNotFoundError("task", id)
	}
	return out, nil
}

// Delete removes the task, keeping its claims
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.tasks[id]; !ok {
			return apperrors.NewNotFoundError("task", id)
		}
		delete(d.tasks, id)
		return nil
	})
}

// SetApproved toggles catalog visibility
func (r *TaskRepository) SetApproved(ctx context.Context, id string, approved bool) (*models.Task, error) {
	var out models.Task
	err := r.s.write(ctx, func(d *state) error {
		t, ok := d.tasks[id]
		if !ok {
			return apperrors.NewNotFoundError("task", id)
		}
		t.Approved = approved
		out = *t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// IncrementViewCount bumps the completion counter
func (r *TaskRepository) IncrementViewCount(ctx context.Context, id string) error {
	return r.s.write(ctx, func(d *state) error {
		t, ok := d.tasks[id]
		if !ok {
			return apperrors.NewNotFoundError("task", id)
		}
		t.ViewCount++
		return nil
	})
}

// List returns every task in insertion order
func (r *TaskRepository) List(_ context.Context) ([]*models.Task, error) {
	return r.filter(func(*state, *models.Task) bool { return true }), nil
}

// ListAvailable returns approved tasks the account neither created nor claimed
func (r *TaskRepository) ListAvailable(_ context.Context, accountID string) ([]*models.Task, error) {
	return r.filter(func(d *state, t *models.Task) bool {
		if !t.Approved || t.CreatorID == accountID {
			return false
		}
		_, claimed := d.claims[claimKey{accountID: accountID, taskID: t.ID}]
		return !claimed
	}), nil
}

func (r *TaskRepository) filter(keep func(*state, *models.Task) bool) []*models.Task {
	out := make([]*models.Task, 0)
	r.s.read(func(d *state) {
		for _, t := range d.tasks {
			if keep(d, t) {
				cp := *t
				out = append(out, &cp)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// ClaimRepository is the in-memory claim ledger
type ClaimRepository struct{ s *Store }

// Insert stores the claim, reporting false when the pair already exists
func (r *ClaimRepository) Insert(ctx context.Context, claim *models.TaskClaim) (bool, error) {
	inserted := false
	err := r.s.write(ctx, func(d *state) error {
		key := claimKey{accountID: claim.AccountID, taskID: claim.TaskID}
		if _, ok := d.claims[key]; ok {
			return nil
		}
		c := *claim
		d.claims[key] = &c
		inserted = true
		return nil
	})
	return inserted, err
}

// Exists reports whether the pair was already claimed
func (r *ClaimRepository) Exists(_ context.Context, accountID, taskID string) (bool, error) {
	var ok bool
	r.s.read(func(d *state) {
		_, ok = d.claims[claimKey{accountID: accountID, taskID: taskID}]
	})
	return ok, nil
}

// ListByAccount returns the account's claims, newest first
func (r *ClaimRepository) ListByAccount(_ context.Context, accountID string) ([]*models.TaskClaim, error) {
	out := make([]*models.TaskClaim, 0)
	r.s.read(func(d *state) {
		for k, c := range d.claims {
			if k.accountID == accountID {
				cp := *c
				out = append(out, &cp)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimedAt.After(out[j].ClaimedAt) })
	return out, nil
}

// WithdrawalRepository is the in-memory withdrawal store
type WithdrawalRepository struct{ s *Store }

// Create inserts a new request
func (r *WithdrawalRepository) Create(ctx context.Context, w *models.Withdrawal) error {
	return r.s.write(ctx, func(d *state) error {
		if w.ID == "" {
			w.ID = uuid.New().String()
		}
		if w.CreatedAt.IsZero() {
			w.CreatedAt = time.Now().UTC()
		}
		cp := *w
		d.withdrawals[cp.ID] = &cp
		return nil
	})
}

// GetForUpdate returns a copy of the request
func (r *WithdrawalRepository) GetForUpdate(_ context.Context, id string) (*models.Withdrawal, error) {
	var out *models.Withdrawal
	r.s.read(func(d *state) {
		if w, ok := d.withdrawals[id]; ok {
			cp := *w
			out = &cp
		}
	})
	if out == nil {
		return nil, apperrors.NewNotFoundError("withdrawal", id)
	}
	return out, nil
}

// UpdateStatus persists a status transition
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, w *models.Withdrawal) error {
	return r.s.write(ctx, func(d *state) error {
		stored, ok := d.withdrawals[w.ID]
		if !ok {
			return apperrors.NewNotFoundError("withdrawal", w.ID)
		}
		stored.Status = w.Status
		stored.ResolvedAt = w.ResolvedAt
		return nil
	})
}

// List returns matching requests, newest first
func (r *WithdrawalRepository) List(_ context.Context, filter models.WithdrawalFilter) ([]*models.Withdrawal, error) {
	out := make([]*models.Withdrawal, 0)
	r.s.read(func(d *state) {
		for _, w := range d.withdrawals {
			if filter.AccountID != "" && w.AccountID != filter.AccountID {
				continue
			}
			if filter.Status != "" && w.Status != filter.Status {
				continue
			}
			cp := *w
			out = append(out, &cp)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, filter.Limit, 0), nil
}

// SettingsRepository holds the settings singleton
type SettingsRepository struct{ s *Store }

// Get returns the stored settings or NotFound
func (r *SettingsRepository) Get(_ context.Context) (*models.GlobalSettings, error) {
	var out *models.GlobalSettings
	r.s.read(func(d *state) {
		if d.settings != nil {
			out = d.settings.Clone()
		}
	})
	if out == nil {
		return nil, apperrors.NewNotFoundError("settings", "global")
	}
	return out, nil
}

// Save replaces the settings
func (r *SettingsRepository) Save(ctx context.Context, s *models.GlobalSettings) error {
	return r.s.write(ctx, func(d *state) error {
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = time.Now().UTC()
		}
		d.settings = s.Clone()
		return nil
	})
}

// TaskStartStore keeps dwell start times with expiry, outside transactions
type TaskStartStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	starts map[claimKey]time.Time
}

// NewTaskStartStore creates a start store whose records expire after ttl
func NewTaskStartStore(ttl time.Duration) *TaskStartStore {
	return &TaskStartStore{ttl: ttl, now: time.Now, starts: make(map[claimKey]time.Time)}
}

// Record stores or overwrites the start time
func (s *TaskStartStore) Record(_ context.Context, accountID, taskID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts[claimKey{accountID: accountID, taskID: taskID}] = at
	return nil
}

// Get returns the start time, false when missing or expired
func (s *TaskStartStore) Get(_ context.Context, accountID, taskID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey{accountID: accountID, taskID: taskID}
	at, ok := s.starts[key]
	if !ok {
		return time.Time{}, false, nil
	}
	if s.ttl > 0 && s.now().Sub(at) > s.ttl {
		delete(s.starts, key)
		return time.Time{}, false, nil
	}
	return at, true, nil
}

// Clear removes the start record
func (s *TaskStartStore) Clear(_ context.Context, accountID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.starts, claimKey{accountID: accountID, taskID: taskID})
	return nil
}
