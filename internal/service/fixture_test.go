package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gem-ledger/internal/audit"
	"github.com/gem-ledger/internal/config"
	"github.com/gem-ledger/internal/models"
	"github.com/gem-ledger/internal/storage/memstore"
	"github.com/gem-ledger/internal/types"
)

const adminTelegramID = 929198867

// fakeClock is a settable time source shared by the services under test
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeChecker answers membership from a set of joined chats
type fakeChecker struct {
	mu     sync.Mutex
	joined map[string]bool
	err    error
	calls  int
}

func (f *fakeChecker) IsMember(_ context.Context, chat string, _ int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.joined[chat], nil
}

type fixture struct {
	store       *memstore.Store
	sink        *audit.MemorySink
	clock       *fakeClock
	checker     *fakeChecker
	settings    *SettingsService
	ledger      *LedgerService
	tasks       *TaskService
	withdrawals *WithdrawalService
	membership  *MembershipService
	app         *AppService
	history     *HistoryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	sink := &audit.MemorySink{}
	checker := &fakeChecker{joined: make(map[string]bool)}

	settings := NewSettingsService(store.Settings(), nil)
	settings.now = clock.Now
	ledger := NewLedgerService(store, store.Accounts(), settings, sink, config.AdminConfig{TelegramIDs: []int64{adminTelegramID}})
	ledger.now = clock.Now
	tasks := NewTaskService(store, store.Tasks(), store.Claims(), memstore.NewTaskStartStore(0), ledger, DefaultXPDivisor, 0)
	tasks.now = clock.Now
	withdrawals := NewWithdrawalService(store, store.Withdrawals(), ledger)
	withdrawals.now = clock.Now

	return &fixture{
		store:       store,
		sink:        sink,
		clock:       clock,
		checker:     checker,
		settings:    settings,
		ledger:      ledger,
		tasks:       tasks,
		withdrawals: withdrawals,
		membership:  NewMembershipService(checker, ledger, settings),
		app:         NewAppService(ledger, settings, tasks, withdrawals),
		history:     NewHistoryService(ledger, store.Claims(), sink),
	}
}

// setLevels replaces the level table, keeping the other defaults
func (f *fixture) setLevels(t *testing.T, levels ...models.LevelRequirement) {
	t.Helper()
	s := models.DefaultSettings()
	s.Levels = levels
	_, err := f.settings.Update(context.Background(), s)
	require.NoError(t, err)
}

// account creates a verified account holding balance
func (f *fixture) account(t *testing.T, telegramID int64, balance int64) *models.Account {
	t.Helper()
	ctx := context.Background()
	acc, err := f.ledger.GetOrCreate(ctx, telegramID, "")
	require.NoError(t, err)
	acc.IsVerified = true
	acc.Balance = balance
	require.NoError(t, f.store.Accounts().Update(ctx, acc))
	return acc
}

func (f *fixture) reload(t *testing.T, accountID string) *models.Account {
	t.Helper()
	acc, err := f.ledger.Get(context.Background(), accountID)
	require.NoError(t, err)
	return acc
}

func (f *fixture) task(t *testing.T, reward int64, timer int) *models.Task {
	t.Helper()
	task, err := f.tasks.CreateTask(context.Background(), &CreateTaskInput{
		Type:   types.TaskYouTube,
		Title:  "Watch",
		URL:    "https://youtube.com/watch?v=x",
		Reward: reward,
		Timer:  timer,
	})
	require.NoError(t, err)
	return task
}

// startAndWait records a start and lets the dwell timer elapse
func (f *fixture) startAndWait(t *testing.T, accountID string, task *models.Task) {
	t.Helper()
	_, err := f.tasks.StartTask(context.Background(), accountID, task.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Duration(task.Timer) * time.Second)
}

func (f *fixture) claim(t *testing.T, accountID string, task *models.Task) *models.ClaimResult {
	t.Helper()
	f.startAndWait(t, accountID, task)
	res, err := f.tasks.ClaimTask(context.Background(), accountID, task.ID)
	require.NoError(t, err)
	return res
}
