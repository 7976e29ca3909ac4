package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/logging"
	"github.com/gem-ledger/internal/models"
	"github.com/gem-ledger/internal/types"
)

// DefaultXPDivisor converts a reward into XP as reward / divisor
const DefaultXPDivisor = 2

// CreateTaskInput represents input for creating a task
type CreateTaskInput struct {
	Type   types.TaskType `json:"type"`
	Title  string         `json:"title"`
	URL    string         `json:"url"`
	Reward int64          `json:"reward"`
	Timer  int            `json:"timer"`
}

// TaskService manages the catalog and reward claims
type TaskService struct {
	tx        TxManager
	tasks     TaskRepository
	claims    ClaimRepository
	starts    TaskStartStore
	ledger    *LedgerService
	xpDivisor int64
	startTTL  time.Duration
	now       func() time.Time
}

// NewTaskService creates a task service. A non-positive xpDivisor falls back to DefaultXPDivisor.
// startTTL is how long starts keeps a record; task timers must be shorter. Zero means unbounded.
func NewTaskService(
	tx TxManager,
	tasks TaskRepository,
	claims ClaimRepository,
	starts TaskStartStore,
	ledger *LedgerService,
	xpDivisor int64,
	startTTL time.Duration,
) *TaskService {
	if xpDivisor <= 0 {
		xpDivisor = DefaultXPDivisor
	}
	return &TaskService{
		tx:        tx,
		tasks:     tasks,
		claims:    claims,
		starts:    starts,
		ledger:    ledger,
		xpDivisor: xpDivisor,
		startTTL:  startTTL,
		now:       time.Now,
	}
}

// CreateTask validates and appends an admin task
func (s *TaskService) CreateTask(ctx context.Context, in *CreateTaskInput) (*models.Task, error) {
	if in == nil {
		return nil, apperrors.NewInvalidParameterError("task", "missing")
	}
	taskType := types.TaskType(strings.ToUpper(strings.TrimSpace(string(in.Type))))
	if taskType == "" {
		taskType = types.TaskYouTube
	}
	if !taskType.Valid() {
		return nil, apperrors.NewInvalidParameterError("type", "unknown task type "+string(in.Type))
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperrors.NewInvalidParameterError("title", "must not be empty")
	}
	url := strings.TrimSpace(in.URL)
	if url == "" {
		return nil, apperrors.NewInvalidParameterError("url", "must not be empty")
	}
	if in.Reward <= 0 {
		return nil, apperrors.NewInvalidParameterError("reward", "must be positive")
	}
	if in.Timer < 0 {
		return nil, apperrors.NewInvalidParameterError("timer", "must not be negative")
	}
	// a start record must outlive the dwell timer or the task is never claimable
	if s.startTTL > 0 && time.Duration(in.Timer)*time.Second >= s.startTTL {
		return nil, apperrors.NewInvalidParameterError("timer", fmt.Sprintf("must be shorter than %s", s.startTTL))
	}

	task := &models.Task{
		CreatorID: types.AdminCreatorID,
		Type:      taskType,
		Title:     title,
		URL:       url,
		Reward:    in.Reward,
		Timer:     in.Timer,
		Approved:  true,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, apperrors.NewDatabaseError("create task", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"taskId": task.ID,
		"type":   task.Type,
		"reward": task.Reward,
		"timer":  task.Timer,
	}).Info("task created")
	return task, nil
}

// DeleteTask removes a task from the catalog. Existing claims are kept.
func (s *TaskService) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.tasks.Delete(ctx, taskID); err != nil {
		return wrapRepoError("delete task", err)
	}
	logging.FromContext(ctx).WithField("taskId", taskID).Info("task deleted")
	return nil
}

// SetTaskApproved toggles whether a task is offered to users
func (s *TaskService) SetTaskApproved(ctx context.Context, taskID string, approved bool) (*models.Task, error) {
	task, err := s.tasks.SetApproved(ctx, taskID, approved)
	if err != nil {
		return nil, wrapRepoError("approve task", err)
	}
	return task, nil
}

// ListTasks returns the whole catalog in insertion order
func (s *TaskService) ListTasks(ctx context.Context) ([]*models.Task, error) {
	tasks, err := s.tasks.List(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list tasks", err)
	}
	return tasks, nil
}

// ListAvailable returns approved tasks the account neither authored nor claimed
func (s *TaskService) ListAvailable(ctx context.Context, accountID string) ([]*models.Task, error) {
	tasks, err := s.tasks.ListAvailable(ctx, accountID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list available tasks", err)
	}
	return tasks, nil
}

// StartTask records when the account began the task. Restarting overwrites the start.
func (s *TaskService) StartTask(ctx context.Context, accountID, taskID string) (*models.TaskStart, error) {
	task, err := s.claimable(ctx, accountID, taskID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.starts.Record(ctx, accountID, taskID, now); err != nil {
		return nil, apperrors.NewDatabaseError("record task start", err)
	}
	return &models.TaskStart{
		TaskID:    taskID,
		StartedAt: now,
		ReadyAt:   now.Add(time.Duration(task.Timer) * time.Second),
	}, nil
}

// ClaimTask credits the task reward once per account
func (s *TaskService) ClaimTask(ctx context.Context, accountID, taskID string) (*models.ClaimResult, error) {
	task, err := s.claimable(ctx, accountID, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.checkDwell(ctx, accountID, task); err != nil {
		return nil, err
	}

	levels, err := s.ledger.levels(ctx)
	if err != nil {
		return nil, err
	}

	xpGained := task.Reward / s.xpDivisor
	var (
		result *models.ClaimResult
		events []models.LedgerEvent
	)
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		acc, err := s.ledger.accounts.GetForUpdate(ctx, accountID)
		if err != nil {
			return wrapRepoError("lock account", err)
		}

		inserted, err := s.claims.Insert(ctx, &models.TaskClaim{
			AccountID: accountID,
			TaskID:    taskID,
			Reward:    task.Reward,
			XP:        xpGained,
			ClaimedAt: s.now().UTC(),
		})
		if err != nil {
			return apperrors.NewDatabaseError("insert claim", err)
		}
		if !inserted {
			return apperrors.NewAlreadyClaimedError(accountID, taskID)
		}

		bonus, evs, err := s.ledger.mutate(ctx, acc, Delta{
			Balance:       task.Reward,
			XP:            xpGained,
			Kind:          types.EventTaskReward,
			Reference:     taskID,
			UserInitiated: true,
		}, levels)
		if err != nil {
			return err
		}

		if err := s.tasks.IncrementViewCount(ctx, taskID); err != nil {
			return wrapRepoError("increment view count", err)
		}

		events = evs
		result = &models.ClaimResult{
			TaskID:     taskID,
			Reward:     task.Reward,
			XPGained:   xpGained,
			Balance:    acc.Balance,
			XP:         acc.XP,
			Level:      acc.Level,
			LevelBonus: bonus,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.starts.Clear(ctx, accountID, taskID); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("failed to clear task start")
	}
	s.ledger.emit(ctx, events)
	return result, nil
}

// claimable applies the checks shared by StartTask and ClaimTask, in order:
// banned, not verified, task missing or not offered, already claimed.
func (s *TaskService) claimable(ctx context.Context, accountID, taskID string) (*models.Task, error) {
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

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, wrapRepoError("get task", err)
	}
	// unapproved tasks and the account's own tasks are not offered to it
	if !task.Approved || task.CreatorID == accountID {
		return nil, apperrors.NewNotFoundError("task", taskID)
	}

	claimed, err := s.claims.Exists(ctx, accountID, taskID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("check claim", err)
	}
	if claimed {
		return nil, apperrors.NewAlreadyClaimedError(accountID, taskID)
	}
	return task, nil
}

func (s *TaskService) checkDwell(ctx context.Context, accountID string, task *models.Task) error {
	startedAt, ok, err := s.starts.Get(ctx, accountID, task.ID)
	if err != nil {
		return apperrors.NewDatabaseError("get task start", err)
	}

	required := time.Duration(task.Timer) * time.Second
	var remaining time.Duration
	if !ok {
		remaining = required
	} else {
		remaining = required - s.now().Sub(startedAt)
	}
	if ok && remaining <= 0 {
		return nil
	}

	// a concurrent claim may have committed and cleared the start in between
	claimed, err := s.claims.Exists(ctx, accountID, task.ID)
	if err != nil {
		return apperrors.NewDatabaseError("check claim", err)
	}
	if claimed {
		return apperrors.NewAlreadyClaimedError(accountID, task.ID)
	}

	secs := int64((remaining + time.Second - 1) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return apperrors.NewTooEarlyError(task.ID, secs)
}
