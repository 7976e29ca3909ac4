package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/models"
)

const taskColumns = `id, seq, creator_id, type, title, url, reward, timer, approved, view_count, created_at`

// TaskRepository handles the task catalog
type TaskRepository struct {
	db *PostgresDB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *PostgresDB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create appends a task to the catalog and fills in ID, Seq and CreatedAt
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	task.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO tasks (id, creator_id, type, title, url, reward, timer, approved, view_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq
	`

	err := r.db.q(ctx).QueryRow(ctx, query,
		task.ID,
		task.CreatorID,
		task.Type,
		task.Title,
		task.URL,
		task.Reward,
		task.Timer,
		task.Approved,
		task.ViewCount,
		task.CreatedAt,
	).Scan(&task.Seq)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by ID
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	if err := checkID("task", id); err != nil {
		return nil, err
	}
	row := r.db.q(ctx).QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row, id)
}

// Delete removes a task. Claim rows are kept.
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	if err := checkID("task", id); err != nil {
		return err
	}
	tag, err := r.db.q(ctx).Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("task", id)
	}
	return nil
}

// SetApproved toggles catalog visibility
func (r *TaskRepository) SetApproved(ctx context.Context, id string, approved bool) (*models.Task, error) {
	if err := checkID("task", id); err != nil {
		return nil, err
	}
	row := r.db.q(ctx).QueryRow(ctx,
		`UPDATE tasks SET approved = $2 WHERE id = $1 RETURNING `+taskColumns, id, approved)
	return scanTask(row, id)
}

// IncrementViewCount bumps the completion counter
func (r *TaskRepository) IncrementViewCount(ctx context.Context, id string) error {
	tag, err := r.db.q(ctx).Exec(ctx, `UPDATE tasks SET view_count = view_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment view count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("task", id)
	}
	return nil
}

// List returns every task in insertion order
func (r *TaskRepository) List(ctx context.Context) ([]*models.Task, error) {
	return r.query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY seq`)
}

// ListAvailable returns approved tasks the account neither created nor claimed, oldest first
func (r *TaskRepository) ListAvailable(ctx context.Context, accountID string) ([]*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		WHERE t.approved
		  AND t.creator_id <> $1
		  AND NOT EXISTS (
		      SELECT 1 FROM task_claims c
		      WHERE c.account_id = $1::uuid AND c.task_id = t.id
		  )
		ORDER BY t.seq
	`
	return r.query(ctx, query, accountID)
}

func (r *TaskRepository) query(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*models.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows, "")
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

func scanTask(row pgx.Row, id string) (*models.Task, error) {
	var t models.Task
	err := row.Scan(
		&t.ID,
		&t.Seq,
		&t.CreatorID,
		&t.Type,
		&t.Title,
		&t.URL,
		&t.Reward,
		&t.Timer,
		&t.Approved,
		&t.ViewCount,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("task", id)
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	return &t, nil
}
