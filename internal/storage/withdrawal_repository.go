package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/models"
)

const withdrawalColumns = `id, account_id, username, amount, currency, address, status, created_at, resolved_at`

// WithdrawalRepository handles withdrawal requests
type WithdrawalRepository struct {
	db *PostgresDB
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *PostgresDB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create inserts a new withdrawal request
func (r *WithdrawalRepository) Create(ctx context.Context, w *models.Withdrawal) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO withdrawals (` + withdrawalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.q(ctx).Exec(ctx, query,
		w.ID,
		w.AccountID,
		w.Username,
		w.Amount,
		w.Currency,
		w.Address,
		w.Status,
		w.CreatedAt,
		w.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}
	return nil
}

// GetForUpdate locks the withdrawal row until the surrounding transaction ends
func (r *WithdrawalRepository) GetForUpdate(ctx context.Context, id string) (*models.Withdrawal, error) {
	if err := checkID("withdrawal", id); err != nil {
		return nil, err
	}
	row := r.db.q(ctx).QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, id)
	return scanWithdrawal(row, id)
}

// UpdateStatus persists a status transition
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, w *models.Withdrawal) error {
	tag, err := r.db.q(ctx).Exec(ctx,
		`UPDATE withdrawals SET status = $2, resolved_at = $3 WHERE id = $1`,
		w.ID, w.Status, w.ResolvedAt)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("withdrawal", w.ID)
	}
	return nil
}

// List returns withdrawals matching the filter, newest first
func (r *WithdrawalRepository) List(ctx context.Context, filter models.WithdrawalFilter) ([]*models.Withdrawal, error) {
	var (
		where []string
		args  []any
	)
	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		where = append(where, fmt.Sprintf("account_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer rows.Close()

	withdrawals := make([]*models.Withdrawal, 0)
	for rows.Next() {
		w, err := scanWithdrawal(rows, "")
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate withdrawals: %w", err)
	}
	return withdrawals, nil
}

func scanWithdrawal(row pgx.Row, id string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := row.Scan(
		&w.ID,
		&w.AccountID,
		&w.Username,
		&w.Amount,
		&w.Currency,
		&w.Address,
		&w.Status,
		&w.CreatedAt,
		&w.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("withdrawal", id)
		}
		return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
	}
	return &w, nil
}
