package storage

import (
	"context"
	"fmt"

	"github.com/gem-ledger/internal/models"
)

// ClaimRepository records which tasks each account was paid for
type ClaimRepository struct {
	db *PostgresDB
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *PostgresDB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// Insert stores the claim and reports false when the (account, task) pair already exists
func (r *ClaimRepository) Insert(ctx context.Context, claim *models.TaskClaim) (bool, error) {
	query := `
		INSERT INTO task_claims (account_id, task_id, reward, xp, claimed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, task_id) DO NOTHING
	`

	tag, err := r.db.q(ctx).Exec(ctx, query,
		claim.AccountID,
		claim.TaskID,
		claim.Reward,
		claim.XP,
		claim.ClaimedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Exists reports whether the account already claimed the task
func (r *ClaimRepository) Exists(ctx context.Context, accountID, taskID string) (bool, error) {
	var exists bool
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM task_claims WHERE account_id = $1 AND task_id = $2)`,
		accountID, taskID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check claim: %w", err)
	}
	return exists, nil
}

// ListByAccount returns the account's claims, newest first
func (r *ClaimRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.TaskClaim, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT account_id, task_id, reward, xp, claimed_at
		FROM task_claims
		WHERE account_id = $1
		ORDER BY claimed_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	claims := make([]*models.TaskClaim, 0)
	for rows.Next() {
		var c models.TaskClaim
		if err := rows.Scan(&c.AccountID, &c.TaskID, &c.Reward, &c.XP, &c.ClaimedAt); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claims: %w", err)
	}
	return claims, nil
}
