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

const accountColumns = `id, telegram_id, username, balance, xp, level, role, is_banned, is_verified, wallet_address, created_at, updated_at`

// AccountRepository handles account persistence
type AccountRepository struct {
	db *PostgresDB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *PostgresDB) *AccountRepository {
	return &AccountRepository{db: db}
}

// InsertIfAbsent creates the account unless one already exists for its telegram id
func (r *AccountRepository) InsertIfAbsent(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (telegram_id) DO NOTHING
	`

	_, err := r.db.q(ctx).Exec(ctx, query,
		account.ID,
		account.TelegramID,
		account.Username,
		account.Balance,
		account.XP,
		account.Level,
		account.Role,
		account.IsBanned,
		account.IsVerified,
		account.WalletAddress,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if err := checkID("account", id); err != nil {
		return nil, err
	}
	row := r.db.q(ctx).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row, id)
}

// GetByTelegramID retrieves an account by its external identity
func (r *AccountRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.Account, error) {
	row := r.db.q(ctx).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE telegram_id = $1`, telegramID)
	return scanAccount(row, fmt.Sprintf("telegram:%d", telegramID))
}

// GetForUpdate locks the account row until the surrounding transaction ends
func (r *AccountRepository) GetForUpdate(ctx context.Context, id string) (*models.Account, error) {
	if err := checkID("account", id); err != nil {
		return nil, err
	}
	row := r.db.q(ctx).QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	return scanAccount(row, id)
}

// Update persists every mutable field of the account
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE accounts
		SET username = $2, balance = $3, xp = $4, level = $5, role = $6,
		    is_banned = $7, is_verified = $8, wallet_address = $9, updated_at = $10
		WHERE id = $1
	`

	tag, err := r.db.q(ctx).Exec(ctx, query,
		account.ID,
		account.Username,
		account.Balance,
		account.XP,
		account.Level,
		account.Role,
		account.IsBanned,
		account.IsVerified,
		account.WalletAddress,
		account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("account", account.ID)
	}
	return nil
}

// List returns accounts ordered by creation time. A zero limit returns every account.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at, id`
	var args []interface{}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows, "")
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

func scanAccount(row pgx.Row, id string) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID,
		&a.TelegramID,
		&a.Username,
		&a.Balance,
		&a.XP,
		&a.Level,
		&a.Role,
		&a.IsBanned,
		&a.IsVerified,
		&a.WalletAddress,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("account", id)
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return &a, nil
}
