package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/models"
)

// SettingsRepository persists the global settings singleton
type SettingsRepository struct {
	db *PostgresDB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *PostgresDB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get loads the settings row. NotFound when nothing has been stored yet.
func (r *SettingsRepository) Get(ctx context.Context) (*models.GlobalSettings, error) {
	var (
		s            models.GlobalSettings
		channelsJSON []byte
		levelsJSON   []byte
	)

	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT channels, levels, min_withdrawal_usdt, min_withdrawal_trx, updated_at
		FROM global_settings
		WHERE id = 1
	`).Scan(&channelsJSON, &levelsJSON, &s.MinWithdrawalUSDT, &s.MinWithdrawalTRX, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("settings", "global")
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	if err := json.Unmarshal(channelsJSON, &s.Channels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channels: %w", err)
	}
	if err := json.Unmarshal(levelsJSON, &s.Levels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal levels: %w", err)
	}
	return &s, nil
}

// Save replaces the settings row
func (r *SettingsRepository) Save(ctx context.Context, s *models.GlobalSettings) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	channelsJSON, err := json.Marshal(s.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}
	levelsJSON, err := json.Marshal(s.Levels)
	if err != nil {
		return fmt.Errorf("failed to marshal levels: %w", err)
	}

	_, err = r.db.q(ctx).Exec(ctx, `
		INSERT INTO global_settings (id, channels, levels, min_withdrawal_usdt, min_withdrawal_trx, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET channels = EXCLUDED.channels,
		    levels = EXCLUDED.levels,
		    min_withdrawal_usdt = EXCLUDED.min_withdrawal_usdt,
		    min_withdrawal_trx = EXCLUDED.min_withdrawal_trx,
		    updated_at = EXCLUDED.updated_at
	`, channelsJSON, levelsJSON, s.MinWithdrawalUSDT, s.MinWithdrawalTRX, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
