package storage

import (
	"context"
	"fmt"

	"github.com/gem-ledger/internal/models"
	"github.com/gem-ledger/internal/types"
)

// LedgerEventRepository appends audit events to ClickHouse
type LedgerEventRepository struct {
	db *ClickHouseDB
}

// NewLedgerEventRepository creates a new ledger event repository
func NewLedgerEventRepository(db *ClickHouseDB) *LedgerEventRepository {
	return &LedgerEventRepository{db: db}
}

// InsertBatch writes events in a single batch
func (r *LedgerEventRepository) InsertBatch(ctx context.Context, events []models.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO ledger_events (
			id, account_id, kind, balance_delta, xp_delta,
			balance_after, xp_after, level_after, reference, created_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, e := range events {
		err := batch.Append(
			e.ID,
			e.AccountID,
			string(e.Kind),
			e.BalanceDelta,
			e.XPDelta,
			e.BalanceAfter,
			e.XPAfter,
			int32(e.LevelAfter), // #nosec G115 - levels are small
			e.Reference,
			e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append event %s: %w", e.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// ListByAccount returns the most recent events of an account, newest first.
// A non-positive limit returns every event.
func (r *LedgerEventRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]models.LedgerEvent, error) {
	query := `
		SELECT id, account_id, kind, balance_delta, xp_delta,
		       balance_after, xp_after, level_after, reference, created_at
		FROM ledger_events
		WHERE account_id = ?
		ORDER BY created_at DESC`
	args := []interface{}{accountID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger events: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	events := make([]models.LedgerEvent, 0)
	for rows.Next() {
		var (
			e     models.LedgerEvent
			kind  string
			level int32
		)
		if err := rows.Scan(
			&e.ID,
			&e.AccountID,
			&kind,
			&e.BalanceDelta,
			&e.XPDelta,
			&e.BalanceAfter,
			&e.XPAfter,
			&level,
			&e.Reference,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger event: %w", err)
		}
		e.Kind = types.LedgerEventKind(kind)
		e.LevelAfter = int(level)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger events: %w", err)
	}
	return events, nil
}
