package service

import (
	"context"

	apperrors "github.com/gem-ledger/internal/errors"
	"github.com/gem-ledger/internal/models"
)

// HistoryService reads an account's claims and ledger events back
type HistoryService struct {
	ledger *LedgerService
	claims ClaimRepository
	events LedgerEventReader
}

// NewHistoryService creates a history service. events may be nil when no
// event store is configured; histories then carry claims only.
func NewHistoryService(ledger *LedgerService, claims ClaimRepository, events LedgerEventReader) *HistoryService {
	return &HistoryService{
		ledger: ledger,
		claims: claims,
		events: events,
	}
}

// History returns the account's claims and ledger events, newest first.
// A zero limit returns everything. Banned accounts may still read it.
func (s *HistoryService) History(ctx context.Context, accountID string, limit int) (*models.AccountHistory, error) {
	if limit < 0 {
		return nil, apperrors.NewInvalidParameterError("limit", "must not be negative")
	}
	if _, err := s.ledger.Get(ctx, accountID); err != nil {
		return nil, err
	}

	claims, err := s.claims.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list claims", err)
	}
	if limit > 0 && len(claims) > limit {
		claims = claims[:limit]
	}

	history := &models.AccountHistory{
		Claims: claims,
		Events: make([]models.LedgerEvent, 0),
	}
	if s.events != nil {
		history.Events, err = s.events.ListByAccount(ctx, accountID, limit)
		if err != nil {
			return nil, apperrors.NewDatabaseError("list ledger events", err)
		}
	}
	return history, nil
}
