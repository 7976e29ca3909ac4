package models

import (
	"time"

	"github.com/gem-ledger/internal/types"
)

// LedgerEvent is an audit record of a single balance/XP mutation
type LedgerEvent struct {
	ID           string                `json:"id" ch:"id"`
	AccountID    string                `json:"accountId" ch:"account_id"`
	Kind         types.LedgerEventKind `json:"kind" ch:"kind"`
	BalanceDelta int64                 `json:"balanceDelta" ch:"balance_delta"`
	XPDelta      int64                 `json:"xpDelta" ch:"xp_delta"`
	BalanceAfter int64                 `json:"balanceAfter" ch:"balance_after"`
	XPAfter      int64                 `json:"xpAfter" ch:"xp_after"`
	LevelAfter   int                   `json:"levelAfter" ch:"level_after"`
	Reference    string                `json:"reference,omitempty" ch:"reference"`
	CreatedAt    time.Time             `json:"createdAt" ch:"created_at"`
}
