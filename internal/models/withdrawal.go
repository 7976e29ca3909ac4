package models

import (
	"time"

	"github.com/gem-ledger/internal/types"
)

// Withdrawal is a user's request to convert gems into a crypto payout
type Withdrawal struct {
	ID         string                 `json:"id" db:"id"`
	AccountID  string                 `json:"accountId" db:"account_id"`
	Username   string                 `json:"username" db:"username"`
	Amount     int64                  `json:"amount" db:"amount"`
	Currency   types.Currency         `json:"currency" db:"currency"`
	Address    string                 `json:"address" db:"address"`
	Status     types.WithdrawalStatus `json:"status" db:"status"`
	CreatedAt  time.Time              `json:"createdAt" db:"created_at"`
	ResolvedAt *time.Time             `json:"resolvedAt,omitempty" db:"resolved_at"`
}

// WithdrawalFilter narrows withdrawal listings. Zero values match everything.
type WithdrawalFilter struct {
	AccountID string
	Status    types.WithdrawalStatus
	Limit     int
}
