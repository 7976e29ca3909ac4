// Package models provides data models for the gem ledger system.
package models

import (
	"fmt"
	"time"

	"github.com/gem-ledger/internal/types"
)

// Account represents a participant identified by an external telegram id
type Account struct {
	ID            string     `json:"id" db:"id"`
	TelegramID    int64      `json:"telegramId" db:"telegram_id"`
	Username      string     `json:"username" db:"username"`
	Balance       int64      `json:"balance" db:"balance"`
	XP            int64      `json:"xp" db:"xp"`
	Level         int        `json:"level" db:"level"`
	Role          types.Role `json:"role" db:"role"`
	IsBanned      bool       `json:"isBanned" db:"is_banned"`
	IsVerified    bool       `json:"isVerified" db:"is_verified"`
	WalletAddress string     `json:"walletAddress,omitempty" db:"wallet_address"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time  `json:"updatedAt" db:"updated_at"`
}

// IsAdmin reports whether the account carries the ADMIN role
func (a *Account) IsAdmin() bool {
	return a.Role == types.RoleAdmin
}

// DefaultUsername is used when the identity provider supplies no display name
func DefaultUsername(telegramID int64) string {
	return fmt.Sprintf("User_%d", telegramID)
}
