package models

import (
	"time"

	"github.com/gem-ledger/internal/types"
)

// MandatoryChannel is a channel every account must join before earning
type MandatoryChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// LevelRequirement is one row of the level table
type LevelRequirement struct {
	Level    int   `json:"level"`
	XPNeeded int64 `json:"xpNeeded"`
	Bonus    int64 `json:"bonus"`
}

// GlobalSettings is the administrator-controlled configuration singleton
type GlobalSettings struct {
	Channels          []MandatoryChannel `json:"channels"`
	Levels            []LevelRequirement `json:"levels"`
	MinWithdrawalUSDT int64              `json:"minWithdrawalUsdt"`
	MinWithdrawalTRX  int64              `json:"minWithdrawalTrx"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// MinimumFor returns the minimum withdrawal amount for a currency
func (s *GlobalSettings) MinimumFor(c types.Currency) int64 {
	switch c {
	case types.CurrencyTRX:
		return s.MinWithdrawalTRX
	default:
		return s.MinWithdrawalUSDT
	}
}

// Clone returns a deep copy so callers cannot mutate cached settings
func (s *GlobalSettings) Clone() *GlobalSettings {
	out := *s
	out.Channels = append([]MandatoryChannel(nil), s.Channels...)
	out.Levels = append([]LevelRequirement(nil), s.Levels...)
	return &out
}

// DefaultSettings returns the settings seeded into an empty store
func DefaultSettings() *GlobalSettings {
	return &GlobalSettings{
		Channels: []MandatoryChannel{
			{ID: "1", Name: "EarnBot Official", URL: "https://t.me/earnbot_news"},
			{ID: "2", Name: "Alpha Crypto", URL: "https://t.me/alpha_crypto"},
			{ID: "3", Name: "Task Updates", URL: "https://t.me/task_updates"},
			{ID: "4", Name: "Payment Proofs", URL: "https://t.me/payment_proofs"},
			{ID: "5", Name: "Community Chat", URL: "https://t.me/community"},
		},
		Levels: []LevelRequirement{
			{Level: 1, XPNeeded: 0, Bonus: 0},
			{Level: 2, XPNeeded: 500, Bonus: 50},
			{Level: 3, XPNeeded: 1500, Bonus: 150},
			{Level: 4, XPNeeded: 4000, Bonus: 400},
			{Level: 5, XPNeeded: 10000, Bonus: 1000},
		},
		MinWithdrawalUSDT: 1000,
		MinWithdrawalTRX:  500,
	}
}
