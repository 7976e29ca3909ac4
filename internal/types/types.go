// Package types provides common type definitions for the gem ledger system.
package types

import "strings"

// Role represents an account's authorization role
type Role string

const (
	// RoleUser is a regular earning account
	RoleUser Role = "USER"
	// RoleAdmin may manage settings, tasks, accounts and withdrawals
	RoleAdmin Role = "ADMIN"
)

// TaskType represents the platform a task points at
type TaskType string

const (
	TaskYouTube     TaskType = "YOUTUBE"
	TaskFacebook    TaskType = "FACEBOOK"
	TaskDailymotion TaskType = "DAILYMOTION"
	TaskAdsterra    TaskType = "ADSTERRA"
	TaskCustom      TaskType = "CUSTOM"
)

// Valid reports whether the task type is one of the known platforms
func (t TaskType) Valid() bool {
	switch t {
	case TaskYouTube, TaskFacebook, TaskDailymotion, TaskAdsterra, TaskCustom:
		return true
	}
	return false
}

// Currency represents a payout currency for withdrawals
type Currency string

const (
	// CurrencyUSDT is Tether
	CurrencyUSDT Currency = "USDT"
	// CurrencyTRX is Tron
	CurrencyTRX Currency = "TRX"
)

// ParseCurrency normalizes a currency code, returning false when unknown
func ParseCurrency(s string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case CurrencyUSDT, CurrencyTRX:
		return c, true
	}
	return "", false
}

// WithdrawalStatus represents the lifecycle state of a withdrawal request
type WithdrawalStatus string

const (
	// WithdrawalPending is the only non-terminal state
	WithdrawalPending WithdrawalStatus = "PENDING"
	// WithdrawalCompleted means an admin paid out the request
	WithdrawalCompleted WithdrawalStatus = "COMPLETED"
	// WithdrawalRejected means an admin declined the request
	WithdrawalRejected WithdrawalStatus = "REJECTED"
)

// Terminal reports whether no further transition is allowed from this status
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalRejected
}

// CanTransition reports whether moving from s to next is a valid lifecycle step.
// Only PENDING -> COMPLETED and PENDING -> REJECTED are allowed.
func (s WithdrawalStatus) CanTransition(next WithdrawalStatus) bool {
	return s == WithdrawalPending && next.Terminal()
}

// LedgerEventKind classifies a balance/XP mutation for audit
type LedgerEventKind string

const (
	EventTaskReward       LedgerEventKind = "task_reward"
	EventLevelBonus       LedgerEventKind = "level_bonus"
	EventWithdrawalDebit  LedgerEventKind = "withdrawal_debit"
	EventWithdrawalRefund LedgerEventKind = "withdrawal_refund"
	EventBalanceReset     LedgerEventKind = "balance_reset"
	EventProgressReset    LedgerEventKind = "progress_reset"
)

// AdminCreatorID marks tasks authored by an administrator
const AdminCreatorID = "admin"

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
