package models

import (
	"time"

	"github.com/gem-ledger/internal/types"
)

// Task is a timed engagement task that pays a fixed reward once per account
type Task struct {
	ID        string         `json:"id" db:"id"`
	Seq       int64          `json:"-" db:"seq"`
	CreatorID string         `json:"creatorId" db:"creator_id"`
	Type      types.TaskType `json:"type" db:"type"`
	Title     string         `json:"title" db:"title"`
	URL       string         `json:"url" db:"url"`
	Reward    int64          `json:"reward" db:"reward"`
	Timer     int            `json:"timer" db:"timer"` // seconds
	Approved  bool           `json:"approved" db:"approved"`
	ViewCount int64          `json:"viewCount" db:"view_count"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
}

// TaskClaim records that an account was paid for a task
type TaskClaim struct {
	AccountID string    `json:"accountId" db:"account_id"`
	TaskID    string    `json:"taskId" db:"task_id"`
	Reward    int64     `json:"reward" db:"reward"`
	XP        int64     `json:"xp" db:"xp"`
	ClaimedAt time.Time `json:"claimedAt" db:"claimed_at"`
}

// TaskStart is the server-side dwell record created by StartTask
type TaskStart struct {
	TaskID    string    `json:"taskId"`
	StartedAt time.Time `json:"startedAt"`
	ReadyAt   time.Time `json:"readyAt"`
}

// ClaimResult is the account state after a successful claim
type ClaimResult struct {
	TaskID     string `json:"taskId"`
	Reward     int64  `json:"reward"`
	XPGained   int64  `json:"xpGained"`
	Balance    int64  `json:"balance"`
	XP         int64  `json:"xp"`
	Level      int    `json:"level"`
	LevelBonus int64  `json:"levelBonus"`
}
