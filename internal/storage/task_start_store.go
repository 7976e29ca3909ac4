package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TaskStartStore keeps server-side dwell start timestamps in Redis
type TaskStartStore struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewTaskStartStore creates a start store whose records expire after ttl
func NewTaskStartStore(cache *RedisCache, ttl time.Duration) *TaskStartStore {
	return &TaskStartStore{cache: cache, ttl: ttl}
}

func taskStartKey(accountID, taskID string) string {
	return fmt.Sprintf("task_start:%s:%s", accountID, taskID)
}

// Record stores (or overwrites) the start time of a task for an account
func (s *TaskStartStore) Record(ctx context.Context, accountID, taskID string, at time.Time) error {
	if err := s.cache.Set(ctx, taskStartKey(accountID, taskID), at.UnixMilli(), s.ttl); err != nil {
		return fmt.Errorf("failed to record task start: %w", err)
	}
	return nil
}

// Get returns the recorded start time, false when none exists
func (s *TaskStartStore) Get(ctx context.Context, accountID, taskID string) (time.Time, bool, error) {
	raw, err := s.cache.Get(ctx, taskStartKey(accountID, taskID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get task start: %w", err)
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt task start %q: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// Clear removes the start record
func (s *TaskStartStore) Clear(ctx context.Context, accountID, taskID string) error {
	if err := s.cache.Del(ctx, taskStartKey(accountID, taskID)); err != nil {
		return fmt.Errorf("failed to clear task start: %w", err)
	}
	return nil
}
