// Package audit fans ledger events out to log and analytics sinks.
package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/gem-ledger/internal/logging"
	"github.com/gem-ledger/internal/models"
)

// Sink receives committed ledger events
type Sink interface {
	Emit(ctx context.Context, events []models.LedgerEvent) error
}

// EventWriter persists events in bulk
type EventWriter interface {
	InsertBatch(ctx context.Context, events []models.LedgerEvent) error
}

// LogSink writes one structured log line per event
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a sink that logs through logger
func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logger.WithField("component", "ledger")}
}

// Emit logs every event
func (s *LogSink) Emit(_ context.Context, events []models.LedgerEvent) error {
	for _, e := range events {
		s.logger.WithFields(map[string]interface{}{
			"eventId":      e.ID,
			"accountId":    e.AccountID,
			"kind":         e.Kind,
			"balanceDelta": e.BalanceDelta,
			"xpDelta":      e.XPDelta,
			"balanceAfter": e.BalanceAfter,
			"xpAfter":      e.XPAfter,
			"levelAfter":   e.LevelAfter,
			"reference":    e.Reference,
		}).Info("ledger mutation")
	}
	return nil
}

// StoreSink forwards events to an EventWriter such as the ClickHouse repository
type StoreSink struct {
	writer EventWriter
}

// NewStoreSink creates a sink backed by writer
func NewStoreSink(writer EventWriter) *StoreSink {
	return &StoreSink{writer: writer}
}

// Emit writes the events as one batch
func (s *StoreSink) Emit(ctx context.Context, events []models.LedgerEvent) error {
	return s.writer.InsertBatch(ctx, events)
}

// MultiSink emits to every sink and joins their errors
type MultiSink []Sink

// Emit calls each sink even when an earlier one fails
func (m MultiSink) Emit(ctx context.Context, events []models.LedgerEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps events in memory for tests and the memory storage driver
type MemorySink struct {
	mu     sync.Mutex
	events []models.LedgerEvent
}

// Emit appends the events
func (m *MemorySink) Emit(_ context.Context, events []models.LedgerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

// Events returns a copy of everything emitted so far
func (m *MemorySink) Events() []models.LedgerEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.LedgerEvent(nil), m.events...)
}

// ListByAccount returns the account's events, newest first.
// A non-positive limit returns every event.
func (m *MemorySink) ListByAccount(_ context.Context, accountID string, limit int) ([]models.LedgerEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.LedgerEvent, 0)
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].AccountID != accountID {
			continue
		}
		out = append(out, m.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
