package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/Combine-Capital/trail/pkg/errors"
	"github.com/Combine-Capital/trail/pkg/record"
)

// Memory is an in-memory sink that keeps records in append order.
// It is designed for testing and development, not for production use.
type Memory struct {
	mu      sync.RWMutex
	records []record.Record
	closed  bool
}

// NewMemory creates an empty in-memory sink.
//
// Example:
//
//	mem := sink.NewMemory()
//	defer mem.Close()
func NewMemory() *Memory {
	return &Memory{}
}

// Name implements Named.
func (m *Memory) Name() string {
	return "memory"
}

// Append stores rec. It fails with ConnectionFailure once the sink is closed.
func (m *Memory) Append(ctx context.Context, rec record.Record) error {
	return m.AppendBatch(ctx, []record.Record{rec})
}

// AppendBatch stores recs atomically.
func (m *Memory) AppendBatch(ctx context.Context, recs []record.Record) error {
	if err := ctx.Err(); err != nil {
		return errors.NewSinkError(errors.ConnectionFailure, m.Name(), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.NewSinkErrorf(errors.ConnectionFailure, m.Name(), "sink is closed")
	}
	m.records = append(m.records, recs...)
	return nil
}

// Records returns a copy of everything appended so far.
func (m *Memory) Records() []record.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]record.Record, len(m.records))
	copy(out, m.records)
	return out
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Reset discards all stored records.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
}

// Close rejects further appends. Stored records stay readable.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Check implements the health.Checker interface for the in-memory sink.
// The in-memory sink is always healthy unless it has been closed.
func (m *Memory) Check(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("memory sink is closed")
	}
	return nil
}
