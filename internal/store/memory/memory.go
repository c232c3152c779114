// Package memory provides bounded in-memory implementations of the domain
// store interfaces, used when PostgreSQL is not configured and as the
// read-path fallback for the query API.
package memory

import (
	"context"
	"sync"

	"github.com/avask/arbot/internal/domain"
)

// defaultCapacity bounds each ring buffer.
const defaultCapacity = 256

// OpportunityStore is a ring-buffered domain.OpportunityStore.
type OpportunityStore struct {
	mu   sync.Mutex
	ring []domain.Opportunity
	cap  int
}

// NewOpportunityStore creates an in-memory store keeping the last capacity
// entries; capacity <= 0 uses the default.
func NewOpportunityStore(capacity int) *OpportunityStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &OpportunityStore{cap: capacity}
}

// Insert appends an opportunity, evicting the oldest entry when full.
func (s *OpportunityStore) Insert(_ context.Context, opp domain.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring = append(s.ring, opp)
	if len(s.ring) > s.cap {
		s.ring = s.ring[len(s.ring)-s.cap:]
	}
	return nil
}

// Recent returns up to limit opportunities, newest first.
func (s *OpportunityStore) Recent(_ context.Context, limit int) ([]domain.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.ring)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Opportunity, 0, n)
	for i := len(s.ring) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.ring[i])
	}
	return out, nil
}

// ExecutionStore is a ring-buffered domain.ExecutionStore. Updates rewrite
// the entry in place by ID.
type ExecutionStore struct {
	mu   sync.Mutex
	ring []domain.TradeExecution
	cap  int
}

// NewExecutionStore creates an in-memory store keeping the last capacity
// entries; capacity <= 0 uses the default.
func NewExecutionStore(capacity int) *ExecutionStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &ExecutionStore{cap: capacity}
}

// Insert appends an execution, evicting the oldest entry when full.
func (s *ExecutionStore) Insert(_ context.Context, exec domain.TradeExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring = append(s.ring, exec)
	if len(s.ring) > s.cap {
		s.ring = s.ring[len(s.ring)-s.cap:]
	}
	return nil
}

// Update rewrites the stored entry with the same ID; unknown IDs return
// domain.ErrNotFound.
func (s *ExecutionStore) Update(_ context.Context, exec domain.TradeExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.ring {
		if s.ring[i].ID == exec.ID {
			s.ring[i] = exec
			return nil
		}
	}
	return domain.ErrNotFound
}

// Recent returns up to limit executions, newest first.
func (s *ExecutionStore) Recent(_ context.Context, limit int) ([]domain.TradeExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.ring)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.TradeExecution, 0, n)
	for i := len(s.ring) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.ring[i])
	}
	return out, nil
}
