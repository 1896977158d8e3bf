package quota

import (
	"context"
	"fmt"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps balances in process memory. Accounts that were never
// seeded start at the configured default.
type MemoryStore struct {
	mu       sync.Mutex
	def      int
	balances map[string]int
}

// MemoryOption configures a [MemoryStore].
type MemoryOption func(*MemoryStore)

// WithBalance seeds account with minutes.
func WithBalance(account string, minutes int) MemoryOption {
	return func(s *MemoryStore) { s.balances[account] = max(minutes, 0) }
}

// NewMemoryStore returns a store where unseen accounts start with
// defaultMinutes. A negative default is treated as zero.
func NewMemoryStore(defaultMinutes int, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		def:      max(defaultMinutes, 0),
		balances: make(map[string]int),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Remaining implements [Store].
func (s *MemoryStore) Remaining(_ context.Context, account string) (int, error) {
	if account == "" {
		return 0, fmt.Errorf("quota: remaining: %w", ErrUnknownAccount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(account), nil
}

// Decrement implements [Store].
func (s *MemoryStore) Decrement(_ context.Context, account string, minutes int) (int, error) {
	if account == "" {
		return 0, fmt.Errorf("quota: decrement: %w", ErrUnknownAccount)
	}
	if minutes < 0 {
		return 0, fmt.Errorf("quota: decrement: negative minutes %d", minutes)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	left := max(s.balanceLocked(account)-minutes, 0)
	s.balances[account] = left
	return left, nil
}

func (s *MemoryStore) balanceLocked(account string) int {
	b, ok := s.balances[account]
	if !ok {
		b = s.def
		s.balances[account] = b
	}
	return b
}
