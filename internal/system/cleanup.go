package system

import (
	"fmt"
	"sync"
)

type cleanupEntry struct {
	label string
	fn    func() error
}

// CleanupStack manages teardown operations in reverse order (LIFO).
// Stages register their undo action as soon as a resource is acquired;
// Execute unwinds everything still registered, Clear disarms on success.
type CleanupStack struct {
	entries []cleanupEntry
	mu      sync.Mutex
}

// NewCleanupStack creates a new cleanup stack
func NewCleanupStack() *CleanupStack {
	return &CleanupStack{
		entries: make([]cleanupEntry, 0),
	}
}

// Add adds a labeled cleanup function to the stack
func (s *CleanupStack) Add(label string, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, cleanupEntry{label: label, fn: fn})
}

// Execute runs all cleanup functions in reverse order (LIFO), collecting
// failures rather than stopping at the first. The stack is emptied, so a
// second Execute is a no-op.
func (s *CleanupStack) Execute() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i := len(s.entries) - 1; i >= 0; i-- {
		if err := s.entries[i].fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.entries[i].label, err))
		}
	}
	s.entries = nil

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// Clear removes all cleanup functions (call on success to prevent cleanup)
func (s *CleanupStack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// Len reports how many cleanup functions are registered
func (s *CleanupStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
