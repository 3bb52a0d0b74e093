// Package memory keeps the ledger in process, for development without a spreadsheet.
package memory

import (
	"context"
	"fmt"
	"sync"

	"feedesk/internal/core"
	"feedesk/internal/ledger"
)

// Ensure interface conformance
var _ ledger.Appender = (*Store)(nil)

type Store struct {
	mu     sync.Mutex
	events []core.PaymentEvent
}

func New() *Store { return &Store{} }

// Append stores the event and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, e core.PaymentEvent) (string, error) {
	if e.PaymentID == "" || e.Type == "" {
		return "", fmt.Errorf("%w: event without type or payment id", core.ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return fmt.Sprintf("mem:%d", len(s.events)), nil
}

// Events returns a copy of the appended events in order.
func (s *Store) Events() []core.PaymentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.PaymentEvent(nil), s.events...)
}
