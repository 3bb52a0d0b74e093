package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feedesk/internal/cache"
	"feedesk/internal/core"
	"feedesk/internal/ledger"
)

const (
	// dedupeWindow bounds how long a delivered event is remembered.
	dedupeWindow = 24 * time.Hour
	dedupeSize   = 10000
)

// LedgerWorker appends every payment event it receives to the ledger.
// Redelivered events within the dedupe window are skipped.
type LedgerWorker struct {
	ledger ledger.Appender
	seen   *cache.LRUCache[string]
}

func NewLedgerWorker(l ledger.Appender) *LedgerWorker {
	return &LedgerWorker{
		ledger: l,
		seen:   cache.NewLRUCache[string](dedupeSize, dedupeWindow),
	}
}

// Seen exposes the dedupe cache so it can be swept periodically.
func (w *LedgerWorker) Seen() *cache.LRUCache[string] { return w.seen }

// HandlePaymentEvent processes a single payment event from AMQP.
// A returned error asks the broker to redeliver.
func (w *LedgerWorker) HandlePaymentEvent(ctx context.Context, e core.PaymentEvent) error {
	key := eventKey(e)
	if !w.seen.Add(key, "") {
		slog.InfoContext(ctx, "Skipping duplicate payment event",
			"type", e.Type,
			"payment_id", e.PaymentID)
		return nil
	}

	ref, err := w.ledger.Append(ctx, e)
	if err != nil {
		if errors.Is(err, core.ErrInvalid) {
			slog.WarnContext(ctx, "Dropping invalid payment event",
				"type", e.Type,
				"payment_id", e.PaymentID,
				"error", err)
			return nil
		}
		w.seen.Delete(key)
		return fmt.Errorf("append to ledger: %w", err)
	}
	w.seen.Set(key, ref)

	slog.InfoContext(ctx, "Payment event recorded in ledger",
		"type", e.Type,
		"payment_id", e.PaymentID,
		"school_id", e.SchoolID,
		"ledger_ref", ref)
	return nil
}

// eventKey identifies an event across redeliveries. A payment produces at most
// one event of each type.
func eventKey(e core.PaymentEvent) string {
	return string(e.Type) + ":" + e.SchoolID + ":" + e.PaymentID
}
