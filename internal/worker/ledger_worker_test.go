package worker

import (
	"context"
	"errors"
	"testing"

	"feedesk/internal/core"
	"feedesk/internal/ledger/memory"
)

type failingLedger struct {
	calls int
	err   error
}

func (f *failingLedger) Append(context.Context, core.PaymentEvent) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "row", nil
}

func TestHandlePaymentEventSkipsDuplicates(t *testing.T) {
	store := memory.New()
	w := NewLedgerWorker(store)
	e := core.PaymentEvent{Type: core.EventPaymentRecorded, PaymentID: "p1", SchoolID: "sch"}

	for i := 0; i < 3; i++ {
		if err := w.HandlePaymentEvent(context.Background(), e); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	verified := e
	verified.Type = core.EventPaymentVerified
	if err := w.HandlePaymentEvent(context.Background(), verified); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := store.Events()
	if len(got) != 2 || got[0].Type != core.EventPaymentRecorded || got[1].Type != core.EventPaymentVerified {
		t.Fatalf("unexpected ledger %+v", got)
	}
	if ref, ok := w.Seen().Get(eventKey(e)); !ok || ref != "mem:1" {
		t.Fatalf("ledger ref not remembered: %q %v", ref, ok)
	}
}

func TestHandlePaymentEventRetriesFailures(t *testing.T) {
	l := &failingLedger{err: errors.New("quota exceeded")}
	w := NewLedgerWorker(l)
	e := core.PaymentEvent{Type: core.EventPaymentRejected, PaymentID: "p1"}

	if err := w.HandlePaymentEvent(context.Background(), e); err == nil {
		t.Fatal("expected error so the broker redelivers")
	}
	l.err = nil
	if err := w.HandlePaymentEvent(context.Background(), e); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if l.calls != 2 {
		t.Fatalf("a failed event must be retried, calls=%d", l.calls)
	}
}

func TestHandlePaymentEventDropsInvalid(t *testing.T) {
	l := &failingLedger{err: core.ErrInvalid}
	w := NewLedgerWorker(l)
	if err := w.HandlePaymentEvent(context.Background(), core.PaymentEvent{Type: core.EventPaymentVerified}); err != nil {
		t.Fatalf("invalid events are dropped, got %v", err)
	}
}
