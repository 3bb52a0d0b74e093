package services

import (
	"context"
	"errors"
	"io"
	"sync"

	"feedesk/internal/core"
	"feedesk/internal/identity"
)

// fakeAPI records every call so tests can assert that validation failures
// never reach the fee API.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	fees     []core.Fee
	stats    core.FeeStats
	overdue  []core.Fee
	payments []core.Payment
	students []core.Student

	failFees   error
	failStats  error
	failWrite  error
	uploadURL  string
	lastDraft  core.FeeDraft
	lastUpdate core.FeeUpdate
	lastPay    core.Payment
	lastReason string
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) ListFees(context.Context) ([]core.Fee, error) {
	f.record("ListFees")
	return f.fees, f.failFees
}

func (f *fakeAPI) OverdueFees(context.Context) ([]core.Fee, error) {
	f.record("OverdueFees")
	return f.overdue, nil
}

func (f *fakeAPI) FeeStats(context.Context) (core.FeeStats, error) {
	f.record("FeeStats")
	return f.stats, f.failStats
}

func (f *fakeAPI) CreateFee(_ context.Context, d core.FeeDraft) (core.Fee, error) {
	f.record("CreateFee")
	f.lastDraft = d
	if f.failWrite != nil {
		return core.Fee{}, f.failWrite
	}
	return core.Fee{ID: "new", StudentID: d.StudentID, Amount: d.Amount}, nil
}

func (f *fakeAPI) UpdateFee(_ context.Context, id string, u core.FeeUpdate) (core.Fee, error) {
	f.record("UpdateFee")
	f.lastUpdate = u
	return core.Fee{ID: id, Term: u.Term}, f.failWrite
}

func (f *fakeAPI) ListPayments(_ context.Context, status core.PaymentStatus) ([]core.Payment, error) {
	f.record("ListPayments:" + string(status))
	var out []core.Payment
	for _, p := range f.payments {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeAPI) RecentPayments(_ context.Context, limit int) ([]core.Payment, error) {
	f.record("RecentPayments")
	if len(f.payments) > limit {
		return f.payments[:limit], nil
	}
	return f.payments, nil
}

func (f *fakeAPI) RecordPayment(_ context.Context, p core.Payment) (core.Payment, error) {
	f.record("RecordPayment")
	f.lastPay = p
	if f.failWrite != nil {
		return core.Payment{}, f.failWrite
	}
	p.ID = "pay-1"
	return p, nil
}

func (f *fakeAPI) VerifyPayment(context.Context, string) error {
	f.record("VerifyPayment")
	return f.failWrite
}

func (f *fakeAPI) RejectPayment(_ context.Context, _ string, reason string) error {
	f.record("RejectPayment")
	f.lastReason = reason
	return f.failWrite
}

func (f *fakeAPI) ListStudents(context.Context) ([]core.Student, error) {
	f.record("ListStudents")
	return f.students, nil
}

func (f *fakeAPI) UploadProof(_ context.Context, _ string, r io.Reader) (string, error) {
	f.record("UploadProof")
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	if f.uploadURL == "" {
		return "", errors.New("upload failed")
	}
	return f.uploadURL, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []core.PaymentEvent
	err    error
}

func (p *fakePublisher) PublishPaymentEvent(_ context.Context, e core.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func ctxAs(role core.Role) context.Context {
	return identity.WithIdentity(context.Background(), core.Identity{
		UserID: "u-" + string(role), Name: "Sam", Role: role, SchoolID: "sch",
	})
}

func moneyPtr(cents int64) *core.Money {
	m := core.Money{Cents: cents}
	return &m
}
