// Package memory is an in-process fee API used for development and tests.
// Data lives for the lifetime of the process and is scoped by school.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"feedesk/internal/core"
	"feedesk/internal/feeapi"
)

// Ensure interface conformance
var _ feeapi.Backend = (*Store)(nil)

// maxProofSize bounds accepted proofs.
const maxProofSize = 10 << 20

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	students []core.Student
	fees     []core.Fee
	payments []core.Payment
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for status derivation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(students []core.Student, opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	s.students = dedupeStudents(students)
	return s
}

// NewFromFiles seeds the roster of schoolID from seed_students.txt in base.
// Each line is "studentNumber,name". Missing files fall back to a demo roster
// with one open fee per student.
func NewFromFiles(base, schoolID string, opts ...Option) *Store {
	students := ReadRoster(base, schoolID)
	demo := len(students) == 0
	if demo {
		students = []core.Student{
			{ID: "stu-1", Name: "Amina Njeri", StudentNumber: "S-001", SchoolID: schoolID},
			{ID: "stu-2", Name: "Brian Otieno", StudentNumber: "S-002", SchoolID: schoolID},
			{ID: "stu-3", Name: "Chloe Wanjiru", StudentNumber: "S-003", SchoolID: schoolID},
		}
	}
	s := New(students, opts...)
	if demo {
		due := s.now().AddDate(0, 1, 0)
		for _, st := range students {
			s.fees = append(s.fees, core.Fee{
				ID:        uuid.NewString(),
				StudentID: st.ID,
				SchoolID:  schoolID,
				Amount:    core.Money{Cents: 150000},
				Category:  core.CategoryTuition,
				Term:      "Term 1",
				Year:      due.Year(),
				DueDate:   core.NewDate(due.Year(), int(due.Month()), due.Day()),
				Status:    core.FeePending,
			})
		}
	}
	return s
}

func (s *Store) ListFees(ctx context.Context) ([]core.Fee, error) {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feesLocked(actor.SchoolID, nil), nil
}

func (s *Store) OverdueFees(ctx context.Context) ([]core.Fee, error) {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feesLocked(actor.SchoolID, func(f core.Fee) bool { return f.Status == core.FeeOverdue }), nil
}

func (s *Store) FeeStats(ctx context.Context) (core.FeeStats, error) {
	fees, err := s.ListFees(ctx)
	if err != nil {
		return core.FeeStats{}, err
	}
	return core.ComputeStats(fees), nil
}

func (s *Store) CreateFee(ctx context.Context, d core.FeeDraft) (core.Fee, error) {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return core.Fee{}, err
	}
	f, err := feeapi.PrepareFee(d, actor)
	if err != nil {
		return core.Fee{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.studentLocked(actor.SchoolID, f.StudentID); !ok {
		return core.Fee{}, fmt.Errorf("student %s: %w", f.StudentID, core.ErrNotFound)
	}
	f.ID = uuid.NewString()
	s.fees = append(s.fees, f)
	return s.deriveLocked(f), nil
}

func (s *Store) UpdateFee(ctx context.Context, id string, u core.FeeUpdate) (core.Fee, error) {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return core.Fee{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.feeIndexLocked(actor.SchoolID, id)
	if i < 0 {
		return core.Fee{}, fmt.Errorf("fee %s: %w", id, core.ErrNotFound)
	}
	f, err := feeapi.ApplyUpdate(s.fees[i], u, actor)
	if err != nil {
		return core.Fee{}, err
	}
	s.fees[i] = f
	return s.deriveLocked(f), nil
}

func (s *Store) ListPayments(ctx context.Context, status core.PaymentStatus) ([]core.Payment, error) {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Payment
	for _, p := range s.payments {
		if p.SchoolID != actor.SchoolID || (status != "" && p.Status != status) {
			continue
		}
		out = append(out, s.withStudentLocked(p))
	}
	feeapi.SortRecent(out)
	return out, nil
}

func (s *Store) RecentPayments(ctx context.Context, limit int) ([]core.Payment, error) {
	all, err := s.ListPayments(ctx, "")
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) RecordPayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return core.Payment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.feeIndexLocked(actor.SchoolID, p.FeeID)
	if i < 0 {
		return core.Payment{}, fmt.Errorf("fee %s: %w", p.FeeID, core.ErrNotFound)
	}
	p, err = feeapi.PreparePayment(p, s.fees[i], actor, s.now())
	if err != nil {
		return core.Payment{}, err
	}
	p.ID = uuid.NewString()
	s.payments = append(s.payments, p)
	return s.withStudentLocked(p), nil
}

func (s *Store) VerifyPayment(ctx context.Context, id string) error {
	return s.transition(ctx, id, core.PaymentVerified, "")
}

func (s *Store) RejectPayment(ctx context.Context, id string, reason string) error {
	return s.transition(ctx, id, core.PaymentRejected, reason)
}

func (s *Store) transition(ctx context.Context, id string, next core.PaymentStatus, reason string) error {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.payments {
		if p.ID != id || p.SchoolID != actor.SchoolID {
			continue
		}
		updated, err := feeapi.Transition(p, next, reason, actor)
		if err != nil {
			return err
		}
		s.payments[i] = updated
		return nil
	}
	return fmt.Errorf("payment %s: %w", id, core.ErrNotFound)
}

func (s *Store) ListStudents(ctx context.Context) ([]core.Student, error) {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Student
	for _, st := range s.students {
		if st.SchoolID == actor.SchoolID {
			out = append(out, st)
		}
	}
	return out, nil
}

// UploadProof checks the file size and returns a memory:// reference. The
// content is discarded.
func (s *Store) UploadProof(ctx context.Context, filename string, r io.Reader) (string, error) {
	if _, err := feeapi.Actor(ctx); err != nil {
		return "", err
	}
	n, err := io.Copy(io.Discard, io.LimitReader(r, maxProofSize+1))
	if err != nil {
		return "", fmt.Errorf("read proof: %w", err)
	}
	if n > maxProofSize {
		return "", fmt.Errorf("%w: proof file is larger than %d MB", core.ErrInvalid, maxProofSize>>20)
	}
	return "memory://proofs/" + uuid.NewString() + "/" + filepath.Base(filename), nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) feesLocked(schoolID string, keep func(core.Fee) bool) []core.Fee {
	var out []core.Fee
	for _, f := range s.fees {
		if f.SchoolID != schoolID {
			continue
		}
		f = s.deriveLocked(f)
		if keep == nil || keep(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s *Store) deriveLocked(f core.Fee) core.Fee {
	var paid core.Money
	for _, p := range s.payments {
		if p.FeeID == f.ID && p.Status == core.PaymentVerified {
			paid = paid.Add(p.Amount)
		}
	}
	f = core.ApplyPayments(f, paid, s.now())
	if st, ok := s.studentLocked(f.SchoolID, f.StudentID); ok {
		f.Student = &core.StudentSummary{Name: st.Name, StudentNumber: st.StudentNumber}
	}
	return f
}

func (s *Store) withStudentLocked(p core.Payment) core.Payment {
	if st, ok := s.studentLocked(p.SchoolID, p.StudentID); ok {
		p.Student = &core.StudentSummary{Name: st.Name, StudentNumber: st.StudentNumber}
	}
	return p
}

func (s *Store) studentLocked(schoolID, id string) (core.Student, bool) {
	for _, st := range s.students {
		if st.ID == id && st.SchoolID == schoolID {
			return st, true
		}
	}
	return core.Student{}, false
}

func (s *Store) feeIndexLocked(schoolID, id string) int {
	for i, f := range s.fees {
		if f.ID == id && f.SchoolID == schoolID {
			return i
		}
	}
	return -1
}

// ReadRoster reads seed_students.txt in base. A missing file yields no students.
func ReadRoster(base, schoolID string) []core.Student {
	f, err := os.Open(filepath.Join(base, "seed_students.txt"))
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []core.Student
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		number, name, ok := strings.Cut(line, ",")
		if !ok {
			continue
		}
		number, name = strings.TrimSpace(number), strings.TrimSpace(name)
		if number == "" || name == "" {
			continue
		}
		out = append(out, core.Student{
			ID:            "stu-" + strings.ToLower(number),
			Name:          name,
			StudentNumber: number,
			SchoolID:      schoolID,
		})
	}
	return out
}

func dedupeStudents(in []core.Student) []core.Student {
	seen := map[string]struct{}{}
	out := make([]core.Student, 0, len(in))
	for _, st := range in {
		key := st.SchoolID + "/" + st.ID
		if st.ID == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, st)
	}
	return out
}
