package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"feedesk/internal/core"
	"feedesk/internal/feeapi"

	_ "modernc.org/sqlite"
)

// Ensure interface conformance
var _ feeapi.Backend = (*SQLiteRepository)(nil)

const maxProofSize = 10 << 20

// paidAtLayout keeps stored timestamps fixed-width so they sort as text.
const paidAtLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRepository is a standalone fee API persisted in SQLite.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY under concurrent requests.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

// SetClock overrides the time source used for status derivation and payment timestamps.
func (r *SQLiteRepository) SetClock(now func() time.Time) {
	r.now = now
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SeedStudents upserts the roster of a school.
func (r *SQLiteRepository) SeedStudents(ctx context.Context, students []core.Student) error {
	for _, s := range students {
		if err := r.queries.UpsertStudent(ctx, Student{ID: s.ID, SchoolID: s.SchoolID, Name: s.Name, StudentNumber: s.StudentNumber}); err != nil {
			return fmt.Errorf("seed student %s: %w", s.ID, err)
		}
	}
	slog.InfoContext(ctx, "Students seeded", "count", len(students))
	return nil
}

func (r *SQLiteRepository) ListFees(ctx context.Context) ([]core.Fee, error) {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.queries.ListFees(ctx, actor.SchoolID)
	if err != nil {
		return nil, fmt.Errorf("list fees: %w", err)
	}
	today := r.now()
	fees := make([]core.Fee, 0, len(rows))
	for _, row := range rows {
		f, err := feeFromRow(row, today)
		if err != nil {
			return nil, err
		}
		fees = append(fees, f)
	}
	return fees, nil
}

func (r *SQLiteRepository) OverdueFees(ctx context.Context) ([]core.Fee, error) {
	fees, err := r.ListFees(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.Fee
	for _, f := range fees {
		if f.Status == core.FeeOverdue {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *SQLiteRepository) FeeStats(ctx context.Context) (core.FeeStats, error) {
	fees, err := r.ListFees(ctx)
	if err != nil {
		return core.FeeStats{}, err
	}
	return core.ComputeStats(fees), nil
}

func (r *SQLiteRepository) CreateFee(ctx context.Context, d core.FeeDraft) (core.Fee, error) {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return core.Fee{}, err
	}
	f, err := feeapi.PrepareFee(d, actor)
	if err != nil {
		return core.Fee{}, err
	}
	n, err := r.queries.CountStudent(ctx, actor.SchoolID, f.StudentID)
	if err != nil {
		return core.Fee{}, fmt.Errorf("look up student: %w", err)
	}
	if n == 0 {
		return core.Fee{}, fmt.Errorf("student %s: %w", f.StudentID, core.ErrNotFound)
	}

	f.ID = uuid.NewString()
	if err := r.queries.CreateFee(ctx, feeToRow(f)); err != nil {
		return core.Fee{}, fmt.Errorf("create fee: %w", err)
	}
	slog.InfoContext(ctx, "Fee saved to SQLite",
		"fee_id", f.ID,
		"student_id", f.StudentID,
		"amount_cents", f.Amount.Cents,
		"category", f.Category)
	return r.getFee(ctx, actor.SchoolID, f.ID)
}

func (r *SQLiteRepository) UpdateFee(ctx context.Context, id string, u core.FeeUpdate) (core.Fee, error) {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return core.Fee{}, err
	}
	current, err := r.getFee(ctx, actor.SchoolID, id)
	if err != nil {
		return core.Fee{}, err
	}
	f, err := feeapi.ApplyUpdate(current, u, actor)
	if err != nil {
		return core.Fee{}, err
	}
	n, err := r.queries.UpdateFee(ctx, feeToRow(f))
	if err != nil {
		return core.Fee{}, fmt.Errorf("update fee: %w", err)
	}
	if n == 0 {
		return core.Fee{}, fmt.Errorf("fee %s: %w", id, core.ErrNotFound)
	}
	return r.getFee(ctx, actor.SchoolID, id)
}

func (r *SQLiteRepository) getFee(ctx context.Context, schoolID, id string) (core.Fee, error) {
	row, err := r.queries.GetFee(ctx, schoolID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Fee{}, fmt.Errorf("fee %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Fee{}, fmt.Errorf("get fee: %w", err)
	}
	return feeFromRow(row, r.now())
}

func (r *SQLiteRepository) ListPayments(ctx context.Context, status core.PaymentStatus) ([]core.Payment, error) {
	return r.listPayments(ctx, status, 0)
}

func (r *SQLiteRepository) RecentPayments(ctx context.Context, limit int) ([]core.Payment, error) {
	return r.listPayments(ctx, "", limit)
}

func (r *SQLiteRepository) listPayments(ctx context.Context, status core.PaymentStatus, limit int) ([]core.Payment, error) {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.queries.ListPayments(ctx, actor.SchoolID, string(status), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	out := make([]core.Payment, 0, len(rows))
	for _, row := range rows {
		p, err := paymentFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *SQLiteRepository) RecordPayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return core.Payment{}, err
	}
	fee, err := r.getFee(ctx, actor.SchoolID, p.FeeID)
	if err != nil {
		return core.Payment{}, err
	}
	p, err = feeapi.PreparePayment(p, fee, actor, r.now())
	if err != nil {
		return core.Payment{}, err
	}
	p.ID = uuid.NewString()
	if err := r.queries.CreatePayment(ctx, paymentToRow(p)); err != nil {
		return core.Payment{}, fmt.Errorf("create payment: %w", err)
	}
	slog.InfoContext(ctx, "Payment saved to SQLite",
		"payment_id", p.ID,
		"fee_id", p.FeeID,
		"method", p.Method,
		"status", p.Status,
		"amount_cents", p.Amount.Cents)
	p.Student = fee.Student
	return p, nil
}

func (r *SQLiteRepository) VerifyPayment(ctx context.Context, id string) error {
	return r.transition(ctx, id, core.PaymentVerified, "")
}

func (r *SQLiteRepository) RejectPayment(ctx context.Context, id string, reason string) error {
	return r.transition(ctx, id, core.PaymentRejected, reason)
}

func (r *SQLiteRepository) transition(ctx context.Context, id string, next core.PaymentStatus, reason string) error {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	row, err := q.GetPayment(ctx, actor.SchoolID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("payment %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get payment: %w", err)
	}
	current, err := paymentFromRow(row)
	if err != nil {
		return err
	}
	updated, err := feeapi.Transition(current, next, reason, actor)
	if err != nil {
		return err
	}
	n, err := q.UpdatePaymentStatus(ctx, paymentToRow(updated))
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if n == 0 {
		return core.ErrInvalidTransition
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.InfoContext(ctx, "Payment status updated", "payment_id", id, "status", next, "by", actor.UserID)
	return nil
}

func (r *SQLiteRepository) ListStudents(ctx context.Context) ([]core.Student, error) {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.queries.ListStudents(ctx, actor.SchoolID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	out := make([]core.Student, len(rows))
	for i, s := range rows {
		out[i] = core.Student{ID: s.ID, Name: s.Name, StudentNumber: s.StudentNumber, SchoolID: s.SchoolID}
	}
	return out, nil
}

// UploadProof stores the file in the proofs table and returns a sqlite:// reference.
func (r *SQLiteRepository) UploadProof(ctx context.Context, filename string, rd io.Reader) (string, error) {
	actor, err := feeapi.Actor(ctx)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(io.LimitReader(rd, maxProofSize+1))
	if err != nil {
		return "", fmt.Errorf("read proof: %w", err)
	}
	if len(data) > maxProofSize {
		return "", fmt.Errorf("%w: proof file is larger than %d MB", core.ErrInvalid, maxProofSize>>20)
	}
	id := uuid.NewString()
	name := filepath.Base(filename)
	if err := r.queries.CreateProof(ctx, id, actor.SchoolID, name, data); err != nil {
		return "", fmt.Errorf("store proof: %w", err)
	}
	return "sqlite://proofs/" + id + "/" + name, nil
}

func feeToRow(f core.Fee) Fee {
	return Fee{
		ID:          f.ID,
		SchoolID:    f.SchoolID,
		StudentID:   f.StudentID,
		AmountCents: f.Amount.Cents,
		Category:    string(f.Category),
		Term:        f.Term,
		Year:        int64(f.Year),
		DueDate:     f.DueDate.String(),
		Waived:      f.Status == core.FeeWaived,
	}
}

func feeFromRow(row FeeRow, today time.Time) (core.Fee, error) {
	due, err := core.ParseDate(row.DueDate)
	if err != nil {
		return core.Fee{}, fmt.Errorf("fee %s: stored due date %q: %w", row.ID, row.DueDate, err)
	}
	f := core.Fee{
		ID:        row.ID,
		StudentID: row.StudentID,
		SchoolID:  row.SchoolID,
		Amount:    core.Money{Cents: row.AmountCents},
		Category:  core.FeeCategory(row.Category),
		Term:      row.Term,
		Year:      int(row.Year),
		DueDate:   due,
		Status:    core.FeePending,
	}
	if row.Waived {
		f.Status = core.FeeWaived
	}
	if row.StudentName.Valid {
		f.Student = &core.StudentSummary{Name: row.StudentName.String, StudentNumber: row.StudentNumber.String}
	}
	return core.ApplyPayments(f, core.Money{Cents: row.PaidCents}, today), nil
}

func paymentToRow(p core.Payment) Payment {
	var paidAt string
	if p.PaidAt != nil {
		paidAt = p.PaidAt.UTC().Format(paidAtLayout)
	}
	return Payment{
		ID:              p.ID,
		SchoolID:        p.SchoolID,
		FeeID:           p.FeeID,
		StudentID:       p.StudentID,
		InvoiceID:       p.InvoiceID,
		AmountCents:     p.Amount.Cents,
		Method:          string(p.Method),
		BankName:        p.BankName,
		Reference:       p.Reference,
		ProofURL:        p.ProofURL,
		ReceivedBy:      p.ReceivedBy,
		Status:          string(p.Status),
		PaidBy:          p.PaidBy,
		PaidAt:          paidAt,
		Notes:           p.Notes,
		RejectionReason: p.RejectionReason,
		VerifiedBy:      p.VerifiedBy,
	}
}

func paymentFromRow(row PaymentRow) (core.Payment, error) {
	p := core.Payment{
		ID:              row.ID,
		StudentID:       row.StudentID,
		SchoolID:        row.SchoolID,
		InvoiceID:       row.InvoiceID,
		FeeID:           row.FeeID,
		Amount:          core.Money{Cents: row.AmountCents},
		Method:          core.PaymentMethod(row.Method),
		BankName:        row.BankName,
		Reference:       row.Reference,
		ProofURL:        row.ProofURL,
		ReceivedBy:      row.ReceivedBy,
		Status:          core.PaymentStatus(row.Status),
		PaidBy:          row.PaidBy,
		Notes:           row.Notes,
		RejectionReason: row.RejectionReason,
		VerifiedBy:      row.VerifiedBy,
	}
	if row.PaidAt != "" {
		at, err := time.Parse(paidAtLayout, row.PaidAt)
		if err != nil {
			return core.Payment{}, fmt.Errorf("payment %s: stored paid_at %q: %w", row.ID, row.PaidAt, err)
		}
		p.PaidAt = &at
	}
	if row.StudentName.Valid {
		p.Student = &core.StudentSummary{Name: row.StudentName.String, StudentNumber: row.StudentNumber.String}
	}
	return p, nil
}
