package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Student struct {
	ID            string
	SchoolID      string
	Name          string
	StudentNumber string
}

type Fee struct {
	ID          string
	SchoolID    string
	StudentID   string
	AmountCents int64
	Category    string
	Term        string
	Year        int64
	DueDate     string
	Waived      bool
}

// FeeRow is a fee joined with its student and the sum of its verified payments.
type FeeRow struct {
	Fee
	StudentName   sql.NullString
	StudentNumber sql.NullString
	PaidCents     int64
}

type Payment struct {
	ID              string
	SchoolID        string
	FeeID           string
	StudentID       string
	InvoiceID       string
	AmountCents     int64
	Method          string
	BankName        string
	Reference       string
	ProofURL        string
	ReceivedBy      string
	Status          string
	PaidBy          string
	PaidAt          string
	Notes           string
	RejectionReason string
	VerifiedBy      string
}

// PaymentRow is a payment joined with its student.
type PaymentRow struct {
	Payment
	StudentName   sql.NullString
	StudentNumber sql.NullString
}

const upsertStudent = `-- name: UpsertStudent :exec
INSERT INTO students (id, school_id, name, student_number)
VALUES (?, ?, ?, ?)
ON CONFLICT (school_id, id) DO UPDATE SET name = excluded.name, student_number = excluded.student_number
`

func (q *Queries) UpsertStudent(ctx context.Context, s Student) error {
	_, err := q.db.ExecContext(ctx, upsertStudent, s.ID, s.SchoolID, s.Name, s.StudentNumber)
	return err
}

const listStudents = `-- name: ListStudents :many
SELECT id, school_id, name, student_number FROM students
WHERE school_id = ?
ORDER BY name, id
`

func (q *Queries) ListStudents(ctx context.Context, schoolID string) ([]Student, error) {
	rows, err := q.db.QueryContext(ctx, listStudents, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Student
	for rows.Next() {
		var i Student
		if err := rows.Scan(&i.ID, &i.SchoolID, &i.Name, &i.StudentNumber); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countStudent = `-- name: CountStudent :one
SELECT COUNT(*) FROM students WHERE school_id = ? AND id = ?
`

func (q *Queries) CountStudent(ctx context.Context, schoolID, id string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countStudent, schoolID, id).Scan(&n)
	return n, err
}

const createFee = `-- name: CreateFee :exec
INSERT INTO fees (id, school_id, student_id, amount_cents, category, term, year, due_date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateFee(ctx context.Context, f Fee) error {
	_, err := q.db.ExecContext(ctx, createFee, f.ID, f.SchoolID, f.StudentID, f.AmountCents, f.Category, f.Term, f.Year, f.DueDate)
	return err
}

const updateFee = `-- name: UpdateFee :execrows
UPDATE fees
SET amount_cents = ?, term = ?, year = ?, due_date = ?, updated_at = CURRENT_TIMESTAMP
WHERE school_id = ? AND id = ?
`

func (q *Queries) UpdateFee(ctx context.Context, f Fee) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateFee, f.AmountCents, f.Term, f.Year, f.DueDate, f.SchoolID, f.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectFeeRows = `SELECT f.id, f.school_id, f.student_id, f.amount_cents, f.category, f.term, f.year, f.due_date, f.waived,
       s.name, s.student_number,
       COALESCE((SELECT SUM(p.amount_cents) FROM payments p WHERE p.fee_id = f.id AND p.status = 'Verified'), 0)
FROM fees f
LEFT JOIN students s ON s.school_id = f.school_id AND s.id = f.student_id
`

const listFees = `-- name: ListFees :many
` + selectFeeRows + `WHERE f.school_id = ?
ORDER BY f.due_date, f.created_at, f.id
`

func (q *Queries) ListFees(ctx context.Context, schoolID string) ([]FeeRow, error) {
	rows, err := q.db.QueryContext(ctx, listFees, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []FeeRow
	for rows.Next() {
		i, err := scanFeeRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getFee = `-- name: GetFee :one
` + selectFeeRows + `WHERE f.school_id = ? AND f.id = ?
`

func (q *Queries) GetFee(ctx context.Context, schoolID, id string) (FeeRow, error) {
	return scanFeeRow(q.db.QueryRowContext(ctx, getFee, schoolID, id))
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFeeRow(s scanner) (FeeRow, error) {
	var i FeeRow
	err := s.Scan(&i.ID, &i.SchoolID, &i.StudentID, &i.AmountCents, &i.Category, &i.Term, &i.Year, &i.DueDate, &i.Waived,
		&i.StudentName, &i.StudentNumber, &i.PaidCents)
	return i, err
}

const createPayment = `-- name: CreatePayment :exec
INSERT INTO payments (id, school_id, fee_id, student_id, invoice_id, amount_cents, method, bank_name, reference,
                      proof_url, received_by, status, paid_by, paid_at, notes, rejection_reason, verified_by)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreatePayment(ctx context.Context, p Payment) error {
	_, err := q.db.ExecContext(ctx, createPayment, p.ID, p.SchoolID, p.FeeID, p.StudentID, p.InvoiceID, p.AmountCents,
		p.Method, p.BankName, p.Reference, p.ProofURL, p.ReceivedBy, p.Status, p.PaidBy, p.PaidAt, p.Notes,
		p.RejectionReason, p.VerifiedBy)
	return err
}

const selectPaymentRows = `SELECT p.id, p.school_id, p.fee_id, p.student_id, p.invoice_id, p.amount_cents, p.method, p.bank_name,
       p.reference, p.proof_url, p.received_by, p.status, p.paid_by, p.paid_at, p.notes, p.rejection_reason,
       p.verified_by, s.name, s.student_number
FROM payments p
LEFT JOIN students s ON s.school_id = p.school_id AND s.id = p.student_id
`

const listPayments = `-- name: ListPayments :many
` + selectPaymentRows + `WHERE p.school_id = ?1 AND (?2 = '' OR p.status = ?2)
ORDER BY p.paid_at DESC, p.id
LIMIT ?3
`

// ListPayments lists the school's payments newest first. An empty status
// matches every payment; a non-positive limit means no limit.
func (q *Queries) ListPayments(ctx context.Context, schoolID, status string, limit int64) ([]PaymentRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.db.QueryContext(ctx, listPayments, schoolID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PaymentRow
	for rows.Next() {
		i, err := scanPaymentRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getPayment = `-- name: GetPayment :one
` + selectPaymentRows + `WHERE p.school_id = ? AND p.id = ?
`

func (q *Queries) GetPayment(ctx context.Context, schoolID, id string) (PaymentRow, error) {
	return scanPaymentRow(q.db.QueryRowContext(ctx, getPayment, schoolID, id))
}

func scanPaymentRow(s scanner) (PaymentRow, error) {
	var i PaymentRow
	err := s.Scan(&i.ID, &i.SchoolID, &i.FeeID, &i.StudentID, &i.InvoiceID, &i.AmountCents, &i.Method, &i.BankName,
		&i.Reference, &i.ProofURL, &i.ReceivedBy, &i.Status, &i.PaidBy, &i.PaidAt, &i.Notes, &i.RejectionReason,
		&i.VerifiedBy, &i.StudentName, &i.StudentNumber)
	return i, err
}

const updatePaymentStatus = `-- name: UpdatePaymentStatus :execrows
UPDATE payments
SET status = ?, rejection_reason = ?, verified_by = ?
WHERE school_id = ? AND id = ? AND status = 'PendingVerification'
`

// UpdatePaymentStatus only touches payments still pending verification.
func (q *Queries) UpdatePaymentStatus(ctx context.Context, p Payment) (int64, error) {
	res, err := q.db.ExecContext(ctx, updatePaymentStatus, p.Status, p.RejectionReason, p.VerifiedBy, p.SchoolID, p.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const createProof = `-- name: CreateProof :exec
INSERT INTO proofs (id, school_id, filename, data) VALUES (?, ?, ?, ?)
`

func (q *Queries) CreateProof(ctx context.Context, id, schoolID, filename string, data []byte) error {
	_, err := q.db.ExecContext(ctx, createProof, id, schoolID, filename, data)
	return err
}
