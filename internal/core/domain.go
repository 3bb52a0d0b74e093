package core

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

const (
	CategoryTuition     FeeCategory = "tuition"
	CategoryLibrary     FeeCategory = "library"
	CategorySports      FeeCategory = "sports"
	CategoryExamination FeeCategory = "examination"
	CategoryOther       FeeCategory = "other"
)

const (
	FeePending FeeStatus = "pending"
	FeePartial FeeStatus = "partial"
	FeePaid    FeeStatus = "paid"
	FeeOverdue FeeStatus = "overdue"
	FeeWaived  FeeStatus = "waived"
)

const (
	MethodBankDeposit PaymentMethod = "BankDeposit"
	MethodProofUpload PaymentMethod = "ProofUpload"
	MethodInPerson    PaymentMethod = "InPerson"
)

const (
	PaymentPendingVerification PaymentStatus = "PendingVerification"
	PaymentVerified            PaymentStatus = "Verified"
	PaymentRejected            PaymentStatus = "Rejected"
)

// DateLayout is the wire and form format of calendar dates.
const DateLayout = "2006-01-02"

type (
	FeeCategory   string
	FeeStatus     string
	PaymentMethod string
	PaymentStatus string

	Date struct {
		time.Time
	}

	StudentSummary struct {
		Name          string `json:"name"`
		StudentNumber string `json:"studentNumber"`
	}

	Fee struct {
		ID         string          `json:"id"`
		StudentID  string          `json:"studentId"`
		SchoolID   string          `json:"schoolId"`
		Amount     Money           `json:"amount"`
		Category   FeeCategory     `json:"category,omitempty"`
		Term       string          `json:"term"`
		Year       int             `json:"year"`
		DueDate    Date            `json:"dueDate"`
		Status     FeeStatus       `json:"status"`
		PaidAmount *Money          `json:"paidAmount,omitempty"`
		Balance    *Money          `json:"balance,omitempty"`
		Student    *StudentSummary `json:"student,omitempty"`
	}

	Payment struct {
		ID              string          `json:"id,omitempty"`
		StudentID       string          `json:"studentId"`
		SchoolID        string          `json:"schoolId"`
		InvoiceID       string          `json:"invoiceId,omitempty"`
		FeeID           string          `json:"feeId"`
		Amount          Money           `json:"amount"`
		Method          PaymentMethod   `json:"method"`
		BankName        string          `json:"bankName,omitempty"`
		Reference       string          `json:"reference,omitempty"`
		ProofURL        string          `json:"proofUrl,omitempty"`
		ReceivedBy      string          `json:"receivedBy,omitempty"`
		Status          PaymentStatus   `json:"status"`
		PaidBy          string          `json:"paidBy,omitempty"`
		PaidAt          *time.Time      `json:"paidAt,omitempty"`
		Notes           string          `json:"notes,omitempty"`
		RejectionReason string          `json:"rejectionReason,omitempty"`
		VerifiedBy      string          `json:"verifiedBy,omitempty"`
		Student         *StudentSummary `json:"student,omitempty"`
	}

	// FeeStats is computed by the fee API and displayed verbatim.
	FeeStats struct {
		TotalFees       Money `json:"totalFees"`
		PaidFees        Money `json:"paidFees"`
		OutstandingFees Money `json:"outstandingFees"`
		OverdueFees     Money `json:"overdueFees"`
	}

	Student struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		StudentNumber string `json:"studentNumber"`
		SchoolID      string `json:"schoolId,omitempty"`
	}
)

// Categories lists the fixed fee categories in display order.
var Categories = []FeeCategory{CategoryTuition, CategoryLibrary, CategorySports, CategoryExamination, CategoryOther}

// Methods lists the payment methods in display order.
var Methods = []PaymentMethod{MethodBankDeposit, MethodProofUpload, MethodInPerson}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD form value.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, ErrMissingDueDate
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, ErrInvalidDueDate
	}
	return Date{Time: t}, nil
}

// String returns the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format(DateLayout) + `"`), nil
}

// UnmarshalJSON accepts YYYY-MM-DD as well as full RFC 3339 timestamps.
func (d *Date) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{DateLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return nil
		}
	}
	return fmt.Errorf("decode date %q: unsupported layout", raw)
}

// ParseCategory maps a form value to a category. Empty input defaults to tuition.
func ParseCategory(s string) (FeeCategory, error) {
	c := FeeCategory(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return CategoryTuition, nil
	}
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", ErrInvalidCategory
}

// Normalized returns the category used for aggregation: missing means tuition,
// anything outside the fixed set is counted as other.
func (c FeeCategory) Normalized() FeeCategory {
	if c == "" {
		return CategoryTuition
	}
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return CategoryOther
}

func (c FeeCategory) Label() string {
	switch c.Normalized() {
	case CategoryTuition:
		return "Tuition"
	case CategoryLibrary:
		return "Library"
	case CategorySports:
		return "Sports"
	case CategoryExamination:
		return "Examination"
	default:
		return "Other"
	}
}

// Label is the text of the status badge. A fee without a status has nothing
// paid against it yet and reads as pending.
func (s FeeStatus) Label() string {
	switch s {
	case FeePending, "":
		return "Pending"
	case FeePartial:
		return "Partial"
	case FeePaid:
		return "Paid"
	case FeeOverdue:
		return "Overdue"
	case FeeWaived:
		return "Waived"
	default:
		return "Unknown"
	}
}

// ParsePaymentMethod validates a method form value.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.TrimSpace(s))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", ErrInvalidMethod
}

func (m PaymentMethod) Label() string {
	switch m {
	case MethodBankDeposit:
		return "Bank deposit"
	case MethodProofUpload:
		return "Upload proof"
	case MethodInPerson:
		return "In person"
	default:
		return string(m)
	}
}

func (s PaymentStatus) Label() string {
	switch s {
	case PaymentPendingVerification:
		return "Pending"
	case PaymentVerified:
		return "Verified"
	case PaymentRejected:
		return "Rejected"
	default:
		return string(s)
	}
}

// IsTerminal reports whether no further transition exists from s.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentVerified || s == PaymentRejected
}

// CanTransitionTo enforces PendingVerification -> {Verified, Rejected}.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentPendingVerification && next.IsTerminal()
}

// DisplayBalance is the balance shown for the fee: the API value when present,
// otherwise amount minus paid amount.
func (f Fee) DisplayBalance() Money {
	if f.Balance != nil {
		return *f.Balance
	}
	return f.Amount.Sub(f.Paid())
}

// Paid returns the paid amount, treating an absent value as zero.
func (f Fee) Paid() Money {
	if f.PaidAmount == nil {
		return Money{}
	}
	return *f.PaidAmount
}

// PaymentLabel summarizes how much of the fee has been paid.
func (f Fee) PaymentLabel() string {
	paid := f.Paid()
	switch {
	case paid.Cents <= 0:
		return "Not paid"
	case paid.Cents >= f.Amount.Cents:
		return "Fully paid"
	default:
		return "Partially paid"
	}
}

// StudentName returns the embedded student name, or the student id when absent.
func (f Fee) StudentName() string {
	if f.Student != nil && f.Student.Name != "" {
		return f.Student.Name
	}
	return f.StudentID
}

// IsPayable reports whether a payment can still be recorded against the fee.
func (f Fee) IsPayable() bool {
	return f.Status != FeePaid && f.Status != FeeWaived && f.DisplayBalance().Cents > 0
}

// IsPending reports whether the payment still awaits verification.
func (p Payment) IsPending() bool {
	return p.Status == PaymentPendingVerification
}

// FeeDraft is the body of a create-fee request.
type FeeDraft struct {
	StudentID string      `json:"studentId"`
	SchoolID  string      `json:"schoolId"`
	Amount    Money       `json:"amount"`
	Category  FeeCategory `json:"category"`
	Term      string      `json:"term"`
	Year      int         `json:"year"`
	DueDate   Date        `json:"dueDate"`
}

// FeeUpdate is the body of an update-fee request. Only the term is required;
// absent fields keep their stored value.
type FeeUpdate struct {
	Amount  *Money `json:"amount,omitempty"`
	Term    string `json:"term"`
	Year    int    `json:"year,omitempty"`
	DueDate *Date  `json:"dueDate,omitempty"`
}
