package feeapi

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"feedesk/internal/core"
	"feedesk/internal/identity"
)

// The helpers below are the fee API's own server-side rules. The bundled
// standalone backends (memory, sqlite) apply them so that they behave like
// the real API instead of trusting what the UI sends.

// Actor returns the identity acting on ctx. Calls without a school-scoped
// identity are refused.
func Actor(ctx context.Context) (core.Identity, error) {
	id, ok := identity.FromContext(ctx)
	if !ok || id.SchoolID == "" {
		return core.Identity{}, fmt.Errorf("%w: no school-scoped identity", core.ErrForbidden)
	}
	return id, nil
}

// PrepareFee validates a create request and returns the fee to store.
func PrepareFee(d core.FeeDraft, actor core.Identity) (core.Fee, error) {
	if !actor.Role.CanManageFees() {
		return core.Fee{}, fmt.Errorf("%w: manage fees", core.ErrForbidden)
	}
	if d.SchoolID != "" && d.SchoolID != actor.SchoolID {
		return core.Fee{}, fmt.Errorf("%w: fee belongs to another school", core.ErrForbidden)
	}
	if strings.TrimSpace(d.StudentID) == "" {
		return core.Fee{}, core.ErrMissingStudent
	}
	cat, err := core.ParseCategory(string(d.Category))
	if err != nil {
		return core.Fee{}, err
	}
	f := core.Fee{
		StudentID: strings.TrimSpace(d.StudentID),
		SchoolID:  actor.SchoolID,
		Category:  cat,
		Status:    core.FeePending,
	}
	return applyTerms(f, d.Amount, d.Term, d.Year, d.DueDate)
}

// ApplyUpdate validates an update request against the stored fee.
func ApplyUpdate(f core.Fee, u core.FeeUpdate, actor core.Identity) (core.Fee, error) {
	if !actor.Role.CanManageFees() {
		return core.Fee{}, fmt.Errorf("%w: manage fees", core.ErrForbidden)
	}
	amount, year, due := f.Amount, f.Year, f.DueDate
	if u.Amount != nil {
		amount = *u.Amount
	}
	if u.Year != 0 {
		year = u.Year
	}
	if u.DueDate != nil {
		due = *u.DueDate
	}
	return applyTerms(f, amount, u.Term, year, due)
}

func applyTerms(f core.Fee, amount core.Money, term string, year int, due core.Date) (core.Fee, error) {
	if err := amount.Validate(); err != nil {
		return core.Fee{}, err
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return core.Fee{}, core.ErrMissingTerm
	}
	if due.IsZero() {
		return core.Fee{}, core.ErrMissingDueDate
	}
	if year == 0 {
		year = due.Year()
	}
	if year < 1900 || year > 9999 {
		return core.Fee{}, core.ErrInvalidYear
	}
	f.Amount = amount
	f.Term = term
	f.Year = year
	f.DueDate = due
	return f, nil
}

// PreparePayment validates a submitted payment against its fee and the actor
// and fills the fields the API owns. A submitted Verified status is accepted
// only for an in-person payment recorded by an administrator.
func PreparePayment(p core.Payment, fee core.Fee, actor core.Identity, now time.Time) (core.Payment, error) {
	if !actor.Role.CanRecordPayments() {
		return core.Payment{}, fmt.Errorf("%w: record payments", core.ErrForbidden)
	}
	if err := p.Amount.Validate(); err != nil {
		return core.Payment{}, err
	}
	if _, err := core.ParsePaymentMethod(string(p.Method)); err != nil {
		return core.Payment{}, err
	}
	switch p.Method {
	case core.MethodBankDeposit:
		if strings.TrimSpace(p.BankName) == "" || strings.TrimSpace(p.Reference) == "" {
			return core.Payment{}, core.ErrMissingBankDetails
		}
	case core.MethodProofUpload:
		if strings.TrimSpace(p.ProofURL) == "" {
			return core.Payment{}, core.ErrMissingProof
		}
	case core.MethodInPerson:
		if !actor.Role.CanRecordInPerson() {
			return core.Payment{}, core.ErrInPersonNotAllowed
		}
	}

	want := core.InitialPaymentStatus(p.Method, actor.Role)
	switch p.Status {
	case "", want:
	case core.PaymentVerified:
		return core.Payment{}, fmt.Errorf("%w: payment cannot be created as verified", core.ErrForbidden)
	default:
		return core.Payment{}, core.ErrInvalidTransition
	}

	p.Status = want
	p.FeeID = fee.ID
	p.StudentID = fee.StudentID
	p.SchoolID = fee.SchoolID
	if p.PaidBy == "" {
		p.PaidBy = actor.UserID
	}
	if p.PaidAt == nil {
		at := now.UTC()
		p.PaidAt = &at
	}
	if p.Method == core.MethodInPerson && p.ReceivedBy == "" {
		p.ReceivedBy = actor.Name
	}
	if p.Status == core.PaymentVerified {
		p.VerifiedBy = actor.UserID
	}
	return p, nil
}

// Transition moves a pending payment to next on behalf of actor.
func Transition(p core.Payment, next core.PaymentStatus, reason string, actor core.Identity) (core.Payment, error) {
	if !actor.Role.CanVerifyPayments() {
		return core.Payment{}, fmt.Errorf("%w: verify payments", core.ErrForbidden)
	}
	if !p.Status.CanTransitionTo(next) {
		return core.Payment{}, core.ErrInvalidTransition
	}
	if next == core.PaymentRejected {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return core.Payment{}, core.ErrEmptyReason
		}
		p.RejectionReason = reason
	}
	p.Status = next
	p.VerifiedBy = actor.UserID
	return p, nil
}

// VerifiedTotal sums the verified payments of each fee.
func VerifiedTotal(payments []core.Payment) map[string]core.Money {
	out := make(map[string]core.Money)
	for _, p := range payments {
		if p.Status == core.PaymentVerified {
			out[p.FeeID] = out[p.FeeID].Add(p.Amount)
		}
	}
	return out
}

// SortRecent orders payments newest first.
func SortRecent(payments []core.Payment) {
	sort.SliceStable(payments, func(i, j int) bool {
		a, b := payments[i].PaidAt, payments[j].PaidAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
