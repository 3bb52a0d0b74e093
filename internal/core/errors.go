package core

import (
	"errors"
	"fmt"
)

// ErrInvalid is wrapped by every client-side validation failure.
var ErrInvalid = errors.New("invalid input")

// ErrForbidden is returned when the acting identity lacks the permission for an action.
var ErrForbidden = errors.New("not allowed")

// ErrNotFound is returned by backends when a fee or payment does not exist in the caller's school.
var ErrNotFound = errors.New("not found")

var (
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be greater than zero", ErrInvalid)
	ErrMissingStudent     = fmt.Errorf("%w: student is required", ErrInvalid)
	ErrMissingAmount      = fmt.Errorf("%w: amount is required", ErrInvalid)
	ErrMissingTerm        = fmt.Errorf("%w: term is required", ErrInvalid)
	ErrMissingDueDate     = fmt.Errorf("%w: due date is required", ErrInvalid)
	ErrInvalidDueDate     = fmt.Errorf("%w: due date must be YYYY-MM-DD", ErrInvalid)
	ErrInvalidYear        = fmt.Errorf("%w: year is not valid", ErrInvalid)
	ErrInvalidCategory    = fmt.Errorf("%w: unknown fee category", ErrInvalid)
	ErrInvalidMethod      = fmt.Errorf("%w: unknown payment method", ErrInvalid)
	ErrMissingBankDetails = fmt.Errorf("%w: bank name and reference are required for bank deposits", ErrInvalid)
	ErrMissingProof       = fmt.Errorf("%w: upload a proof of payment first", ErrInvalid)
	ErrInPersonNotAllowed = fmt.Errorf("%w: only administrators can record in-person payments", ErrForbidden)
	ErrEmptyReason        = fmt.Errorf("%w: a rejection reason is required", ErrInvalid)
	ErrInvalidFilter      = fmt.Errorf("%w: unknown payment status filter", ErrInvalid)
	ErrInvalidTransition  = fmt.Errorf("%w: payment is no longer pending verification", ErrInvalid)
)

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalid)
}
