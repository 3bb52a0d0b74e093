package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"feedesk/internal/core"
	"feedesk/internal/feeapi"
)

// VerificationBackend is what the verification screen needs from the fee API.
type VerificationBackend interface {
	feeapi.PaymentReader
	feeapi.PaymentVerifier
}

// StatusFilter selects the payments shown on the verification screen.
// FilterAll lists every payment.
type StatusFilter string

const FilterAll StatusFilter = "all"

// Filters lists the filter tabs in display order.
var Filters = []StatusFilter{
	StatusFilter(core.PaymentPendingVerification),
	StatusFilter(core.PaymentVerified),
	StatusFilter(core.PaymentRejected),
	FilterAll,
}

// ParseFilter maps a query value to a filter. Empty input selects pending payments.
func ParseFilter(s string) (StatusFilter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StatusFilter(core.PaymentPendingVerification), nil
	}
	for _, f := range Filters {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	return "", core.ErrInvalidFilter
}

// Status returns the status the filter selects, or "" for all payments.
func (f StatusFilter) Status() core.PaymentStatus {
	if f == FilterAll {
		return ""
	}
	return core.PaymentStatus(f)
}

func (f StatusFilter) Label() string {
	if f == FilterAll {
		return "All"
	}
	return core.PaymentStatus(f).Label()
}

// RejectInput is the reason-capture dialog as submitted.
type RejectInput struct {
	Reason string `validate:"required"`
}

type PaymentVerification struct {
	api    VerificationBackend
	events EventPublisher
	now    func() time.Time
}

func NewPaymentVerification(api VerificationBackend, events EventPublisher) *PaymentVerification {
	return &PaymentVerification{api: api, events: events, now: time.Now}
}

func authorizeVerifier(ctx context.Context) (core.Identity, error) {
	id, err := actor(ctx)
	if err != nil {
		return core.Identity{}, err
	}
	if !id.Role.CanVerifyPayments() {
		return core.Identity{}, fmt.Errorf("%w: verify payments", core.ErrForbidden)
	}
	return id, nil
}

// List returns the payments matching filter.
func (s *PaymentVerification) List(ctx context.Context, filter StatusFilter) ([]core.Payment, error) {
	if _, err := authorizeVerifier(ctx); err != nil {
		return nil, err
	}
	payments, err := s.api.ListPayments(ctx, filter.Status())
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	return payments, nil
}

// PendingCount returns the number of payments awaiting verification.
func (s *PaymentVerification) PendingCount(ctx context.Context) (int, error) {
	payments, err := s.List(ctx, StatusFilter(core.PaymentPendingVerification))
	if err != nil {
		return 0, err
	}
	return len(payments), nil
}

func (s *PaymentVerification) Verify(ctx context.Context, paymentID string) error {
	id, err := authorizeVerifier(ctx)
	if err != nil {
		return err
	}
	if err := s.api.VerifyPayment(ctx, paymentID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Payment verified", "payment_id", paymentID, "by", id.UserID)
	publish(ctx, s.events, core.ReviewedEvent(paymentID, core.PaymentVerified, "", id, s.now()))
	return nil
}

// Reject requires a reason that is not blank once trimmed.
func (s *PaymentVerification) Reject(ctx context.Context, paymentID string, in RejectInput) error {
	id, err := authorizeVerifier(ctx)
	if err != nil {
		return err
	}
	in.Reason = strings.TrimSpace(in.Reason)
	if err := validateStruct(in); err != nil {
		return err
	}
	if err := s.api.RejectPayment(ctx, paymentID, in.Reason); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Payment rejected", "payment_id", paymentID, "by", id.UserID)
	publish(ctx, s.events, core.ReviewedEvent(paymentID, core.PaymentRejected, in.Reason, id, s.now()))
	return nil
}
