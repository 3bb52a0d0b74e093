package core

import "time"

// EventType names a payment lifecycle event.
type EventType string

const (
	EventPaymentRecorded EventType = "payment.recorded"
	EventPaymentVerified EventType = "payment.verified"
	EventPaymentRejected EventType = "payment.rejected"
)

// PaymentEvent is published after a successful payment mutation.
type PaymentEvent struct {
	Type       EventType     `json:"type"`
	PaymentID  string        `json:"paymentId"`
	FeeID      string        `json:"feeId,omitempty"`
	StudentID  string        `json:"studentId,omitempty"`
	SchoolID   string        `json:"schoolId"`
	Amount     Money         `json:"amount"`
	Method     PaymentMethod `json:"method,omitempty"`
	Status     PaymentStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Actor      string        `json:"actor"`
	OccurredAt time.Time     `json:"occurredAt"`
}

// RecordedEvent describes a payment that was just created.
func RecordedEvent(p Payment, actor Identity, at time.Time) PaymentEvent {
	return PaymentEvent{
		Type:       EventPaymentRecorded,
		PaymentID:  p.ID,
		FeeID:      p.FeeID,
		StudentID:  p.StudentID,
		SchoolID:   actor.SchoolID,
		Amount:     p.Amount,
		Method:     p.Method,
		Status:     p.Status,
		Actor:      actor.UserID,
		OccurredAt: at.UTC(),
	}
}

// ReviewedEvent describes a verification decision on a payment.
// The fee API answers verify and reject without a body, so only the id is known.
func ReviewedEvent(paymentID string, status PaymentStatus, reason string, actor Identity, at time.Time) PaymentEvent {
	t := EventPaymentVerified
	if status == PaymentRejected {
		t = EventPaymentRejected
	}
	return PaymentEvent{
		Type:       t,
		PaymentID:  paymentID,
		SchoolID:   actor.SchoolID,
		Status:     status,
		Reason:     reason,
		Actor:      actor.UserID,
		OccurredAt: at.UTC(),
	}
}
