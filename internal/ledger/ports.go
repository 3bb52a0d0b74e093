// Package ledger records payment events as rows of an append-only ledger,
// kept for the bursar's office outside of the fee API.
package ledger

import (
	"context"
	"time"

	"feedesk/internal/core"
)

// Ports for outbound adapters.
type (
	Appender interface {
		Append(ctx context.Context, e core.PaymentEvent) (rowRef string, err error)
	}
)

// Header is the first row of a ledger sheet.
var Header = []string{"Occurred at", "Event", "Payment", "Fee", "Student", "School", "Amount", "Method", "Status", "Actor", "Reason"}

// Row renders e in Header order.
func Row(e core.PaymentEvent) []any {
	return []any{
		e.OccurredAt.UTC().Format(time.RFC3339),
		string(e.Type),
		e.PaymentID,
		e.FeeID,
		e.StudentID,
		e.SchoolID,
		e.Amount.InputValue(),
		string(e.Method),
		string(e.Status),
		e.Actor,
		e.Reason,
	}
}
