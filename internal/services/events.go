package services

import (
	"context"
	"log/slog"

	"feedesk/internal/core"
	"feedesk/internal/identity"
)

// EventPublisher announces payment mutations. *amqp.Client implements it.
type EventPublisher interface {
	PublishPaymentEvent(ctx context.Context, e core.PaymentEvent) error
}

// publish is best effort: the mutation already succeeded at the fee API, so a
// publishing failure is logged and never surfaced to the user.
func publish(ctx context.Context, p EventPublisher, e core.PaymentEvent) {
	if p == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping payment event", "type", e.Type)
		return
	}
	if err := p.PublishPaymentEvent(ctx, e); err != nil {
		slog.ErrorContext(ctx, "Failed to publish payment event",
			"type", e.Type,
			"payment_id", e.PaymentID,
			"error", err)
	}
}

// actor returns the signed-in identity, refusing anonymous calls.
func actor(ctx context.Context) (core.Identity, error) {
	id, ok := identity.FromContext(ctx)
	if !ok {
		return core.Identity{}, core.ErrForbidden
	}
	return id, nil
}
