package amqp

import (
	"encoding/json"
	"fmt"

	"feedesk/internal/core"
)

// BindingKey matches every payment event routing key.
const BindingKey = "payment.*"

// RoutingKey returns the topic routing key of an event.
func RoutingKey(e core.PaymentEvent) string {
	return string(e.Type)
}

// EventToJSON converts the event to JSON bytes
func EventToJSON(e core.PaymentEvent) ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event and rejects messages without a known type or payment id.
func EventFromJSON(data []byte) (core.PaymentEvent, error) {
	var e core.PaymentEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return core.PaymentEvent{}, err
	}
	switch e.Type {
	case core.EventPaymentRecorded, core.EventPaymentVerified, core.EventPaymentRejected:
	default:
		return core.PaymentEvent{}, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.PaymentID == "" {
		return core.PaymentEvent{}, fmt.Errorf("event %s without payment id", e.Type)
	}
	return e, nil
}
