package events

// KeyUnrouted is the catch-all routing key for event types the relay does
// not recognize. It should not occur in practice; a binding on it makes
// misrouted events observable instead of lost.
const KeyUnrouted = "settlement.unrouted"

// RoutingKey derives the broker routing key for an outbox event type.
// Pure function of the type tag.
func RoutingKey(eventType string) string {
	switch eventType {
	case EventPledgeCreated:
		return "pledge.created"
	case EventPaymentCompleted:
		return "payment.completed"
	case EventPaymentFailed:
		return "payment.failed"
	default:
		return KeyUnrouted
	}
}
