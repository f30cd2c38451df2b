package events

import "testing"

func TestRoutingKey(t *testing.T) {
	tests := []struct {
		eventType string
		want      string
	}{
		{EventPledgeCreated, "pledge.created"},
		{EventPaymentCompleted, "payment.completed"},
		{EventPaymentFailed, "payment.failed"},
		{"SOMETHING_ELSE", KeyUnrouted},
		{"", KeyUnrouted},
	}
	for _, tt := range tests {
		if got := RoutingKey(tt.eventType); got != tt.want {
			t.Errorf("RoutingKey(%q) = %q, want %q", tt.eventType, got, tt.want)
		}
	}
}
