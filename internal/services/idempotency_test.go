package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pledgepay/internal/domain/payment"
	apperrors "pledgepay/pkg/errors"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "pledge-42-attempt-1", false},
		{"single char", "k", false},
		{"max length", strings.Repeat("a", 255), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 256), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.wantErr {
				if !errors.Is(err, apperrors.ErrInvalidIdempotencyKey) {
					t.Fatalf("error = %v, want ErrInvalidIdempotencyKey", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheckReturnsUnexpiredMatch(t *testing.T) {
	now := time.Now()
	p := payment.New("pledge-1", nil, "payer@example.com", 50000, "CARD", "key-1", ExpiryFrom(now))
	g := NewIdempotencyGuard(stubPaymentLookup{byKey: map[string]*payment.Payment{"key-1": p}})
	g.now = func() time.Time { return now.Add(time.Hour) }

	got, err := g.Check(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.PaymentID != p.PaymentID {
		t.Fatalf("got %+v, want payment %s", got, p.PaymentID)
	}
}

func TestCheckIgnoresExpiredMatch(t *testing.T) {
	now := time.Now()
	p := payment.New("pledge-1", nil, "payer@example.com", 50000, "CARD", "key-1", ExpiryFrom(now))
	g := NewIdempotencyGuard(stubPaymentLookup{byKey: map[string]*payment.Payment{"key-1": p}})
	g.now = func() time.Time { return now.Add(IdempotencyWindow + time.Second) }

	got, err := g.Check(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expired key should be reusable, got %+v", got)
	}
}

func TestCheckUnknownKey(t *testing.T) {
	g := NewIdempotencyGuard(stubPaymentLookup{byKey: map[string]*payment.Payment{}})

	got, err := g.Check(context.Background(), "fresh-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("want nil for unknown key, got %+v", got)
	}
}
