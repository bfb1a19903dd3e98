package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/saccohub/settlement/internal/domain"
)

func TestRender(t *testing.T) {
	amount := decimal.NewFromInt(1000)
	tests := []struct {
		name string
		msg  domain.Notification
		want []string
	}{
		{"success", domain.Notification{Kind: domain.NotifyPaymentSucceeded, Amount: amount, Receipt: "ABC123"}, []string{"KES 1,000.00", "ABC123"}},
		{"cancelled", domain.Notification{Kind: domain.NotifyPaymentCancelled, Amount: amount}, []string{"cancelled", "try again"}},
		{"failed", domain.Notification{Kind: domain.NotifyPaymentFailed, Amount: amount, Reason: "insufficient balance", Reference: "LN-42"},
			[]string{"insufficient balance", "cash or bank transfer", "LN-42"}},
		{"suspense", domain.Notification{Kind: domain.NotifyOperatorSuspense, Amount: amount, Reference: "ABC123", Reason: "no destination"},
			[]string{"suspense", "ABC123", "no destination"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.msg, "KES")
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Fatalf("%q does not contain %q", got, w)
				}
			}
		})
	}

	if err := NewLogNotifier().Notify(context.Background(), domain.Notification{Kind: "BOGUS"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
