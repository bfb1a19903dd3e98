package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/saccohub/settlement/internal/currency"
	"github.com/saccohub/settlement/internal/domain"
)

// LogNotifier writes notifications to the process log. It stands in for an
// SMS gateway, which this service does not own.
type LogNotifier struct {
	currency string
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{currency: currency.Default}
}

func (n *LogNotifier) Notify(_ context.Context, msg domain.Notification) error {
	text, err := Render(msg, n.currency)
	if err != nil {
		return err
	}
	if msg.Kind == domain.NotifyOperatorSuspense {
		log.Printf("[notify] operator alert: %s", text)
		return nil
	}
	log.Printf("[notify] to=%s: %s", msg.PhoneNumber, text)
	return nil
}

// Render produces the message text for a notification.
func Render(msg domain.Notification, cur string) (string, error) {
	amount := currency.Format(msg.Amount, cur)
	switch msg.Kind {
	case domain.NotifyPaymentSucceeded:
		if msg.Receipt != "" {
			return fmt.Sprintf("Payment of %s received. Receipt %s. Thank you.", amount, msg.Receipt), nil
		}
		return fmt.Sprintf("Payment of %s received. Thank you.", amount), nil
	case domain.NotifyPaymentCancelled:
		return fmt.Sprintf("Your payment of %s was cancelled. Please try again.", amount), nil
	case domain.NotifyPaymentFailed:
		return fmt.Sprintf("Your payment of %s failed: %s. You can also pay by cash or bank transfer at any branch quoting reference %s.",
			amount, msg.Reason, msg.Reference), nil
	case domain.NotifyDisbursementSent:
		return fmt.Sprintf("%s has been sent to your phone. Receipt %s.", amount, msg.Receipt), nil
	case domain.NotifyDisbursementFailed:
		return fmt.Sprintf("We could not send %s to your phone: %s. Your balance has not been charged.", amount, msg.Reason), nil
	case domain.NotifyOperatorSuspense:
		return fmt.Sprintf("%s from %s parked in suspense (ref %s): %s", amount, msg.PhoneNumber, msg.Reference, msg.Reason), nil
	default:
		return "", fmt.Errorf("unknown notification kind %q", msg.Kind)
	}
}
