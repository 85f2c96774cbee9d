package payment

import (
	"context"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/skyfare/skyfare/internal/money"
)

// Compile-time check that StripeVerifier implements CardVerifier.
var _ CardVerifier = (*StripeVerifier)(nil)

// StripeVerifier verifies CARD payments against Stripe: the referenced
// PaymentIntent must have succeeded, in the right currency, for at least the
// amount being applied.
type StripeVerifier struct {
	api *client.API
}

// NewStripeVerifier creates a verifier with the given secret key.
func NewStripeVerifier(apiKey string) *StripeVerifier {
	return &StripeVerifier{api: client.New(apiKey, nil)}
}

// Verify implements CardVerifier.
func (v *StripeVerifier) Verify(ctx context.Context, transactionID, amount, currency string) error {
	if transactionID == "" {
		return fmt.Errorf("card payment requires a transaction id")
	}

	pi, err := v.api.PaymentIntents.Get(transactionID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return fmt.Errorf("fetch payment intent %s: %w", transactionID, err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return fmt.Errorf("payment intent %s is %s, not succeeded", transactionID, pi.Status)
	}
	if !strings.EqualFold(string(pi.Currency), currency) {
		return fmt.Errorf("payment intent %s currency %s does not match %s",
			transactionID, pi.Currency, currency)
	}

	// Stripe amounts are integer cents, same scale as our fixed-point.
	cents, err := money.Parse(amount)
	if err != nil {
		return err
	}
	if pi.Amount < cents.Int64() {
		return fmt.Errorf("payment intent %s amount %d does not cover %s",
			transactionID, pi.Amount, amount)
	}
	return nil
}
