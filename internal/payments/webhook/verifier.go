package webhook

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

// ErrInvalidSignature means the callback could not be authenticated. Nothing
// about the request may be trusted or stored.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Verifier authenticates callbacks for one flow's signing secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

// Verify checks header against the exact payload bytes and returns the parsed
// event. The account's webhook API version may differ from the library's
// pinned version; only the fields we read matter.
func (v *Verifier) Verify(payload []byte, header string) (stripe.Event, error) {
	if v.secret == "" {
		return stripe.Event{}, fmt.Errorf("%w: signing secret not configured", ErrInvalidSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return ev, nil
}
