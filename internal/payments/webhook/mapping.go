package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"

	"clubpay/internal/payments/models"
	pstrings "clubpay/pkg/platform/strings"
)

// Metadata keys written on checkout sessions by the checkout package.
const (
	MetaDonorMessage = "message"
	MetaDonorName    = "name"
	MetaPlanCode     = "plan_code"
	MetaPriceID      = "price_id"
)

func decodeObject[T any](ev stripe.Event) (*T, error) {
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, fmt.Errorf("event %s has no data object", ev.ID)
	}
	v := new(T)
	if err := json.Unmarshal(ev.Data.Raw, v); err != nil {
		return nil, fmt.Errorf("decode %s object: %w", ev.Type, err)
	}
	return v, nil
}

// eventTime is the provider's creation time for ev, zero when absent.
func eventTime(ev stripe.Event) time.Time {
	if ev.Created <= 0 {
		return time.Time{}
	}
	return time.Unix(ev.Created, 0).UTC()
}

func sessionPayment(s *stripe.CheckoutSession) models.SessionPayment {
	p := models.SessionPayment{
		SessionID:   s.ID,
		AmountTotal: s.AmountTotal,
		Currency:    string(s.Currency),
		Paid: s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
			s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired,
		Metadata: s.Metadata,
		Donor: models.Donor{
			Email:   sessionEmail(s),
			Name:    sessionName(s),
			Message: s.Metadata[MetaDonorMessage],
		},
	}
	if s.PaymentIntent != nil {
		p.PaymentIntentID = s.PaymentIntent.ID
	}
	return p
}

func subscriptionCheckout(s *stripe.CheckoutSession) models.SubscriptionCheckout {
	c := models.SubscriptionCheckout{
		SessionID: s.ID,
		PriceID:   s.Metadata[MetaPriceID],
		PlanCode:  s.Metadata[MetaPlanCode],
		Supporter: models.Supporter{
			Email: sessionEmail(s),
			Name:  sessionName(s),
		},
	}
	if s.Subscription != nil {
		c.SubscriptionID = s.Subscription.ID
	}
	if s.Customer != nil {
		c.Supporter.CustomerID = s.Customer.ID
	}
	return c
}

func sessionEmail(s *stripe.CheckoutSession) string {
	var details string
	if s.CustomerDetails != nil {
		details = s.CustomerDetails.Email
	}
	return strings.ToLower(pstrings.FirstNonEmpty(details, s.CustomerEmail))
}

func sessionName(s *stripe.CheckoutSession) string {
	var details string
	if s.CustomerDetails != nil {
		details = s.CustomerDetails.Name
	}
	return pstrings.FirstNonEmpty(s.Metadata[MetaDonorName], details)
}

func invoicePayment(inv *stripe.Invoice, plans map[string]string) models.InvoicePayment {
	p := models.InvoicePayment{
		InvoiceID:  inv.ID,
		AmountPaid: inv.AmountPaid,
		Currency:   string(inv.Currency),
		Paid:       inv.Paid || inv.Status == stripe.InvoiceStatusPaid,
		Supporter: models.Supporter{
			Email: strings.ToLower(inv.CustomerEmail),
			Name:  inv.CustomerName,
		},
	}
	if inv.Subscription != nil {
		p.SubscriptionID = inv.Subscription.ID
	}
	if inv.PaymentIntent != nil {
		p.PaymentIntentID = inv.PaymentIntent.ID
	}
	if inv.Customer != nil {
		p.Supporter.CustomerID = inv.Customer.ID
	}
	switch {
	case inv.StatusTransitions != nil && inv.StatusTransitions.PaidAt > 0:
		p.PaidAt = time.Unix(inv.StatusTransitions.PaidAt, 0).UTC()
	case inv.Created > 0:
		p.PaidAt = time.Unix(inv.Created, 0).UTC()
	}
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line == nil || line.Price == nil {
				continue
			}
			p.PriceID = line.Price.ID
			p.PlanCode = pstrings.FirstNonEmpty(line.Price.Metadata[MetaPlanCode], plans[line.Price.ID])
			break
		}
	}
	return p
}

func subscriptionUpdate(sub *stripe.Subscription) models.SubscriptionUpdate {
	u := models.SubscriptionUpdate{
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
	}
	if sub.Customer != nil {
		u.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item != nil && item.Price != nil {
				u.PriceID = item.Price.ID
				break
			}
		}
	}
	if sub.CanceledAt > 0 {
		at := time.Unix(sub.CanceledAt, 0).UTC()
		u.CanceledAt = &at
	}
	return u
}
