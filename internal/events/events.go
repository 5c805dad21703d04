// Package events defines the domain event envelopes exchanged through the
// broker and the emitter that records them in the outbox.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Routing keys, one per event kind.
const (
	RoutingKeyContactMessage              = "contact.message"
	RoutingKeyDonationCompleted           = "donation.completed"
	RoutingKeySubscriptionPaymentComplete = "subscription.payment.completed"
	RoutingKeyAnnouncementPublished       = "announcement.published"
	RoutingKeyAdminBroadcast              = "admin.broadcast"
)

// RoutingKeys lists every key the application publishes.
var RoutingKeys = []string{
	RoutingKeyContactMessage,
	RoutingKeyDonationCompleted,
	RoutingKeySubscriptionPaymentComplete,
	RoutingKeyAnnouncementPublished,
	RoutingKeyAdminBroadcast,
}

// Event is an envelope that knows where it is routed and which aggregate it
// belongs to.
type Event interface {
	RoutingKey() string
	AggregateType() string
	AggregateID() string
}

type ContactMessageEvent struct {
	Name    string    `json:"name"`
	Email   string    `json:"email"`
	Subject string    `json:"subject"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

func (ContactMessageEvent) RoutingKey() string    { return RoutingKeyContactMessage }
func (ContactMessageEvent) AggregateType() string { return "contact" }
func (e ContactMessageEvent) AggregateID() string { return e.Email }

// DonationCompletedEvent carries the amount in minor units.
type DonationCompletedEvent struct {
	SessionID  string    `json:"session_id"`
	DonorEmail string    `json:"donor_email"`
	DonorName  string    `json:"donor_name"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Message    string    `json:"message"`
	PaidAt     time.Time `json:"paid_at"`
}

func (DonationCompletedEvent) RoutingKey() string    { return RoutingKeyDonationCompleted }
func (DonationCompletedEvent) AggregateType() string { return "donation" }
func (e DonationCompletedEvent) AggregateID() string { return e.SessionID }

// SubscriptionPaymentCompletedEvent carries the amount in minor units.
type SubscriptionPaymentCompletedEvent struct {
	SubscriptionID string    `json:"subscription_id"`
	InvoiceID      string    `json:"invoice_id"`
	SupporterEmail string    `json:"supporter_email"`
	SupporterName  string    `json:"supporter_name"`
	PlanCode       string    `json:"plan_code"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	PaidAt         time.Time `json:"paid_at"`
}

func (SubscriptionPaymentCompletedEvent) RoutingKey() string {
	return RoutingKeySubscriptionPaymentComplete
}
func (SubscriptionPaymentCompletedEvent) AggregateType() string { return "subscription" }
func (e SubscriptionPaymentCompletedEvent) AggregateID() string { return e.SubscriptionID }

type AnnouncementPublishedEvent struct {
	AnnouncementID string    `json:"announcement_id"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	URL            string    `json:"url"`
	PublishedAt    time.Time `json:"published_at"`
}

func (AnnouncementPublishedEvent) RoutingKey() string    { return RoutingKeyAnnouncementPublished }
func (AnnouncementPublishedEvent) AggregateType() string { return "announcement" }
func (e AnnouncementPublishedEvent) AggregateID() string { return e.AnnouncementID }

// AdminBroadcastEvent targets Recipients when set, otherwise the subscriber directory.
type AdminBroadcastEvent struct {
	BroadcastID string    `json:"broadcast_id"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Recipients  []string  `json:"recipients,omitempty"`
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

func (AdminBroadcastEvent) RoutingKey() string    { return RoutingKeyAdminBroadcast }
func (AdminBroadcastEvent) AggregateType() string { return "broadcast" }
func (e AdminBroadcastEvent) AggregateID() string { return e.BroadcastID }

// Decode unmarshals a broker payload into T.
func Decode[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}
