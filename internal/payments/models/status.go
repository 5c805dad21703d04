package models

import "strings"

// DonationStatus is the lifecycle of a one-time donation.
type DonationStatus string

const (
	DonationStatusCreated DonationStatus = "CREATED"
	DonationStatusPaid    DonationStatus = "PAID"
)

func (s DonationStatus) IsValid() bool {
	return s == DonationStatusCreated || s == DonationStatusPaid
}

func (s DonationStatus) String() string { return string(s) }

// SubscriptionStatus is the lifecycle of a recurring subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusCreated    SubscriptionStatus = "CREATED"
	SubscriptionStatusActive     SubscriptionStatus = "ACTIVE"
	SubscriptionStatusIncomplete SubscriptionStatus = "INCOMPLETE"
	SubscriptionStatusPastDue    SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusUnpaid     SubscriptionStatus = "UNPAID"
	SubscriptionStatusCanceled   SubscriptionStatus = "CANCELED"
)

var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusCreated:    {SubscriptionStatusActive, SubscriptionStatusIncomplete, SubscriptionStatusCanceled},
	SubscriptionStatusIncomplete: {SubscriptionStatusActive, SubscriptionStatusCanceled},
	SubscriptionStatusActive:     {SubscriptionStatusPastDue, SubscriptionStatusUnpaid, SubscriptionStatusCanceled},
	SubscriptionStatusPastDue:    {SubscriptionStatusActive, SubscriptionStatusUnpaid, SubscriptionStatusCanceled},
	SubscriptionStatusUnpaid:     {SubscriptionStatusActive, SubscriptionStatusCanceled},
	SubscriptionStatusCanceled:   nil,
}

func (s SubscriptionStatus) IsValid() bool {
	_, ok := subscriptionTransitions[s]
	return ok
}

func (s SubscriptionStatus) String() string { return string(s) }

// IsTerminal reports whether no further transitions are possible.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled
}

// CanTransitionTo reports whether s may move to next. Staying in place is not
// a transition.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	for _, allowed := range subscriptionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SubscriptionStatusFromProvider maps a provider subscription status onto the
// local lifecycle. ok is false for statuses with no local counterpart.
func SubscriptionStatusFromProvider(status string) (SubscriptionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing":
		return SubscriptionStatusActive, true
	case "past_due":
		return SubscriptionStatusPastDue, true
	case "unpaid":
		return SubscriptionStatusUnpaid, true
	case "incomplete":
		return SubscriptionStatusIncomplete, true
	case "incomplete_expired", "canceled":
		return SubscriptionStatusCanceled, true
	default:
		return "", false
	}
}
