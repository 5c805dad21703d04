package models

import (
	"strings"
	"time"

	dErrors "clubpay/pkg/domain-errors"
)

// Donation is a one-time payment keyed by its checkout session.
//
// Invariants:
//   - SessionID is non-empty and unique
//   - Status transitions: CREATED -> PAID only
//   - PAID is terminal; re-applying payment is a no-op
//   - amounts are minor currency units
type Donation struct {
	SessionID       string         `json:"session_id"`
	PaymentIntentID string         `json:"payment_intent_id,omitempty"`
	Status          DonationStatus `json:"status"`
	IntendedAmount  int64          `json:"intended_amount"`
	FinalAmount     int64          `json:"final_amount"`
	Currency        string         `json:"currency"`
	DonorEmail      string         `json:"donor_email,omitempty"`
	DonorName       string         `json:"donor_name,omitempty"`
	DonorMessage    string         `json:"donor_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	PaidAt          *time.Time     `json:"paid_at,omitempty"`
}

// Donor holds the contact details captured at checkout.
type Donor struct {
	Email   string
	Name    string
	Message string
}

// SessionPayment is the provider's view of a completed one-time checkout.
type SessionPayment struct {
	SessionID       string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	Paid            bool
	Donor           Donor
	Metadata        map[string]string
}

func NewDonation(sessionID string, intendedAmount int64, currency string, donor Donor, now time.Time) (*Donation, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "donation session id cannot be empty")
	}
	if intendedAmount < 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "donation amount cannot be negative")
	}
	return &Donation{
		SessionID:      sessionID,
		Status:         DonationStatusCreated,
		IntendedAmount: intendedAmount,
		Currency:       NormalizeCurrency(currency),
		DonorEmail:     strings.TrimSpace(donor.Email),
		DonorName:      strings.TrimSpace(donor.Name),
		DonorMessage:   strings.TrimSpace(donor.Message),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (d *Donation) IsPaid() bool {
	return d.Status == DonationStatusPaid
}

// ApplyPayment copies the final session fields and marks the donation paid.
// It returns false when the donation was already paid.
func (d *Donation) ApplyPayment(p SessionPayment, now time.Time) bool {
	if d.IsPaid() {
		return false
	}
	if p.PaymentIntentID != "" {
		d.PaymentIntentID = p.PaymentIntentID
	}
	d.FinalAmount = p.AmountTotal
	if p.Currency != "" {
		d.Currency = NormalizeCurrency(p.Currency)
	}
	if p.Donor.Email != "" {
		d.DonorEmail = strings.TrimSpace(p.Donor.Email)
	}
	if p.Donor.Name != "" {
		d.DonorName = strings.TrimSpace(p.Donor.Name)
	}
	if p.Donor.Message != "" && d.DonorMessage == "" {
		d.DonorMessage = strings.TrimSpace(p.Donor.Message)
	}
	d.Status = DonationStatusPaid
	paidAt := now
	d.PaidAt = &paidAt
	d.UpdatedAt = now
	return true
}

// NormalizeCurrency lowercases an ISO currency code as the provider reports it.
func NormalizeCurrency(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
