package checkout

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"clubpay/pkg/platform/httputil"
	"clubpay/pkg/platform/validation"
	"clubpay/pkg/requestcontext"
)

// CheckoutService is what the HTTP layer needs from Service.
type CheckoutService interface {
	CreateDonationCheckout(ctx context.Context, req *DonationCheckoutRequest) (*CheckoutResponse, error)
	CreateSubscriptionCheckout(ctx context.Context, req *SubscriptionCheckoutRequest) (*CheckoutResponse, error)
}

type DonationCheckoutRequest struct {
	Amount   int64  `json:"amount" validate:"gt=0"`
	Currency string `json:"currency" validate:"required,len=3,alpha"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"max=120"`
	Message  string `json:"message" validate:"max=1000"`
}

func (r *DonationCheckoutRequest) Normalize() {
	r.Currency = strings.ToLower(strings.TrimSpace(r.Currency))
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Name = strings.TrimSpace(r.Name)
	r.Message = strings.TrimSpace(r.Message)
}

func (r *DonationCheckoutRequest) Validate() error { return validation.Struct(r) }

type SubscriptionCheckoutRequest struct {
	PlanCode string `json:"plan_code" validate:"required,max=64"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"max=120"`
}

func (r *SubscriptionCheckoutRequest) Normalize() {
	r.PlanCode = strings.TrimSpace(r.PlanCode)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Name = strings.TrimSpace(r.Name)
}

func (r *SubscriptionCheckoutRequest) Validate() error { return validation.Struct(r) }

type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

type Handler struct {
	service CheckoutService
	logger  *slog.Logger
}

func NewHandler(service CheckoutService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/api/donations/checkout", h.handleDonation)
	r.Post("/api/subscriptions/checkout", h.handleSubscription)
}

func (h *Handler) handleDonation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[DonationCheckoutRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	resp, err := h.service.CreateDonationCheckout(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "donation checkout failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SubscriptionCheckoutRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	resp, err := h.service.CreateSubscriptionCheckout(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "subscription checkout failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}
