package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	dErrors "clubpay/pkg/domain-errors"
	"clubpay/pkg/platform/httputil"
	"clubpay/pkg/requestcontext"
)

// MaxPayloadBytes is the largest callback body the provider sends.
const MaxPayloadBytes = 65536

// SignatureHeader carries the provider's HMAC signature.
const SignatureHeader = "Stripe-Signature"

// Service is what the HTTP layer needs from the processor.
type Service interface {
	Process(ctx context.Context, flow Flow, payload []byte, signature string) (Result, error)
	Replay(ctx context.Context, eventID string) (Result, error)
	ListFailed(ctx context.Context, limit int) ([]*Record, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// AckResponse tells the provider the callback was received. Status is
// "ignored" when nothing was applied, so it should not be retried either way.
type AckResponse struct {
	Received bool   `json:"received"`
	Status   string `json:"status,omitempty"`
}

type FailedEventsResponse struct {
	Events []*Record `json:"events"`
}

type ReplayResponse struct {
	EventID string `json:"event_id"`
	Result  Result `json:"result"`
}

// Register mounts the provider-facing endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/webhooks/stripe/donations", h.handleWebhook(FlowDonations))
	r.Post("/webhooks/stripe/subscriptions", h.handleWebhook(FlowSubscriptions))
}

// RegisterAdmin mounts the dead-letter endpoints. r must already enforce
// admin authentication.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/webhooks/failed", h.handleListFailed)
	r.Post("/admin/webhooks/{eventID}/replay", h.handleReplay)
}

func (h *Handler) handleWebhook(flow Flow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := requestcontext.RequestID(ctx)

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
		if err != nil {
			h.logger.WarnContext(ctx, "unreadable webhook body",
				"flow", flow,
				"error", err,
				"request_id", requestID,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable request body"))
			return
		}

		result, err := h.service.Process(ctx, flow, payload, r.Header.Get(SignatureHeader))
		if err != nil {
			if errors.Is(err, ErrInvalidSignature) {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid signature"))
				return
			}
			// Process reports only signature errors; anything else is a bug
			// we still must not turn into provider retries.
			h.logger.ErrorContext(ctx, "unexpected webhook processing error",
				"flow", flow,
				"error", err,
				"request_id", requestID,
			)
			httputil.WriteJSON(w, http.StatusOK, AckResponse{Received: true, Status: string(ResultIgnored)})
			return
		}

		resp := AckResponse{Received: true}
		if result != ResultProcessed {
			resp.Status = string(ResultIgnored)
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) handleListFailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and 1000"))
			return
		}
		limit = n
	}
	recs, err := h.service.ListFailed(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list webhook events",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	if recs == nil {
		recs = []*Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, FailedEventsResponse{Events: recs})
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID := chi.URLParam(r, "eventID")
	result, err := h.service.Replay(ctx, eventID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "webhook replay failed",
				"event_id", eventID,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ReplayResponse{EventID: eventID, Result: result})
}
