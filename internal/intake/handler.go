package intake

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"clubpay/pkg/platform/httputil"
	"clubpay/pkg/platform/validation"
	"clubpay/pkg/requestcontext"
)

// IntakeService is what the HTTP layer needs from Service.
type IntakeService interface {
	SubmitContact(ctx context.Context, req *ContactRequest) error
	PublishAnnouncement(ctx context.Context, req *AnnouncementRequest) error
	Broadcast(ctx context.Context, req *BroadcastRequest) (*BroadcastResponse, error)
}

type ContactRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=5000"`
}

func (r *ContactRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Subject = strings.TrimSpace(r.Subject)
	r.Message = strings.TrimSpace(r.Message)
}

func (r *ContactRequest) Validate() error { return validation.Struct(r) }

type AnnouncementRequest struct {
	AnnouncementID string     `json:"announcement_id" validate:"required,max=64"`
	Title          string     `json:"title" validate:"required,max=200"`
	Summary        string     `json:"summary" validate:"max=2000"`
	URL            string     `json:"url" validate:"required,http_url"`
	PublishedAt    *time.Time `json:"published_at"`
}

func (r *AnnouncementRequest) Normalize() {
	r.AnnouncementID = strings.TrimSpace(r.AnnouncementID)
	r.Title = strings.TrimSpace(r.Title)
	r.Summary = strings.TrimSpace(r.Summary)
	r.URL = strings.TrimSpace(r.URL)
}

func (r *AnnouncementRequest) Validate() error { return validation.Struct(r) }

type BroadcastRequest struct {
	Subject    string   `json:"subject" validate:"required,max=200"`
	Body       string   `json:"body" validate:"required,max=20000"`
	Recipients []string `json:"recipients" validate:"max=5000"`
}

func (r *BroadcastRequest) Normalize() {
	r.Subject = strings.TrimSpace(r.Subject)
	r.Body = strings.TrimSpace(r.Body)
}

func (r *BroadcastRequest) Validate() error { return validation.Struct(r) }

type BroadcastResponse struct {
	BroadcastID string `json:"broadcast_id"`
	Recipients  int    `json:"recipients"`
}

type acceptedResponse struct {
	Status string `json:"status"`
}

type Handler struct {
	service IntakeService
	logger  *slog.Logger
}

func NewHandler(service IntakeService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the unauthenticated contact endpoint.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/api/contact", h.handleContact)
}

// RegisterAdmin mounts the admin endpoints; r must already require an admin token.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/announcements/published", h.handleAnnouncement)
	r.Post("/admin/broadcasts", h.handleBroadcast)
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ContactRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.SubmitContact(ctx, req); err != nil {
		h.logger.ErrorContext(ctx, "contact submission failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, acceptedResponse{Status: "queued"})
}

func (h *Handler) handleAnnouncement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[AnnouncementRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.PublishAnnouncement(ctx, req); err != nil {
		h.logger.ErrorContext(ctx, "announcement publish failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, acceptedResponse{Status: "queued"})
}

func (h *Handler) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BroadcastRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	resp, err := h.service.Broadcast(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "broadcast failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, resp)
}
