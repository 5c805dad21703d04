// Package intake accepts the non-payment events the website produces: contact
// form messages, published announcements and admin broadcasts. Each request
// becomes one outbox entry; delivery happens in the notification consumers.
package intake

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"clubpay/internal/events"
	dErrors "clubpay/pkg/domain-errors"
	"clubpay/pkg/email"
	"clubpay/pkg/requestcontext"
)

// Emitter records an event in the outbox.
type Emitter interface {
	Emit(ctx context.Context, ev events.Event) error
}

type Service struct {
	emitter Emitter
	logger  *slog.Logger
}

func NewService(emitter Emitter, logger *slog.Logger) *Service {
	return &Service{emitter: emitter, logger: logger}
}

func (s *Service) SubmitContact(ctx context.Context, req *ContactRequest) error {
	ev := events.ContactMessageEvent{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
		SentAt:  requestcontext.Now(ctx),
	}
	if err := s.emitter.Emit(ctx, ev); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to queue contact message")
	}
	s.logger.InfoContext(ctx, "contact message queued",
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

func (s *Service) PublishAnnouncement(ctx context.Context, req *AnnouncementRequest) error {
	publishedAt := requestcontext.Now(ctx)
	if req.PublishedAt != nil {
		publishedAt = req.PublishedAt.UTC()
	}
	ev := events.AnnouncementPublishedEvent{
		AnnouncementID: req.AnnouncementID,
		Title:          req.Title,
		Summary:        req.Summary,
		URL:            req.URL,
		PublishedAt:    publishedAt,
	}
	if err := s.emitter.Emit(ctx, ev); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to queue announcement")
	}
	s.logger.InfoContext(ctx, "announcement queued",
		"announcement_id", req.AnnouncementID,
		"admin", requestcontext.AdminSubject(ctx),
	)
	return nil
}

// Broadcast queues an admin message. An empty recipient list targets the
// subscriber directory at delivery time.
func (s *Service) Broadcast(ctx context.Context, req *BroadcastRequest) (*BroadcastResponse, error) {
	recipients, invalid := email.NormalizeList(req.Recipients)
	if len(invalid) > 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "recipients contains an invalid email address: "+invalid[0])
	}
	ev := events.AdminBroadcastEvent{
		BroadcastID: uuid.NewString(),
		Subject:     req.Subject,
		Body:        req.Body,
		Recipients:  recipients,
		RequestedBy: requestcontext.AdminSubject(ctx),
		RequestedAt: requestcontext.Now(ctx),
	}
	if err := s.emitter.Emit(ctx, ev); err != nil {
		if errors.Is(err, events.ErrPayloadTooLarge) {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "broadcast is too large, split the recipients or shorten the body")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to queue broadcast")
	}
	s.logger.InfoContext(ctx, "broadcast queued",
		"broadcast_id", ev.BroadcastID,
		"recipients", len(recipients),
		"admin", ev.RequestedBy,
	)
	return &BroadcastResponse{BroadcastID: ev.BroadcastID, Recipients: len(recipients)}, nil
}
