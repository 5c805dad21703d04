// Package notification turns domain events into outbound email. Single
// recipient events are sent once per message; fan-out events are paced
// across a recipient list, skipping addresses a previous delivery reached.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"clubpay/internal/broker"
	"clubpay/internal/events"
	"clubpay/pkg/email"
)

// Subscriber binds a handler to a named queue.
type Subscriber interface {
	Subscribe(queue string, h broker.Handler) error
}

type Consumer struct {
	sender       Sender
	renderer     *Renderer
	dedup        Deduper
	directory    Directory
	contactInbox string
	siteURL      string
	pacing       time.Duration
	sendTimeout  time.Duration
	logger       *slog.Logger
	metrics      *Metrics
	tracer       trace.Tracer
}

type Option func(*Consumer)

func WithDeduper(d Deduper) Option {
	return func(c *Consumer) { c.dedup = d }
}

// WithDirectory enables recipient lookup for fan-out events. Without one,
// announcements are skipped and broadcasts need explicit recipients.
func WithDirectory(d Directory) Option {
	return func(c *Consumer) { c.directory = d }
}

func WithContactInbox(addr string) Option {
	return func(c *Consumer) { c.contactInbox = addr }
}

func WithSiteURL(u string) Option {
	return func(c *Consumer) { c.siteURL = u }
}

// WithPacing sets the delay between consecutive fan-out sends.
func WithPacing(d time.Duration) Option {
	return func(c *Consumer) { c.pacing = d }
}

func WithSendTimeout(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.sendTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) { c.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Consumer) { c.metrics = m }
}

func NewConsumer(sender Sender, renderer *Renderer, opts ...Option) *Consumer {
	c := &Consumer{
		sender:      sender,
		renderer:    renderer,
		dedup:       NewMemoryDeduper(72*time.Hour, 100_000),
		sendTimeout: 15 * time.Second,
		logger:      slog.Default(),
		tracer:      otel.Tracer("clubpay/notification"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Router maps every notification routing key to its handler.
func (c *Consumer) Router() *broker.Router {
	r := broker.NewRouter(c.logger, nil)
	r.Register(events.RoutingKeyContactMessage, broker.HandlerFunc(c.HandleContact))
	r.Register(events.RoutingKeyDonationCompleted, broker.HandlerFunc(c.HandleDonation))
	r.Register(events.RoutingKeySubscriptionPaymentComplete, broker.HandlerFunc(c.HandleSubscriptionPayment))
	r.Register(events.RoutingKeyAnnouncementPublished, broker.HandlerFunc(c.HandleAnnouncement))
	r.Register(events.RoutingKeyAdminBroadcast, broker.HandlerFunc(c.HandleBroadcast))
	return r
}

// Subscribe binds the router to every queue the topology declares.
func (c *Consumer) Subscribe(sub Subscriber, topology *broker.Topology) error {
	router := c.Router()
	for _, q := range topology.Queues {
		if err := sub.Subscribe(q.Name, router); err != nil {
			return fmt.Errorf("subscribe %s: %w", q.Name, err)
		}
	}
	return nil
}

type contactData struct {
	Name    string
	Email   string
	Subject string
	Message string
	SentAt  string
	SiteURL string
}

type thankYouData struct {
	Greeting  string
	Amount    string
	Message   string
	PlanCode  string
	Reference string
	SiteURL   string
}

type announcementData struct {
	Title   string
	Summary string
	URL     string
	SiteURL string
}

type broadcastData struct {
	Subject string
	Body    string
	SiteURL string
}

func (c *Consumer) HandleContact(ctx context.Context, msg broker.Message) error {
	ev, err := events.Decode[events.ContactMessageEvent](msg.Payload)
	if err != nil {
		return c.malformed(ctx, KindContact, msg, err)
	}
	data := contactData{
		Name:    orDefault(ev.Name, "Anonymous"),
		Email:   ev.Email,
		Subject: orDefault(ev.Subject, "(no subject)"),
		Message: ev.Message,
		SentAt:  ev.SentAt.UTC().Format("2006-01-02 15:04 MST"),
		SiteURL: c.siteURL,
	}
	return c.sendOne(ctx, KindContact, msg, c.contactInbox, ev.Email, data)
}

func (c *Consumer) HandleDonation(ctx context.Context, msg broker.Message) error {
	ev, err := events.Decode[events.DonationCompletedEvent](msg.Payload)
	if err != nil {
		return c.malformed(ctx, KindDonation, msg, err)
	}
	data := thankYouData{
		Greeting:  email.GreetingName(ev.DonorName, ev.DonorEmail),
		Amount:    FormatMoney(ev.Amount, ev.Currency),
		Message:   ev.Message,
		Reference: ev.SessionID,
		SiteURL:   c.siteURL,
	}
	return c.sendOne(ctx, KindDonation, msg, ev.DonorEmail, "", data)
}

func (c *Consumer) HandleSubscriptionPayment(ctx context.Context, msg broker.Message) error {
	ev, err := events.Decode[events.SubscriptionPaymentCompletedEvent](msg.Payload)
	if err != nil {
		return c.malformed(ctx, KindSubscriptionPayment, msg, err)
	}
	data := thankYouData{
		Greeting:  email.GreetingName(ev.SupporterName, ev.SupporterEmail),
		Amount:    FormatMoney(ev.Amount, ev.Currency),
		PlanCode:  ev.PlanCode,
		Reference: ev.InvoiceID,
		SiteURL:   c.siteURL,
	}
	return c.sendOne(ctx, KindSubscriptionPayment, msg, ev.SupporterEmail, "", data)
}

func (c *Consumer) HandleAnnouncement(ctx context.Context, msg broker.Message) error {
	ev, err := events.Decode[events.AnnouncementPublishedEvent](msg.Payload)
	if err != nil {
		return c.malformed(ctx, KindAnnouncement, msg, err)
	}
	recipients, ok := c.lookupRecipients(ctx, KindAnnouncement, msg)
	if !ok {
		return nil
	}
	data := announcementData{
		Title:   ev.Title,
		Summary: ev.Summary,
		URL:     orDefault(ev.URL, c.siteURL),
		SiteURL: c.siteURL,
	}
	return c.fanOut(ctx, KindAnnouncement, msg, recipients, data)
}

// HandleBroadcast sends to the explicit recipient list when the event carries
// one and to the directory otherwise.
func (c *Consumer) HandleBroadcast(ctx context.Context, msg broker.Message) error {
	ev, err := events.Decode[events.AdminBroadcastEvent](msg.Payload)
	if err != nil {
		return c.malformed(ctx, KindBroadcast, msg, err)
	}
	recipients := ev.Recipients
	if len(recipients) == 0 {
		var ok bool
		if recipients, ok = c.lookupRecipients(ctx, KindBroadcast, msg); !ok {
			return nil
		}
	}
	data := broadcastData{Subject: ev.Subject, Body: ev.Body, SiteURL: c.siteURL}
	return c.fanOut(ctx, KindBroadcast, msg, recipients, data)
}

// sendOne renders and sends a single-recipient message. A send failure is
// returned so the broker redelivers; the claim is released first.
func (c *Consumer) sendOne(ctx context.Context, kind string, msg broker.Message, to, replyTo string, data any) error {
	ctx, span := c.tracer.Start(ctx, "notification."+kind, trace.WithAttributes(
		attribute.String("message_id", msg.ID),
		attribute.Int("attempt", msg.Attempt),
	))
	defer span.End()

	if strings.TrimSpace(to) == "" {
		c.logger.WarnContext(ctx, "notification has no recipient",
			"kind", kind,
			"message_id", msg.ID,
		)
		c.metrics.IncSkipped(kind, "no_recipient")
		return nil
	}
	recipient, err := email.Normalize(to)
	if err != nil {
		c.logger.WarnContext(ctx, "invalid notification recipient",
			"kind", kind,
			"message_id", msg.ID,
			"error", err,
		)
		c.metrics.IncSkipped(kind, "invalid_recipient")
		return nil
	}

	rendered, err := c.renderer.Render(kind, data)
	if err != nil {
		span.RecordError(err)
		return broker.Permanent(err)
	}
	m := Mail{To: recipient, ReplyTo: replyTo, Subject: rendered.Subject, Text: rendered.Text, HTML: rendered.HTML}
	if _, err := c.deliver(ctx, kind, msg.ID, m); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		if errors.Is(err, ErrRecipientRejected) {
			return broker.Permanent(err)
		}
		return err
	}
	return nil
}

// fanOut sends one message per distinct recipient with fixed pacing between
// sends. Per-recipient failures are logged and skipped; only cancellation
// aborts the loop, leaving the rest for redelivery.
func (c *Consumer) fanOut(ctx context.Context, kind string, msg broker.Message, recipients []string, data any) error {
	ctx, span := c.tracer.Start(ctx, "notification."+kind, trace.WithAttributes(
		attribute.String("message_id", msg.ID),
		attribute.Int("attempt", msg.Attempt),
	))
	defer span.End()

	valid, invalid := email.NormalizeList(recipients)
	for _, addr := range invalid {
		c.logger.WarnContext(ctx, "skipping invalid recipient",
			"kind", kind,
			"message_id", msg.ID,
			"recipient", addr,
		)
		c.metrics.IncSkipped(kind, "invalid_recipient")
	}
	c.metrics.ObserveFanout(kind, len(valid))
	span.SetAttributes(attribute.Int("recipients", len(valid)))

	rendered, err := c.renderer.Render(kind, data)
	if err != nil {
		span.RecordError(err)
		return broker.Permanent(err)
	}

	var sent, failed, duplicates int
	for _, to := range valid {
		if sent+failed > 0 && c.pacing > 0 {
			if err := sleep(ctx, c.pacing); err != nil {
				return err
			}
		}
		ok, err := c.deliver(ctx, kind, msg.ID, Mail{To: to, Subject: rendered.Subject, Text: rendered.Text, HTML: rendered.HTML})
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			failed++
			c.logger.WarnContext(ctx, "fan-out send failed, skipping recipient",
				"kind", kind,
				"message_id", msg.ID,
				"recipient", to,
				"error", err,
			)
		case ok:
			sent++
		default:
			duplicates++
		}
	}

	c.logger.InfoContext(ctx, "fan-out finished",
		"kind", kind,
		"message_id", msg.ID,
		"recipients", len(valid),
		"sent", sent,
		"failed", failed,
		"already_sent", duplicates,
	)
	return nil
}

// deliver claims the (message, recipient) pair and sends. sent is false
// without an error when an earlier delivery already reached the recipient.
func (c *Consumer) deliver(ctx context.Context, kind, messageID string, m Mail) (sent bool, err error) {
	key := claimKey(messageID, m.To)
	claimed, err := c.dedup.Claim(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "dedup store unavailable, sending without claim",
			"kind", kind,
			"message_id", messageID,
			"error", err,
		)
		claimed = true
	}
	if !claimed {
		c.metrics.IncSkipped(kind, "duplicate")
		c.logger.DebugContext(ctx, "recipient already notified",
			"kind", kind,
			"message_id", messageID,
			"recipient", m.To,
		)
		return false, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	start := time.Now()
	err = c.sender.Send(sendCtx, m)
	c.metrics.ObserveSend(kind, start)
	if err != nil {
		c.metrics.IncSend(kind, "failed")
		if relErr := c.dedup.Release(context.WithoutCancel(ctx), key); relErr != nil {
			c.logger.WarnContext(ctx, "failed to release dedup claim",
				"kind", kind,
				"message_id", messageID,
				"error", relErr,
			)
		}
		return false, fmt.Errorf("send %s to %s: %w", kind, m.To, err)
	}
	c.metrics.IncSend(kind, "sent")
	c.logger.InfoContext(ctx, "notification sent",
		"kind", kind,
		"message_id", messageID,
		"recipient", m.To,
	)
	return true, nil
}

// lookupRecipients asks the directory for the list. ok is false when the
// fan-out should be skipped; the message is then acked.
func (c *Consumer) lookupRecipients(ctx context.Context, kind string, msg broker.Message) ([]string, bool) {
	if c.directory == nil {
		c.logger.WarnContext(ctx, "no subscriber directory configured, skipping fan-out",
			"kind", kind,
			"message_id", msg.ID,
		)
		c.metrics.IncSkipped(kind, "no_directory")
		return nil, false
	}
	recipients, err := c.directory.Recipients(ctx)
	if err != nil {
		c.logger.ErrorContext(ctx, "subscriber directory unavailable, skipping fan-out",
			"kind", kind,
			"message_id", msg.ID,
			"error", err,
		)
		c.metrics.IncSkipped(kind, "directory_unavailable")
		return nil, false
	}
	return recipients, true
}

func (c *Consumer) malformed(ctx context.Context, kind string, msg broker.Message, err error) error {
	c.logger.ErrorContext(ctx, "malformed notification payload",
		"kind", kind,
		"message_id", msg.ID,
		"routing_key", msg.RoutingKey,
		"error", err,
	)
	c.metrics.IncSkipped(kind, "malformed")
	return broker.Permanent(err)
}

func claimKey(messageID, recipient string) string {
	return messageID + ":" + recipient
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
