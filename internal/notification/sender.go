package notification

import (
	"context"
	"errors"
	"log/slog"
)

// ErrRecipientRejected means the mail server refused the recipient for good.
// Retrying the same message will not help.
var ErrRecipientRejected = errors.New("recipient rejected")

// Mail is one outbound message to a single recipient.
type Mail struct {
	To      string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers one message. Implementations must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg Mail) error
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, m Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "mail not sent, smtp disabled",
		"recipient", m.To,
		"reply_to", m.ReplyTo,
		"subject", m.Subject,
		"text_bytes", len(m.Text),
		"html_bytes", len(m.HTML),
	)
	return nil
}
