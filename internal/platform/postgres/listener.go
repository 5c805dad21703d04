package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// OutboxChannel is the NOTIFY channel raised by the outbox insert trigger.
const OutboxChannel = "outbox_events"

// Listener holds a dedicated pgx connection subscribed to a NOTIFY channel and
// turns notifications into non-blocking wake-ups.
type Listener struct {
	dsn       string
	channel   string
	wake      chan struct{}
	logger    *slog.Logger
	reconnect time.Duration
}

func NewListener(dsn, channel string, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		dsn:       dsn,
		channel:   channel,
		wake:      make(chan struct{}, 1),
		logger:    logger,
		reconnect: 2 * time.Second,
	}
}

// C delivers at most one pending wake-up; bursts of notifications coalesce.
func (l *Listener) C() <-chan struct{} {
	return l.wake
}

// Run listens until ctx is cancelled, reconnecting after connection loss.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.WarnContext(ctx, "notify listener disconnected", "channel", l.channel, "error", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.reconnect):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.logger.InfoContext(ctx, "notify listener subscribed", "channel", l.channel)
	// Rows inserted while disconnected raised no notification we saw.
	l.signal()

	for {
		if _, err := conn.WaitForNotification(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.signal()
	}
}

func (l *Listener) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
