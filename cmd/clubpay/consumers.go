package main

import (
	"clubpay/internal/notification"
	"clubpay/pkg/platform/circuit"
)

// subscribeNotifications builds the notification consumer from configuration
// and binds it to every queue in the topology.
func (a *app) subscribeNotifications() error {
	renderer, err := notification.NewRenderer()
	if err != nil {
		return err
	}
	cfg := a.cfg
	metrics := notification.NewMetrics(a.registry)

	var sender notification.Sender
	if cfg.SMTP.Host != "" {
		sender = notification.NewSMTPSender(cfg.SMTP, cfg.Notification.FromAddress, cfg.Notification.FromName)
	} else {
		a.logger.Warn("SMTP_HOST not set, notifications are logged instead of sent")
		sender = notification.NewLogSender(a.logger)
	}

	var deduper notification.Deduper
	if a.redis != nil {
		deduper = notification.NewRedisDeduper(a.redis.Client, cfg.Notification.DedupTTL)
	} else {
		deduper = notification.NewMemoryDeduper(cfg.Notification.DedupTTL, cfg.Notification.DedupCapacity)
	}

	opts := []notification.Option{
		notification.WithDeduper(deduper),
		notification.WithContactInbox(cfg.Notification.ContactInbox),
		notification.WithSiteURL(cfg.Notification.SiteURL),
		notification.WithPacing(cfg.Notification.Pacing),
		notification.WithSendTimeout(cfg.Notification.SendTimeout),
		notification.WithLogger(a.logger),
		notification.WithMetrics(metrics),
	}
	if cfg.Directory.URL != "" {
		breaker := circuit.New("directory",
			circuit.WithFailureThreshold(cfg.Directory.FailureThreshold),
			circuit.WithCooldown(cfg.Directory.Cooldown),
		)
		opts = append(opts, notification.WithDirectory(notification.NewHTTPDirectory(cfg.Directory.URL, cfg.Directory.Timeout,
			notification.WithBreaker(breaker),
			notification.WithDirectoryLogger(a.logger),
			notification.WithDirectoryMetrics(metrics),
		)))
	}

	consumer := notification.NewConsumer(sender, renderer, opts...)
	return consumer.Subscribe(a.broker, a.topology)
}
