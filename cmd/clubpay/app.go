package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"clubpay/internal/broker"
	"clubpay/internal/events"
	"clubpay/internal/payments/ledger"
	paymetrics "clubpay/internal/payments/metrics"
	"clubpay/internal/payments/webhook"
	"clubpay/internal/platform/config"
	"clubpay/internal/platform/kafka"
	"clubpay/internal/platform/logger"
	"clubpay/internal/platform/postgres"
	"clubpay/internal/platform/redis"
	"clubpay/pkg/platform/outbox"
)

// app holds the process-wide dependencies shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry

	db    *sql.DB
	redis *redis.Client

	topology      *broker.Topology
	broker        broker.Broker
	brokerMetrics *broker.Metrics
	outboxMetrics *outbox.Metrics

	outboxStore  outbox.Store
	ledger       *ledger.Ledger
	emitter      *events.Emitter
	webhookStore webhook.Store
	payMetrics   *paymetrics.Metrics
}

type outboxDeleter interface {
	outbox.Store
	outbox.Deleter
}

// newApp loads configuration and connects the backends it selects. Postgres
// and Redis are optional; without them state is kept in process memory.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg, logger.New(cfg.Log))
}

func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   log,
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.payMetrics = paymetrics.New(a.registry)
	a.brokerMetrics = broker.NewMetrics(a.registry)
	a.outboxMetrics = outbox.NewMetrics(a.registry)

	if err := a.openStores(ctx); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openBroker(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	var ledgerStore ledger.TxStore
	if a.cfg.Postgres.URL != "" {
		db, err := postgres.Open(ctx, a.cfg.Postgres)
		if err != nil {
			return err
		}
		a.db = db
		ledgerStore = ledger.NewPostgres(db, a.cfg.Postgres.TxTimeout)
		a.outboxStore = outbox.NewPostgres(db)
		a.webhookStore = webhook.NewPostgres(db)
	} else {
		a.logger.WarnContext(ctx, "POSTGRES_URL not set, ledger state is kept in memory")
		ledgerStore = ledger.NewInMemoryStore()
		a.outboxStore = outbox.NewInMemoryStore()
		a.webhookStore = webhook.NewInMemoryStore()
	}

	rc, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return err
	}
	a.redis = rc

	a.emitter = events.NewEmitter(a.outboxStore, events.WithMaxPayloadBytes(a.cfg.Broker.MaxMessageBytes))
	a.ledger = ledger.New(ledgerStore, a.emitter,
		ledger.WithLogger(a.logger),
		ledger.WithMetrics(a.payMetrics),
	)
	return nil
}

func (a *app) openBroker() error {
	topology, err := broker.LoadTopology(a.cfg.Broker.TopologyFile)
	if err != nil {
		return err
	}
	a.topology = topology

	policy := broker.RetryPolicy{MaxAttempts: a.cfg.Broker.MaxAttempts, Backoff: a.cfg.Broker.RetryBackoff}
	switch a.cfg.Broker.Backend {
	case "kafka":
		b, err := kafka.New(a.cfg.Kafka, topology,
			kafka.WithRetryPolicy(policy),
			kafka.WithLogger(a.logger),
			kafka.WithMetrics(a.brokerMetrics),
		)
		if err != nil {
			return err
		}
		a.broker = b
	default:
		a.broker = broker.NewMemory(topology,
			broker.WithRetryPolicy(policy),
			broker.WithLogger(a.logger),
			broker.WithMetrics(a.brokerMetrics),
		)
	}
	return nil
}

func (a *app) processor() *webhook.Processor {
	router := webhook.NewRouter(a.ledger, a.cfg.Stripe.PlanPrices, a.logger)
	tolerance := a.cfg.Stripe.SignatureTolerance
	verifiers := map[webhook.Flow]*webhook.Verifier{
		webhook.FlowDonations:     webhook.NewVerifier(a.cfg.Stripe.WebhookSecret(string(webhook.FlowDonations)), tolerance),
		webhook.FlowSubscriptions: webhook.NewVerifier(a.cfg.Stripe.WebhookSecret(string(webhook.FlowSubscriptions)), tolerance),
	}
	return webhook.NewProcessor(router, a.webhookStore, verifiers,
		webhook.WithLogger(a.logger),
		webhook.WithMetrics(a.payMetrics),
	)
}

// relay builds the outbox relay; wake may be nil, leaving it on polling alone.
func (a *app) relay(wake <-chan struct{}) *outbox.Relay {
	return outbox.NewRelay(a.outboxStore, broker.OutboxPublisher(a.broker),
		outbox.WithWakeChannel(wake),
		outbox.WithPollInterval(a.cfg.Outbox.PollInterval),
		outbox.WithBatchSize(a.cfg.Outbox.BatchSize),
		outbox.WithMaxAttempts(a.cfg.Outbox.MaxAttempts),
		outbox.WithLogger(a.logger),
		outbox.WithMetrics(a.outboxMetrics),
	)
}

// pruner is nil when the outbox store cannot delete.
func (a *app) pruner() *outbox.Pruner {
	d, ok := a.outboxStore.(outboxDeleter)
	if !ok {
		return nil
	}
	return outbox.NewPruner(d, a.cfg.Outbox.Retention, 0, a.logger)
}

func (a *app) requireDB() error {
	if a.db == nil {
		return errors.New("POSTGRES_URL is required for this command")
	}
	return nil
}

func (a *app) close() {
	var errs []error
	if a.broker != nil {
		errs = append(errs, a.broker.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Warn("shutdown cleanup failed", "error", fmt.Sprint(err))
	}
}
