package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"clubpay/internal/platform/httpserver"
	"clubpay/internal/platform/postgres"
)

func serveCmd() *cobra.Command {
	var withConsumers bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox relay",
		Long: `Run the webhook, checkout, intake and admin endpoints together with the
outbox relay. With the memory broker the notification consumers always run in
this process; with Kafka they can be split out with --consumers=false and run
by "clubpay notify".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, withConsumers)
		},
	}
	cmd.Flags().BoolVar(&withConsumers, "consumers", true, "run notification consumers in this process")
	return cmd
}

func runServe(ctx context.Context, withConsumers bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Broker.Backend == "memory" {
		withConsumers = true
	}
	if withConsumers {
		if err := a.subscribeNotifications(); err != nil {
			return fmt.Errorf("subscribe notifications: %w", err)
		}
	}

	srv := httpserver.New(a.cfg.HTTP, a.router(a.processor()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, srv, a.cfg.HTTP.ShutdownTimeout, a.logger)
	})

	var wake <-chan struct{}
	if a.db != nil {
		listener := postgres.NewListener(a.cfg.Postgres.URL, postgres.OutboxChannel, a.logger)
		wake = listener.C()
		g.Go(func() error { return listener.Run(ctx) })
	}
	relay := a.relay(wake)
	g.Go(func() error { return relay.Run(ctx) })

	if p := a.pruner(); p != nil {
		g.Go(func() error { return p.Run(ctx) })
	}
	if withConsumers {
		g.Go(func() error { return a.broker.Run(ctx) })
	}

	a.logger.InfoContext(ctx, "clubpay started",
		"addr", a.cfg.HTTP.Addr,
		"broker", a.cfg.Broker.Backend,
		"consumers", withConsumers,
		"postgres", a.db != nil,
		"redis", a.redis != nil,
	)
	return g.Wait()
}
