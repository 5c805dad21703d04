package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func notifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Run the notification consumers only",
		Long: `Consume contact, payment, announcement and broadcast events from Kafka and
send the matching emails. Requires BROKER_BACKEND=kafka; the memory broker
only delivers inside the "serve" process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Broker.Backend != "kafka" {
				return errors.New("notify requires BROKER_BACKEND=kafka")
			}
			if err := a.subscribeNotifications(); err != nil {
				return fmt.Errorf("subscribe notifications: %w", err)
			}
			a.logger.InfoContext(ctx, "notification consumers started", "queues", len(a.topology.Queues))
			return a.broker.Run(ctx)
		},
	}
}
