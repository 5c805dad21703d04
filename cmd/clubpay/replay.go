package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"clubpay/internal/payments/webhook"
)

func replayCmd() *cobra.Command {
	var (
		eventID string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-dispatch failed webhook events from the dead-letter table",
		Long: `Re-dispatch stored webhook payloads through the ledger router. Stored
payloads were verified on receipt, so signatures are not checked again.

Examples:
  clubpay replay --event-id evt_1N2b3c
  clubpay replay --limit 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireDB(); err != nil {
				return err
			}

			// Events emitted by a replay land in the outbox; the running
			// relay publishes them.
			processor := a.processor()
			out := cmd.OutOrStdout()
			if eventID != "" {
				res, err := processor.Replay(ctx, eventID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s: %s\n", eventID, res)
				if res == webhook.ResultFailed {
					return errors.New("replay failed, event stays in the dead-letter table")
				}
				return nil
			}

			succeeded, failed, err := processor.ReplayFailed(ctx, limit)
			fmt.Fprintf(out, "replayed %d events, %d still failing\n", succeeded, failed)
			return err
		},
	}
	cmd.Flags().StringVar(&eventID, "event-id", "", "replay a single event by provider event id")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum failed events to replay")
	return cmd
}
