package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"clubpay/internal/platform/kafka"
)

func topologyCmd() *cobra.Command {
	var declare bool
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Print the broker topology, optionally creating its Kafka topics",
		Long: `Print the resolved broker topology (BROKER_TOPOLOGY_FILE or the built-in
default) as YAML. With --declare, create every topic and dead-letter topic it
names on the configured Kafka cluster. Existing topics are left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			out, err := yaml.Marshal(a.topology)
			if err != nil {
				return fmt.Errorf("encode topology: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			if !declare {
				return nil
			}

			kb, ok := a.broker.(*kafka.Broker)
			if !ok {
				return fmt.Errorf("--declare requires BROKER_BACKEND=kafka")
			}
			created, err := kafka.DeclareTopology(ctx, kb.Client(), a.topology)
			for _, t := range created {
				fmt.Fprintf(cmd.OutOrStdout(), "created topic %s\n", t)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d topics declared, %d dead-letter queues\n",
				len(a.topology.Topics()), len(a.topology.Queues))
			return nil
		},
	}
	cmd.Flags().BoolVar(&declare, "declare", false, "create the topics on Kafka")
	return cmd
}
