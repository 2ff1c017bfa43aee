package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kafkarouter/internal/kafka"
	"kafkarouter/internal/rules"
)

func newCheckCommand(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify broker connectivity and topic existence",
		Long: `check connects to the consumer's bootstrap servers and reports whether
the source, destination and dead-letter topics exist. Missing source or
dead-letter topics are an error. Missing destination topics are only
reported, since they can be created on first use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.loadConfig(false); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runCheck(ctx, a)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "time allowed for the broker round trip")
	return cmd
}

func runCheck(ctx context.Context, a *app) error {
	table, err := rules.Load(a.cfg.Rules, a.cfg.Router.DLQTopic, a.logger)
	if err != nil {
		return err
	}

	required := map[string]bool{}
	topics := table.Topics()
	for _, topic := range topics {
		required[topic] = true
	}
	if dlq := table.Fallback(); dlq != "" {
		required[dlq] = true
		topics = append(topics, dlq)
	}
	for _, rule := range table.Rules() {
		topics = append(topics, rule.DestinationTopic)
	}

	statuses, err := kafka.CheckTopics(ctx, a.cfg.Consumer, topics)
	if err != nil {
		return fmt.Errorf("failed to reach Kafka: %w", err)
	}

	missing := 0
	for _, s := range statuses {
		switch {
		case s.Exists:
			fmt.Fprintf(a.stdout, "ok       %s (%d partitions)\n", s.Topic, s.Partitions)
		case required[s.Topic]:
			missing++
			fmt.Fprintf(a.stdout, "MISSING  %s\n", s.Topic)
		case a.cfg.Router.Topics.AutoCreate:
			fmt.Fprintf(a.stdout, "absent   %s (created on first use)\n", s.Topic)
		default:
			fmt.Fprintf(a.stdout, "absent   %s (produce will fail until it exists)\n", s.Topic)
		}
	}
	if missing > 0 {
		return fmt.Errorf("%d required topic(s) missing", missing)
	}
	return nil
}
