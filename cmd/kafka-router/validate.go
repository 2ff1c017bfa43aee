package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kafkarouter/internal/router"
	"kafkarouter/internal/rules"
)

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Compile the rules and print the evaluation order",
		Long: `validate loads the configuration and compiles every rule without
connecting to Kafka. It prints the rules in evaluation order, the topics the
router would subscribe to and how unmatched records would be handled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.loadConfig(true); err != nil {
				return err
			}
			return runValidate(a)
		},
	}
}

func runValidate(a *app) error {
	table, err := rules.Load(a.cfg.Rules, a.cfg.Router.DLQTopic, a.logger)
	if err != nil {
		return err
	}
	if table.Len() == 0 {
		return router.ErrNoRules
	}
	if err := router.ValidateConsumerConfig(a.cfg.Consumer); err != nil {
		return err
	}
	dlqID, err := router.ResolveDLQID(a.cfg.Router.DLQID, a.cfg.Consumer)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tRULE\tSOURCE\tDESTINATION\tPREDICATES")
	for i, rule := range table.Rules() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, rule.Name, rule.SourceTopic, rule.DestinationTopic, predicates(rule.Describe()))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "\nSubscriptions: %s\n", strings.Join(table.Topics(), ", "))
	if table.Fallback() != "" {
		fmt.Fprintf(a.stdout, "Dead-letter topic: %s (headers %s.*)\n", table.Fallback(), dlqID)
	} else {
		fmt.Fprintln(a.stdout, "Dead-letter topic: none, unmatched records are dropped")
	}
	return nil
}

func predicates(described map[string]string) string {
	var parts []string
	for key, value := range described {
		switch key {
		case "name", "source_topic", "destination_topic":
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%q", key, value))
	}
	if len(parts) == 0 {
		return "-"
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
