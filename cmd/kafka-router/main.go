package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"kafkarouter/internal/config"
	"kafkarouter/internal/router"
	"kafkarouter/internal/rules"
	"kafkarouter/pkg/types"
)

// Process exit statuses.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitSchemaError = 2
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

// app carries the state shared by all commands.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	envFile    string
	logConsole bool

	cfg    *types.Config
	logger zerolog.Logger
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{
		stdout: stdout,
		stderr: stderr,
		logger: zerolog.New(stderr).With().Timestamp().Logger(),
	}
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(context.Background())
	code := exitCode(err)
	switch {
	case err == nil:
	case code == ExitOK:
		a.logger.Error().Err(err).Msg("Nothing to route")
	default:
		a.logger.Error().Err(err).Int("exit_code", code).Msg("Router failed")
	}
	return code
}

// exitCode maps a command error to the process exit status. A missing rule
// set is reported but is not a failure.
func exitCode(err error) int {
	var schemaErr *rules.SchemaError
	switch {
	case err == nil, errors.Is(err, router.ErrNoRules):
		return ExitOK
	case errors.As(err, &schemaErr):
		return ExitSchemaError
	default:
		return ExitFailure
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "kafka-router",
		Short: "Content based router for Kafka topics",
		Long: `kafka-router consumes records from the source topics named by its rules,
evaluates every record against the rules in lexical order of their keys and
republishes it to the first matching rule's destination topic. Records that
match no rule, or that cannot be evaluated, go to the dead-letter topic.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotenv(a.envFile); err != nil {
				return err
			}
			if !cmd.Flags().Changed("config") {
				a.configPath = config.GetConfigPath()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs, err := config.LoadRules(a.configPath)
			if err != nil {
				return err
			}
			if len(defs) == 0 {
				return router.ErrNoRules
			}
			if err := a.loadConfig(false); err != nil {
				return err
			}
			return runRouter(cmd.Context(), a)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "optional YAML configuration file, defaults to $CONFIG_FILE")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().BoolVar(&a.logConsole, "log-console", false, "human readable log output")

	root.AddCommand(newValidateCommand(a))
	root.AddCommand(newCheckCommand(a))
	root.AddCommand(newVersionCommand(a))
	return root
}

// loadConfig reads the configuration and replaces the bootstrap logger with
// the configured one.
func (a *app) loadConfig(forValidation bool) error {
	load := config.Load
	if forValidation {
		load = config.LoadForValidation
	}
	cfg, err := load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.logConsole {
		cfg.Logging.Console = true
	}

	logger, err := config.NewLogger(cfg.Logging, a.stderr)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}
