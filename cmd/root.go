package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-ingest/internal/app"
	"github.com/JakeFAU/jobpost-ingest/internal/config"
	"github.com/JakeFAU/jobpost-ingest/internal/logging"
	"github.com/JakeFAU/jobpost-ingest/internal/pipeline"
)

// Runtime is what the commands drive; *app.App satisfies it.
type Runtime interface {
	RunOnce(ctx context.Context) (pipeline.Stats, error)
	Serve(ctx context.Context) error
	Close()
}

// newRuntime is a variable so tests can swap in a fake.
var newRuntime = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runtime, error) {
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

type stateKeyType struct{}

// state is loaded once by the root command and shared with subcommands.
type state struct {
	cfg    config.Config
	logger *zap.Logger
}

type rootOptions struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "jobingest",
		Short: "Fetches, normalizes and deduplicates job postings.",
		Long: `jobingest reads tabular job-posting sources, scrapes listing pages where a
source asks for it, classifies and normalizes every posting into a canonical
record and stores each record once.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load env file: %w", err)
			}
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), stateKeyType{}, &state{cfg: cfg, logger: logger}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (YAML); environment variables prefixed INGEST_ override it")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before configuration")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSourcesCmd())
	cmd.AddCommand(newConfigCmd())
	return cmd
}

func resolveState(ctx context.Context) (*state, error) {
	st, ok := ctx.Value(stateKeyType{}).(*state)
	if !ok || st == nil {
		return nil, errors.New("configuration not loaded")
	}
	return st, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
