package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

type serveOptions struct {
	port       int
	runOnStart bool
	cron       string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run on a schedule and expose health, metrics and run control over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := resolveState(cmd.Context())
			if err != nil {
				return err
			}
			cfg := st.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = opts.port
			}
			if cmd.Flags().Changed("run-on-start") {
				cfg.Schedule.RunOnStart = opts.runOnStart
			}
			if cmd.Flags().Changed("cron") {
				cfg.Schedule.Cron = opts.cron
			}

			rt, err := newRuntime(cmd.Context(), cfg, st.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer rt.Close()
			return rt.Serve(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&opts.port, "port", 0, "HTTP port (overrides server.port)")
	cmd.Flags().BoolVar(&opts.runOnStart, "run-on-start", false, "start a run as soon as the server is up")
	cmd.Flags().StringVar(&opts.cron, "cron", "", `five-field cron schedule; "" disables scheduled runs`)
	return cmd
}
