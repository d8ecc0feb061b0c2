package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
	"github.com/JakeFAU/jobpost-ingest/internal/pipeline"
)

type runOptions struct {
	sources []string
	json    bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every configured source once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.sources, "source", nil, "only process the named sources (repeatable)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print run statistics as JSON")
	return cmd
}

func runOnce(cmd *cobra.Command, opts *runOptions) error {
	st, err := resolveState(cmd.Context())
	if err != nil {
		return err
	}
	cfg := st.cfg
	if len(opts.sources) > 0 {
		selected, err := selectSources(cfg.Sources.Descriptors, opts.sources)
		if err != nil {
			return err
		}
		cfg.Sources.Descriptors = selected
	}
	if len(cfg.Sources.Descriptors) == 0 {
		return fmt.Errorf("no sources configured")
	}

	rt, err := newRuntime(cmd.Context(), cfg, st.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer rt.Close()

	stats, runErr := rt.RunOnce(cmd.Context())
	if opts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			return fmt.Errorf("encode stats: %w", err)
		}
	} else {
		renderStats(cmd.OutOrStdout(), stats)
	}
	return runErr
}

func selectSources(all []jobs.SourceDescriptor, names []string) ([]jobs.SourceDescriptor, error) {
	var out []jobs.SourceDescriptor
	for _, name := range names {
		idx := slices.IndexFunc(all, func(d jobs.SourceDescriptor) bool { return d.Name == name })
		if idx < 0 {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		out = append(out, all[idx])
	}
	return out, nil
}

func renderStats(w io.Writer, stats pipeline.Stats) {
	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetStyle(table.StyleLight)
	summary.AppendHeader(table.Row{"Metric", "Value"})
	summary.AppendRows([]table.Row{
		{"Run", stats.RunID},
		{"Rows", stats.Rows},
		{"Skipped", stats.Skipped},
		{"Fetched", stats.Fetched},
		{"Fetch failures", stats.FetchFailures},
		{"Unsupported", stats.Unsupported},
		{"Parse failures", stats.ParseFailures},
		{"Postings", stats.Postings},
		{"Invalid", stats.Invalid},
		{"Accepted", stats.Accepted},
		{"Duplicates", stats.Duplicates},
		{"Stored", stats.Stored},
		{"Store failures", stats.StoreFailures},
		{"Archived", stats.Archived},
		{"Published", stats.Published},
	})
	summary.AppendFooter(table.Row{"Duration", stats.Duration().String()})
	summary.Render()

	if len(stats.Sources) == 0 {
		return
	}
	perSource := table.NewWriter()
	perSource.SetOutputMirror(w)
	perSource.SetStyle(table.StyleLight)
	perSource.AppendHeader(table.Row{"Source", "Rows", "Stored", "Error"})
	for _, s := range stats.Sources {
		perSource.AppendRow(table.Row{s.Name, s.Rows, s.Stored, s.Error})
	}
	perSource.Render()
}
