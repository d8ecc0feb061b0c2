package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/jobpost-ingest/internal/clock/system"
	"github.com/JakeFAU/jobpost-ingest/internal/normalize"
	"github.com/JakeFAU/jobpost-ingest/internal/parser"
)

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect configured input sources and scraping targets",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured input sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := resolveState(cmd.Context())
			if err != nil {
				return err
			}
			if len(st.cfg.Sources.Descriptors) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sources configured")
				return nil
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "File", "Needs Scraping"})
			for _, d := range st.cfg.Sources.Descriptors {
				t.AppendRow(table.Row{d.Name, d.FilePath, d.NeedsScraping})
			}
			t.Render()
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "types",
		Short: "List the listing-page types the scraper understands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := resolveState(cmd.Context())
			if err != nil {
				return err
			}
			registry := parser.Default(system.New())
			names := make([]string, 0, len(st.cfg.Sources.HostPatterns))
			for name := range st.cfg.Sources.HostPatterns {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				if err := registry.AddHostPatterns(name, st.cfg.Sources.HostPatterns[name]...); err != nil {
					return fmt.Errorf("sources.host_patterns: %w", err)
				}
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Type", "Host Patterns"})
			for _, typ := range registry.Types() {
				t.AppendRow(table.Row{typ.Name, strings.Join(typ.HostPatterns, ", ")})
			}
			t.Render()
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "roles",
		Short: "List the role labels postings are classified into, in precedence order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := resolveState(cmd.Context())
			if err != nil {
				return err
			}
			rules := make([]normalize.RoleRule, 0, len(st.cfg.Roles))
			for _, r := range st.cfg.Roles {
				rules = append(rules, normalize.RoleRule{Role: r.Role, Patterns: r.Patterns})
			}
			classifier, err := normalize.NewRoleClassifier(rules)
			if err != nil {
				return fmt.Errorf("roles: %w", err)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Rank", "Role"})
			roles := classifier.Roles()
			for i, role := range roles {
				t.AppendRow(table.Row{i + 1, role})
			}
			t.AppendRow(table.Row{len(roles) + 1, normalize.RoleOther})
			t.Render()
			return nil
		},
	})
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML (secrets omitted)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := resolveState(cmd.Context())
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(st.cfg); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	}
}
