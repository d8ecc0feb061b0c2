// Package cmd hosts the jobingest commands.
//
//   - run: reads every configured source once, scrapes listing pages for
//     sources marked needs_scraping, normalizes and deduplicates postings and
//     writes each canonical record to the configured store. A summary table
//     (or JSON with --json) is printed when the run ends.
//   - serve: runs the pipeline on the configured cron schedule and exposes
//     /healthz, /readyz, /metrics and the /v1/runs control endpoints. SIGINT
//     and SIGTERM cancel an in-flight run and drain the HTTP server.
//   - sources list|types: shows configured inputs and the listing-page types
//     with their host patterns.
//   - config: prints the effective configuration as YAML.
//
// Configuration comes from an optional YAML file (--config), a dotenv file
// (--env-file) and INGEST_-prefixed environment variables, in increasing
// order of precedence.
package cmd
