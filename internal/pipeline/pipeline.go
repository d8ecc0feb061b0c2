// Package pipeline drives sources through fetch, parse, normalize, dedup and
// storage.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/jobpost-ingest/internal/dedup"
	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
	"github.com/JakeFAU/jobpost-ingest/internal/logging"
	"github.com/JakeFAU/jobpost-ingest/internal/metrics"
	"github.com/JakeFAU/jobpost-ingest/internal/parser"
)

// Extractor resolves a page URL to a source type and parses its body.
type Extractor interface {
	Resolve(rawURL string) (parser.SourceType, error)
	Parse(name string, body []byte, responseURL string) ([]jobs.RawPosting, error)
}

// Normalizer turns a raw posting into a canonical record.
type Normalizer interface {
	Normalize(p jobs.RawPosting) (jobs.CanonicalRecord, error)
}

// Config controls Pipeline behavior.
type Config struct {
	Workers     int
	ContentType string
	BlobPrefix  string
	Topic       string
}

// Deps are the collaborators a Pipeline needs. Blobs and Publisher are optional.
type Deps struct {
	Reader     jobs.RowReader
	Fetcher    jobs.Fetcher
	Extractor  Extractor
	Normalizer Normalizer
	Store      jobs.Store
	Hasher     jobs.Hasher
	Clock      jobs.Clock
	IDs        jobs.IDGenerator
	Blobs      jobs.BlobStore
	Publisher  jobs.Publisher
}

// Pipeline processes sources in order and the rows of a source on a bounded
// worker pool. Row and source failures are logged and counted; only
// cancellation ends a run early.
type Pipeline struct {
	deps   Deps
	cfg    Config
	seen   *dedup.Set
	logger *zap.Logger
}

// New validates deps and constructs a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Reader == nil:
		return nil, errors.New("row reader is required")
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("extractor is required")
	case deps.Normalizer == nil:
		return nil, errors.New("normalizer is required")
	case deps.Store == nil:
		return nil, errors.New("store is required")
	case deps.Hasher == nil:
		return nil, errors.New("hasher is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	return &Pipeline{
		deps:   deps,
		cfg:    cfg,
		seen:   dedup.New(),
		logger: logging.OrNop(logger).Named("pipeline"),
	}, nil
}

type run struct {
	id      string
	seen    *dedup.Set
	counts  counters
	logger  *zap.Logger
	started time.Time
}

// Run processes every source once. The returned Stats are complete even when
// the error is non-nil; the error is only set for cancellation or when a run
// ID cannot be generated.
func (p *Pipeline) Run(ctx context.Context, sources []jobs.SourceDescriptor) (Stats, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return Stats{}, fmt.Errorf("generate run id: %w", err)
	}
	return p.RunWithID(ctx, runID, sources)
}

// Seen reports how many identities this Pipeline has accepted since it was
// built. The set spans runs and is never persisted.
func (p *Pipeline) Seen() int {
	return p.seen.Len()
}

// RunWithID is Run with a caller-chosen run ID.
func (p *Pipeline) RunWithID(ctx context.Context, runID string, sources []jobs.SourceDescriptor) (Stats, error) {
	r := &run{
		id:      runID,
		seen:    p.seen,
		logger:  p.logger.With(zap.String("run_id", runID)),
		started: p.deps.Clock.Now(),
	}
	stats := Stats{RunID: runID, StartedAt: r.started}
	r.logger.Info("run started", zap.Int("sources", len(sources)), zap.Int("workers", p.cfg.Workers))

	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		stats.Sources = append(stats.Sources, p.runSource(ctx, r, src))
	}

	r.counts.fill(&stats)
	stats.FinishedAt = p.deps.Clock.Now()
	status := "completed"
	if err := ctx.Err(); err != nil {
		stats.Canceled = true
		status = "canceled"
	}
	metrics.ObserveRun(status, stats.Duration())
	r.logger.Info("run finished",
		zap.String("status", status),
		zap.Int("rows", stats.Rows),
		zap.Int("accepted", stats.Accepted),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("stored", stats.Stored),
		zap.Int("fetch_failures", stats.FetchFailures),
		zap.Duration("duration", stats.Duration()),
	)
	if stats.Canceled {
		return stats, fmt.Errorf("run %s canceled: %w", runID, ctx.Err())
	}
	return stats, nil
}

func (p *Pipeline) runSource(ctx context.Context, r *run, src jobs.SourceDescriptor) SourceStats {
	logger := r.logger.With(zap.String("source", src.Name))
	logger.Info("source started", zap.String("file", src.FilePath), zap.Bool("needs_scraping", src.NeedsScraping))

	var rows, stored atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Workers)
	readErr := p.deps.Reader.Read(ctx, src, func(index int, row jobs.Row) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			// A slot can free up after cancellation; do not start the row then.
			if ctx.Err() != nil {
				return nil
			}
			rows.Add(1)
			r.counts.rows.Add(1)
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()
			stored.Add(int64(p.processRow(ctx, r, src, index, row, logger)))
			return nil
		})
		return nil
	})
	_ = g.Wait()

	out := SourceStats{Name: src.Name, Rows: int(rows.Load()), Stored: int(stored.Load())}
	switch {
	case readErr == nil:
		logger.Info("source finished", zap.Int("rows", out.Rows), zap.Int("stored", out.Stored))
	case ctx.Err() != nil && errors.Is(readErr, ctx.Err()):
		logger.Warn("source interrupted", zap.Int("rows", out.Rows))
		out.Error = readErr.Error()
	default:
		metrics.ObserveRow(src.Name, OutcomeSourceFailed)
		logger.Error("source failed; continuing with next source", zap.Error(readErr))
		out.Error = readErr.Error()
	}
	return out
}

// processRow handles one input row and returns how many records it stored.
func (p *Pipeline) processRow(ctx context.Context, r *run, src jobs.SourceDescriptor, index int, row jobs.Row, logger *zap.Logger) int {
	base := row.Posting(src.Name)
	logger = logger.With(zap.Int("row", index))

	postings := []jobs.RawPosting{base}
	if src.NeedsScraping {
		scraped, ok := p.scrape(ctx, r, src, base.URL, logger)
		if !ok {
			return 0
		}
		postings = postings[:0]
		for _, s := range scraped {
			postings = append(postings, jobs.Merge(base, s))
		}
	}

	stored := 0
	for _, posting := range postings {
		if p.emit(ctx, r, src, posting, logger) {
			stored++
		}
	}
	return stored
}

func (p *Pipeline) scrape(ctx context.Context, r *run, src jobs.SourceDescriptor, rawURL string, logger *zap.Logger) ([]jobs.RawPosting, bool) {
	if rawURL == "" {
		r.counts.skipped.Add(1)
		metrics.ObserveRow(src.Name, OutcomeSkipped)
		logger.Warn("row has no url; skipping")
		return nil, false
	}
	logger = logger.With(zap.String("url", rawURL))

	resp, err := p.deps.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		r.counts.fetchFailures.Add(1)
		metrics.ObserveRow(src.Name, OutcomeFetchFailed)
		logger.Error("fetch failed; skipping row", zap.Error(err))
		return nil, false
	}
	r.counts.fetched.Add(1)

	pageURL := resp.URL
	if pageURL == "" {
		pageURL = rawURL
	}
	st, err := p.deps.Extractor.Resolve(pageURL)
	if err != nil {
		r.counts.unsupported.Add(1)
		metrics.ObserveRow(src.Name, OutcomeUnsupported)
		logger.Error("unsupported source; skipping row", zap.String("page_url", pageURL), zap.Error(err))
		return nil, false
	}

	p.archive(ctx, r, resp.Body, logger)

	postings, err := p.deps.Extractor.Parse(st.Name, resp.Body, pageURL)
	if err != nil {
		r.counts.parseFailures.Add(1)
		metrics.ObserveRow(src.Name, OutcomeParseFailed)
		logger.Error("parse failed; skipping row", zap.String("source_type", st.Name), zap.Error(err))
		return nil, false
	}
	if len(postings) == 0 {
		metrics.ObserveRow(src.Name, OutcomeNoListings)
		logger.Info("page has no listings", zap.String("source_type", st.Name))
		return nil, false
	}
	logger.Debug("page parsed", zap.String("source_type", st.Name), zap.Int("postings", len(postings)))
	return postings, true
}

// emit normalizes, deduplicates and stores one posting.
func (p *Pipeline) emit(ctx context.Context, r *run, src jobs.SourceDescriptor, posting jobs.RawPosting, logger *zap.Logger) bool {
	r.counts.postings.Add(1)
	rec, err := p.deps.Normalizer.Normalize(posting)
	if err != nil {
		r.counts.invalid.Add(1)
		metrics.ObserveRow(src.Name, OutcomeInvalid)
		logger.Error("normalize failed; skipping posting", zap.Error(err))
		return false
	}
	logger = logger.With(zap.String("record_id", rec.ID))

	if !r.seen.Accept(rec) {
		r.counts.duplicates.Add(1)
		metrics.ObserveRow(src.Name, OutcomeDuplicate)
		logger.Debug("duplicate record discarded")
		return false
	}
	r.counts.accepted.Add(1)

	if err := p.deps.Store.Store(ctx, rec); err != nil {
		r.counts.storeFailures.Add(1)
		metrics.ObserveRow(src.Name, OutcomeStoreFailed)
		logger.Error("store failed; continuing", zap.Error(err))
		return false
	}
	r.counts.stored.Add(1)
	metrics.ObserveRow(src.Name, OutcomeStored)
	metrics.ObserveStored(rec.Role)
	logger.Debug("record stored", zap.String("role", rec.Role))

	p.publish(ctx, r, rec, logger)
	return true
}

func (p *Pipeline) archive(ctx context.Context, r *run, body []byte, logger *zap.Logger) {
	if p.deps.Blobs == nil {
		return
	}
	hash, err := p.deps.Hasher.Hash(body)
	if err != nil {
		logger.Warn("hash page for archive failed", zap.Error(err))
		return
	}
	uri, err := p.deps.Blobs.PutObject(ctx, p.blobPath(r.id, hash), p.cfg.ContentType, bytes.NewReader(body))
	if err != nil {
		logger.Warn("archive page failed", zap.Error(err))
		return
	}
	r.counts.archived.Add(1)
	logger.Debug("page archived", zap.String("blob_uri", uri))
}

func (p *Pipeline) blobPath(runID, hash string) string {
	prefix := strings.Trim(p.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", runID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, runID, hash)
}

// Announcement is the message published for every stored record.
type Announcement struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	Title       string    `json:"title"`
	Company     string    `json:"company"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	IsRemote    bool      `json:"is_remote"`
	ProcessedAt time.Time `json:"processed_at"`
	RunID       string    `json:"run_id"`
}

func (p *Pipeline) publish(ctx context.Context, r *run, rec jobs.CanonicalRecord, logger *zap.Logger) {
	if p.deps.Publisher == nil || p.cfg.Topic == "" {
		return
	}
	msg := Announcement{
		ID:          rec.ID,
		Role:        rec.Role,
		Title:       rec.Raw.Title,
		Company:     rec.Raw.Company,
		Source:      rec.Raw.SourceName,
		URL:         rec.Raw.URL,
		IsRemote:    rec.Location.IsRemote,
		ProcessedAt: rec.ProcessedAt,
		RunID:       r.id,
	}
	if _, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, msg); err != nil {
		logger.Warn("publish failed", zap.String("topic", p.cfg.Topic), zap.Error(err))
		return
	}
	r.counts.published.Add(1)
}
