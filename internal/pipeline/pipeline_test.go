package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobpost-ingest/internal/hash/sha256"
	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
	"github.com/JakeFAU/jobpost-ingest/internal/normalize"
	"github.com/JakeFAU/jobpost-ingest/internal/parser"
	pubmemory "github.com/JakeFAU/jobpost-ingest/internal/publisher/memory"
	"github.com/JakeFAU/jobpost-ingest/internal/storage/memory"
)

var testNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return testNow }

type staticIDs struct{ id string }

func (s staticIDs) NewID() (string, error) { return s.id, nil }

// sliceReader serves rows per source name; a missing source fails to open.
type sliceReader struct {
	rows map[string][]jobs.Row
}

func (r sliceReader) Read(ctx context.Context, src jobs.SourceDescriptor, fn func(int, jobs.Row) error) error {
	rows, ok := r.rows[src.Name]
	if !ok {
		return fmt.Errorf("open source %s: no such file", src.Name)
	}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(i, row); err != nil {
			return err
		}
	}
	return nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages, calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (jobs.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rawURL]++
	body, ok := f.pages[rawURL]
	if !ok {
		return jobs.Response{}, &jobs.FetchError{URL: rawURL, Attempts: 3, Err: &jobs.StatusError{URL: rawURL, StatusCode: 503}}
	}
	return jobs.Response{URL: rawURL, StatusCode: 200, Body: []byte(body), Attempts: 1}, nil
}

type failingStore struct {
	inner     jobs.Store
	failTitle string
}

func (s failingStore) Store(ctx context.Context, rec jobs.CanonicalRecord) error {
	if rec.Raw.Title == s.failTitle {
		return &jobs.StorageError{RecordID: rec.ID, Err: errors.New("disk full")}
	}
	return s.inner.Store(ctx, rec)
}

type harness struct {
	pipeline  *Pipeline
	store     *memory.RecordStore
	blobs     *memory.BlobStore
	publisher *pubmemory.Publisher
	fetcher   *fakeFetcher
}

func newHarness(t *testing.T, rows map[string][]jobs.Row, pages map[string]string, workers int, wrap func(jobs.Store) jobs.Store) *harness {
	t.Helper()
	roles, err := normalize.NewRoleClassifier([]normalize.RoleRule{
		{Role: "CNA", Patterns: []string{"certified nursing assistant", "cna"}},
		{Role: "HHA", Patterns: []string{"home health aide"}},
	})
	require.NoError(t, err)

	h := &harness{
		store:     memory.NewRecordStore(),
		blobs:     memory.NewBlobStore(),
		publisher: pubmemory.New(),
		fetcher:   newFakeFetcher(pages),
	}
	var store jobs.Store = h.store
	if wrap != nil {
		store = wrap(store)
	}
	h.pipeline, err = New(Deps{
		Reader:     sliceReader{rows: rows},
		Fetcher:    h.fetcher,
		Extractor:  parser.Default(fixedClock{}),
		Normalizer: normalize.New(sha256.New(), fixedClock{}, roles),
		Store:      store,
		Hasher:     sha256.New(),
		Clock:      fixedClock{},
		IDs:        staticIDs{id: "run-1"},
		Blobs:      h.blobs,
		Publisher:  h.publisher,
	}, Config{Workers: workers, BlobPrefix: "/pages/", Topic: "jobs"}, zap.NewNop())
	require.NoError(t, err)
	return h
}

const listingPage = `<html><body>
<div class="job-listing">
  <h2 class="job-title">Certified Nursing Assistant - Night Shift</h2>
  <span class="company-name">Sunrise Care</span>
  <span class="location">Chicago, IL 60601</span>
  <a href="/job/1">View</a>
</div>
<div class="job-listing">
  <h2 class="job-title">Home Health Aide</h2>
  <span class="location">Austin, Texas</span>
</div>
</body></html>`

func TestRunDedupsRepeatedRows(t *testing.T) {
	t.Parallel()

	row := jobs.Row{"title": "Certified Nursing Assistant", "company": "Acme", "location": "Remote - Work from Home"}
	h := newHarness(t, map[string][]jobs.Row{"weekly": {row, row}}, nil, 1, nil)

	stats, err := h.pipeline.Run(context.Background(), []jobs.SourceDescriptor{{Name: "weekly", FilePath: "weekly.csv"}})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Rows)
	require.Equal(t, 1, stats.Accepted)
	require.Equal(t, 1, stats.Duplicates)
	require.Equal(t, 1, stats.Stored)
	require.Equal(t, "run-1", stats.RunID)
	require.Equal(t, []SourceStats{{Name: "weekly", Rows: 2, Stored: 1}}, stats.Sources)

	recs := h.store.Records()
	require.Len(t, recs, 1)
	require.Equal(t, "CNA", recs[0].Role)
	require.True(t, recs[0].Location.IsRemote)
	require.Equal(t, "weekly", recs[0].Raw.SourceName)
	require.Empty(t, h.fetcher.calls, "non-scraping sources never fetch")
}

func TestRunDedupSpansRuns(t *testing.T) {
	t.Parallel()

	rows := []jobs.Row{
		{"title": "Certified Nursing Assistant", "company": "Acme", "location": "Chicago, IL"},
		{"title": "Home Health Aide", "company": "Acme", "location": "Austin, Texas"},
	}
	h := newHarness(t, map[string][]jobs.Row{"weekly": rows}, nil, 2, nil)
	sources := []jobs.SourceDescriptor{{Name: "weekly", FilePath: "weekly.csv"}}

	first, err := h.pipeline.Run(context.Background(), sources)
	require.NoError(t, err)
	require.Equal(t, 2, first.Stored)

	second, err := h.pipeline.Run(context.Background(), sources)
	require.NoError(t, err)
	require.Equal(t, 0, second.Accepted)
	require.Equal(t, 2, second.Duplicates)
	require.Equal(t, 2, h.pipeline.Seen())
	require.Equal(t, 2, h.store.Len())
}

func TestRunScrapesMergesAndSkipsFailures(t *testing.T) {
	t.Parallel()

	rows := []jobs.Row{
		{"url": "https://www.mycnajobs.com/search?p=1", "company": "Row Co", "shift": "night"},
		{"url": "https://www.mycnajobs.com/down"},
		{"url": "https://www.indeed.com/jobs"},
		{"url": ""},
		{"url": "https://www.mycnajobs.com/empty"},
		{"url": "https://www.mycnajobs.com/moved"},
	}
	pages := map[string]string{
		"https://www.mycnajobs.com/search?p=1": listingPage,
		"https://www.indeed.com/jobs":          "<html></html>",
		"https://www.mycnajobs.com/empty":      `<html><body><div class="no-results">none</div></body></html>`,
		"https://www.mycnajobs.com/moved":      `<html><body><div class="new-layout">CNA</div></body></html>`,
	}
	h := newHarness(t, map[string][]jobs.Row{"boards": rows}, pages, 2, nil)

	stats, err := h.pipeline.Run(context.Background(), []jobs.SourceDescriptor{{Name: "boards", NeedsScraping: true}})
	require.NoError(t, err)
	require.Equal(t, 6, stats.Rows)
	require.Equal(t, 4, stats.Fetched)
	require.Equal(t, 1, stats.FetchFailures)
	require.Equal(t, 1, stats.Unsupported)
	require.Equal(t, 1, stats.ParseFailures, "an unrecognized layout is a parse failure")
	require.Equal(t, 1, stats.Skipped)
	require.Equal(t, 2, stats.Postings)
	require.Equal(t, 2, stats.Stored)
	require.Equal(t, 3, stats.Archived, "every supported page is archived")
	require.Equal(t, 2, stats.Published)

	byTitle := map[string]jobs.CanonicalRecord{}
	for _, rec := range h.store.Records() {
		byTitle[rec.Raw.Title] = rec
	}
	cna := byTitle["Certified Nursing Assistant - Night Shift"]
	require.Equal(t, "CNA", cna.Role)
	require.Equal(t, "Sunrise Care", cna.Raw.Company, "scraped values win")
	require.Equal(t, "https://www.mycnajobs.com/job/1", cna.Raw.URL)
	require.Equal(t, "night", cna.Raw.Extra["shift"])
	require.Equal(t, "mycnajobs", cna.Raw.SourceName)

	hha := byTitle["Home Health Aide"]
	require.Equal(t, "HHA", hha.Role)
	require.Equal(t, "", hha.Raw.Company, "an empty scraped value overrides the row")
	require.Equal(t, "", hha.Raw.URL)
	require.Equal(t, "night", hha.Raw.Extra["shift"])
	require.Equal(t, "TX", hha.Location.State)

	for _, p := range h.blobs.Paths() {
		require.True(t, strings.HasPrefix(p, "pages/run-1/"), p)
		require.True(t, strings.HasSuffix(p, ".html"), p)
	}
	msgs := h.publisher.ByTopic("jobs")
	require.Len(t, msgs, 2)
	ann, ok := msgs[0].Payload.(Announcement)
	require.True(t, ok)
	require.Equal(t, "run-1", ann.RunID)
}

func TestRunContinuesAfterStoreFailure(t *testing.T) {
	t.Parallel()

	rows := []jobs.Row{
		{"title": "Broken", "company": "A", "location": "Austin, TX"},
		{"title": "Fine", "company": "B", "location": "Austin, TX"},
	}
	h := newHarness(t, map[string][]jobs.Row{"s": rows}, nil, 1, func(inner jobs.Store) jobs.Store {
		return failingStore{inner: inner, failTitle: "Broken"}
	})

	stats, err := h.pipeline.Run(context.Background(), []jobs.SourceDescriptor{{Name: "s"}})
	require.NoError(t, err)
	require.Equal(t, 1, stats.StoreFailures)
	require.Equal(t, 1, stats.Stored)
	require.Equal(t, 1, h.store.Len())
}

func TestRunContinuesAfterSourceFailure(t *testing.T) {
	t.Parallel()

	rows := map[string][]jobs.Row{"good": {{"title": "Caregiver", "company": "C", "location": "Reno, NV"}}}
	h := newHarness(t, rows, nil, 1, nil)

	stats, err := h.pipeline.Run(context.Background(), []jobs.SourceDescriptor{{Name: "missing"}, {Name: "good"}})
	require.NoError(t, err)
	require.Len(t, stats.Sources, 2)
	require.Contains(t, stats.Sources[0].Error, "no such file")
	require.Equal(t, "good", stats.Sources[1].Name)
	require.Equal(t, 1, stats.Sources[1].Stored)
}

func TestRunPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	rows := map[string][]jobs.Row{"s": {{"title": "CNA", "company": "A", "location": "Austin, TX"}}}
	h := newHarness(t, rows, nil, 1, nil)
	h.publisher.FailNext(1)

	stats, err := h.pipeline.Run(context.Background(), []jobs.SourceDescriptor{{Name: "s"}})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Stored)
	require.Equal(t, 0, stats.Published)
}

func TestRunConcurrentWorkersDedupOnce(t *testing.T) {
	t.Parallel()

	var rows []jobs.Row
	for i := 0; i < 40; i++ {
		rows = append(rows, jobs.Row{
			"title":    "Caregiver",
			"company":  fmt.Sprintf("Agency %d", i%10),
			"location": "Boise, ID",
		})
	}
	h := newHarness(t, map[string][]jobs.Row{"s": rows}, nil, 8, nil)

	stats, err := h.pipeline.Run(context.Background(), []jobs.SourceDescriptor{{Name: "s"}})
	require.NoError(t, err)
	require.Equal(t, 40, stats.Rows)
	require.Equal(t, 10, stats.Accepted)
	require.Equal(t, 30, stats.Duplicates)
	require.Equal(t, 10, h.store.Len())
}

func TestRunCanceledBeforeStart(t *testing.T) {
	t.Parallel()

	rows := map[string][]jobs.Row{"s": {{"title": "CNA", "company": "A", "location": "x"}}}
	h := newHarness(t, rows, nil, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := h.pipeline.Run(ctx, []jobs.SourceDescriptor{{Name: "s"}})
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, stats.Canceled)
	require.Zero(t, stats.Rows)
	require.Zero(t, h.store.Len())
}

func TestNewValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{}, Config{}, nil)
	require.ErrorContains(t, err, "row reader")
}
