package pipeline

import (
	"sync/atomic"
	"time"
)

// Row outcomes reported to metrics and counted in Stats.
const (
	OutcomeStored       = "stored"
	OutcomeDuplicate    = "duplicate"
	OutcomeNoListings   = "no_listings"
	OutcomeSkipped      = "skipped"
	OutcomeFetchFailed  = "fetch_failed"
	OutcomeUnsupported  = "unsupported"
	OutcomeParseFailed  = "parse_failed"
	OutcomeInvalid      = "invalid"
	OutcomeStoreFailed  = "store_failed"
	OutcomeSourceFailed = "source_failed"
)

// Stats summarizes one run.
type Stats struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Canceled   bool          `json:"canceled"`
	Sources    []SourceStats `json:"sources"`

	Rows          int `json:"rows"`
	Skipped       int `json:"skipped"`
	Fetched       int `json:"fetched"`
	FetchFailures int `json:"fetch_failures"`
	Unsupported   int `json:"unsupported"`
	ParseFailures int `json:"parse_failures"`
	Postings      int `json:"postings"`
	Invalid       int `json:"invalid"`
	Accepted      int `json:"accepted"`
	Duplicates    int `json:"duplicates"`
	Stored        int `json:"stored"`
	StoreFailures int `json:"store_failures"`
	Archived      int `json:"archived"`
	Published     int `json:"published"`
}

// Duration is the wall time of the run.
func (s Stats) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// SourceStats summarizes one source within a run.
type SourceStats struct {
	Name   string `json:"name"`
	Rows   int    `json:"rows"`
	Stored int    `json:"stored"`
	Error  string `json:"error,omitempty"`
}

type counters struct {
	rows, skipped, fetched, fetchFailures, unsupported, parseFailures atomic.Int64
	postings, invalid, accepted, duplicates, stored, storeFailures    atomic.Int64
	archived, published                                               atomic.Int64
}

func (c *counters) fill(s *Stats) {
	s.Rows = int(c.rows.Load())
	s.Skipped = int(c.skipped.Load())
	s.Fetched = int(c.fetched.Load())
	s.FetchFailures = int(c.fetchFailures.Load())
	s.Unsupported = int(c.unsupported.Load())
	s.ParseFailures = int(c.parseFailures.Load())
	s.Postings = int(c.postings.Load())
	s.Invalid = int(c.invalid.Load())
	s.Accepted = int(c.accepted.Load())
	s.Duplicates = int(c.duplicates.Load())
	s.Stored = int(c.stored.Load())
	s.StoreFailures = int(c.storeFailures.Load())
	s.Archived = int(c.archived.Load())
	s.Published = int(c.published.Load())
}
