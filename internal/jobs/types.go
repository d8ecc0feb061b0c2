package jobs

import (
	"net/http"
	"strings"
	"time"
)

// Column names recognized on tabular input rows.
const (
	ColumnTitle       = "title"
	ColumnCompany     = "company"
	ColumnLocation    = "location"
	ColumnDescription = "description"
	ColumnPostedDate  = "posted_date"
	ColumnURL         = "url"
)

// RawPosting holds unvalidated posting fields read from a row or scraped from a page.
type RawPosting struct {
	Title       string            `json:"title"`
	Company     string            `json:"company"`
	Location    string            `json:"location"`
	Description string            `json:"description"`
	PostedDate  string            `json:"posted_date"`
	URL         string            `json:"url"`
	SourceName  string            `json:"source"`
	FetchedAt   time.Time         `json:"fetched_at"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Location is the structured form of a free-text posting location.
type Location struct {
	City     string `json:"city"`
	State    string `json:"state"`
	Country  string `json:"country"`
	IsRemote bool   `json:"is_remote"`
}

// CanonicalRecord is the normalized unit handed to storage.
type CanonicalRecord struct {
	ID          string     `json:"id"`
	Role        string     `json:"role"`
	Location    Location   `json:"location"`
	Raw         RawPosting `json:"raw_data"`
	ProcessedAt time.Time  `json:"processed_at"`
}

// SourceDescriptor names one tabular input and whether its rows point at pages to scrape.
type SourceDescriptor struct {
	Name          string `mapstructure:"name" yaml:"name" json:"name"`
	FilePath      string `mapstructure:"file_path" yaml:"file_path" json:"file_path"`
	NeedsScraping bool   `mapstructure:"needs_scraping" yaml:"needs_scraping" json:"needs_scraping"`
}

// Row is one tabular input row keyed by column name.
type Row map[string]string

// Get returns the value of column exactly as read, or "".
func (r Row) Get(column string) string {
	return r[column]
}

// Posting converts the row into a RawPosting. Text fields keep their raw
// value since they feed identity; only the URL is trimmed. Columns that do
// not map to a posting field are kept in Extra.
func (r Row) Posting(sourceName string) RawPosting {
	p := RawPosting{
		Title:       r.Get(ColumnTitle),
		Company:     r.Get(ColumnCompany),
		Location:    r.Get(ColumnLocation),
		Description: r.Get(ColumnDescription),
		PostedDate:  r.Get(ColumnPostedDate),
		URL:         strings.TrimSpace(r.Get(ColumnURL)),
		SourceName:  sourceName,
	}
	for k, v := range r {
		switch k {
		case ColumnTitle, ColumnCompany, ColumnLocation, ColumnDescription, ColumnPostedDate, ColumnURL:
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]string)
		}
		p.Extra[k] = v
	}
	return p
}

// Merge overlays scraped on top of base. Every field the parser extracts
// comes from scraped, empty or not; base only contributes Extra columns,
// which scraped values override key by key.
func Merge(base, scraped RawPosting) RawPosting {
	out := scraped
	if len(base.Extra) > 0 || len(scraped.Extra) > 0 {
		out.Extra = make(map[string]string, len(base.Extra)+len(scraped.Extra))
		for k, v := range base.Extra {
			out.Extra[k] = v
		}
		for k, v := range scraped.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Response is the successful outcome of a fetch.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Attempts   int
}
