// Package parser maps page URLs to named source types and extracts raw
// postings from their markup.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
)

// Parser extracts postings from one fetched page.
type Parser interface {
	Parse(doc *goquery.Document, st SourceType) ([]jobs.RawPosting, error)
}

// SourceType is a named extraction strategy bound to host patterns.
type SourceType struct {
	Name         string
	HostPatterns []string
	// BaseURL resolves relative listing links. Empty falls back to the page URL.
	BaseURL string
	Parser  Parser
}

// Registry holds source types in registration order. Resolution picks the
// first type with a host pattern contained in the URL host.
type Registry struct {
	mu     sync.RWMutex
	types  []SourceType
	byName map[string]int
	clock  jobs.Clock
}

// NewRegistry creates an empty Registry.
func NewRegistry(clock jobs.Clock) *Registry {
	return &Registry{
		byName: make(map[string]int),
		clock:  clock,
	}
}

// Register adds a source type. Names are unique.
func (r *Registry) Register(st SourceType) error {
	name := strings.TrimSpace(st.Name)
	if name == "" {
		return fmt.Errorf("source type name is required")
	}
	if st.Parser == nil {
		return fmt.Errorf("source type %q has no parser", name)
	}
	if len(st.HostPatterns) == 0 {
		return fmt.Errorf("source type %q has no host patterns", name)
	}
	st.Name = name
	st.HostPatterns = normalizePatterns(st.HostPatterns)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("source type %q already registered", name)
	}
	r.byName[name] = len(r.types)
	r.types = append(r.types, st)
	return nil
}

// AddHostPatterns binds extra host patterns to an already-registered type.
func (r *Registry) AddHostPatterns(name string, patterns ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("unknown source type %q", name)
	}
	st := r.types[idx]
	st.HostPatterns = normalizePatterns(append(append([]string(nil), st.HostPatterns...), patterns...))
	r.types[idx] = st
	return nil
}

// Resolve returns the source type for rawURL or *jobs.UnsupportedSourceError.
func (r *Registry) Resolve(rawURL string) (SourceType, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return SourceType{}, &jobs.UnsupportedSourceError{URL: rawURL}
	}
	host := strings.ToLower(u.Host)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, st := range r.types {
		for _, pattern := range st.HostPatterns {
			if strings.Contains(host, pattern) {
				return st, nil
			}
		}
	}
	return SourceType{}, &jobs.UnsupportedSourceError{URL: rawURL}
}

// Parse runs the named type's parser over body. Every posting is stamped with
// the type name and the current time.
func (r *Registry) Parse(name string, body []byte, responseURL string) ([]jobs.RawPosting, error) {
	st, ok := r.lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown source type %q", name)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &jobs.ParseError{SourceType: name, Reason: "empty response body"}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &jobs.ParseError{SourceType: name, Reason: fmt.Sprintf("read html: %v", err)}
	}
	if st.BaseURL == "" {
		st.BaseURL = responseURL
	}
	postings, err := st.Parser.Parse(doc, st)
	if err != nil {
		return nil, err
	}
	now := r.clock.Now()
	for i := range postings {
		postings[i].SourceName = st.Name
		postings[i].FetchedAt = now
	}
	return postings, nil
}

// Types returns a snapshot of the registered types in resolution order.
func (r *Registry) Types() []SourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SourceType, len(r.types))
	copy(out, r.types)
	return out
}

func (r *Registry) lookup(name string) (SourceType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	if !ok {
		return SourceType{}, false
	}
	return r.types[idx], true
}

func normalizePatterns(patterns []string) []string {
	seen := make(map[string]struct{}, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
