package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
)

// Selectors locate listing blocks and the labeled fields inside each block.
// Container is optional; when set, a page without it is a parse error.
// NoResults is optional; when set, a page with zero listings must carry it,
// otherwise the layout is treated as unrecognized.
type Selectors struct {
	Container   string
	NoResults   string
	Listing     string
	Title       string
	Company     string
	Location    string
	Description string
	PostedDate  string
	Link        string
}

// SelectorParser extracts postings with CSS selectors. A missing field inside
// a listing yields "" for that field only.
type SelectorParser struct {
	Selectors Selectors
}

// Parse implements Parser.
func (p SelectorParser) Parse(doc *goquery.Document, st SourceType) ([]jobs.RawPosting, error) {
	sel := p.Selectors
	root := doc.Selection
	if sel.Container != "" {
		root = doc.Find(sel.Container)
		if root.Length() == 0 {
			return nil, &jobs.ParseError{
				SourceType: st.Name,
				Reason:     fmt.Sprintf("listing container %q not found", sel.Container),
			}
		}
	}

	listings := root.Find(sel.Listing)
	if listings.Length() == 0 && sel.NoResults != "" && doc.Find(sel.NoResults).Length() == 0 {
		return nil, &jobs.ParseError{
			SourceType: st.Name,
			Reason:     fmt.Sprintf("no %q listings and no %q marker", sel.Listing, sel.NoResults),
		}
	}
	postings := make([]jobs.RawPosting, 0, listings.Length())
	listings.Each(func(_ int, s *goquery.Selection) {
		postings = append(postings, jobs.RawPosting{
			Title:       text(s, sel.Title),
			Company:     text(s, sel.Company),
			Location:    text(s, sel.Location),
			Description: text(s, sel.Description),
			PostedDate:  text(s, sel.PostedDate),
			URL:         link(s, sel.Link, st.BaseURL),
		})
	})
	return postings, nil
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(s.Find(selector).First().Text())
}

func link(s *goquery.Selection, selector, base string) string {
	if selector == "" {
		selector = "a[href]"
	}
	href, ok := s.Find(selector).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return ""
	}
	return ResolveLink(href, base)
}

// ResolveLink returns href unchanged when it carries a scheme, otherwise
// resolves it against base.
func ResolveLink(href, base string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Host == "" {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
