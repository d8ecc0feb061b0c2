package parser

import "github.com/JakeFAU/jobpost-ingest/internal/jobs"

// MyCNAJobs is the built-in myCNAjobs source type.
func MyCNAJobs() SourceType {
	return SourceType{
		Name:         "mycnajobs",
		HostPatterns: []string{"mycnajobs.com"},
		BaseURL:      "https://www.mycnajobs.com",
		Parser: SelectorParser{Selectors: Selectors{
			NoResults:   "div.no-results, div.no-jobs",
			Listing:     "div.job-listing",
			Title:       "h2.job-title",
			Company:     "span.company-name",
			Location:    "span.location",
			Description: "div.description",
			PostedDate:  "span.posted-date",
			Link:        "a[href]",
		}},
	}
}

// Default returns a registry with every built-in source type.
func Default(clock jobs.Clock) *Registry {
	r := NewRegistry(clock)
	// Built-ins are static and distinct; Register cannot fail here.
	_ = r.Register(MyCNAJobs())
	return r
}
