// Package normalize turns raw postings into canonical records: a content
// identity, a role label and a structured location.
package normalize
