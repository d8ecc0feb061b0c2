// Package storage holds the pieces shared by the record store and blob store
// implementations.
package storage

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
)

// DefaultTable is used when no table name is configured.
const DefaultTable = "jobs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TableName returns table, or DefaultTable when empty, after checking it is a
// bare SQL identifier.
func TableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// RecordRow is the column layout every SQL record store writes.
type RecordRow struct {
	ID          string
	Title       string
	Company     string
	Location    []byte
	Role        string
	Description string
	RawData     []byte
	ProcessedAt time.Time
}

// Args returns the row values in column order.
func (r RecordRow) Args() []any {
	return []any{r.ID, r.Title, r.Company, r.Location, r.Role, r.Description, r.RawData, r.ProcessedAt}
}

// Columns lists the column names matching Args.
const Columns = "id, title, company, location, role, description, raw_data, processed_at"

// EncodeRecord flattens rec into a RecordRow, JSON-encoding the structured
// location and the raw posting.
func EncodeRecord(rec jobs.CanonicalRecord) (RecordRow, error) {
	if rec.ID == "" {
		return RecordRow{}, fmt.Errorf("record id is required")
	}
	loc, err := json.Marshal(rec.Location)
	if err != nil {
		return RecordRow{}, fmt.Errorf("marshal location: %w", err)
	}
	raw, err := json.Marshal(rec.Raw)
	if err != nil {
		return RecordRow{}, fmt.Errorf("marshal raw data: %w", err)
	}
	return RecordRow{
		ID:          rec.ID,
		Title:       rec.Raw.Title,
		Company:     rec.Raw.Company,
		Location:    loc,
		Role:        rec.Role,
		Description: rec.Raw.Description,
		RawData:     raw,
		ProcessedAt: rec.ProcessedAt.UTC(),
	}, nil
}

// DecodeRecord rebuilds a CanonicalRecord from stored columns.
func DecodeRecord(row RecordRow) (jobs.CanonicalRecord, error) {
	rec := jobs.CanonicalRecord{ID: row.ID, Role: row.Role, ProcessedAt: row.ProcessedAt}
	if len(row.Location) > 0 {
		if err := json.Unmarshal(row.Location, &rec.Location); err != nil {
			return jobs.CanonicalRecord{}, fmt.Errorf("decode location: %w", err)
		}
	}
	if len(row.RawData) > 0 {
		if err := json.Unmarshal(row.RawData, &rec.Raw); err != nil {
			return jobs.CanonicalRecord{}, fmt.Errorf("decode raw data: %w", err)
		}
	}
	return rec, nil
}
