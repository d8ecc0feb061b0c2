// Package source reads tabular job inputs (CSV and XLSX) row by row.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
)

// MissingColumnsError is returned when a source header lacks required columns.
type MissingColumnsError struct {
	Source  string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("source %s is missing required columns: %s", e.Source, strings.Join(e.Columns, ", "))
}

// FileReader implements jobs.RowReader for local .csv and .xlsx files.
type FileReader struct {
	required []string
}

// NewFileReader returns a reader that enforces required header columns.
// Sources that need scraping must additionally carry a url column.
func NewFileReader(required []string) *FileReader {
	cols := make([]string, 0, len(required))
	for _, c := range required {
		if c = normalizeHeader(c); c != "" {
			cols = append(cols, c)
		}
	}
	return &FileReader{required: cols}
}

// Read streams the rows of source to fn. The header row is consumed for
// column names and is not passed to fn; index counts data rows from zero.
func (r *FileReader) Read(ctx context.Context, source jobs.SourceDescriptor, fn func(index int, row jobs.Row) error) error {
	var next func() ([]string, error)
	switch ext := strings.ToLower(filepath.Ext(source.FilePath)); ext {
	case ".csv":
		f, err := os.Open(source.FilePath)
		if err != nil {
			return fmt.Errorf("open source %s: %w", source.Name, err)
		}
		defer f.Close()
		cr := csv.NewReader(f)
		cr.FieldsPerRecord = -1
		next = cr.Read
	case ".xlsx":
		wb, err := excelize.OpenFile(source.FilePath)
		if err != nil {
			return fmt.Errorf("open source %s: %w", source.Name, err)
		}
		defer wb.Close()
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return fmt.Errorf("source %s has no sheets", source.Name)
		}
		rows, err := wb.Rows(sheets[0])
		if err != nil {
			return fmt.Errorf("read sheet %s: %w", sheets[0], err)
		}
		defer rows.Close()
		next = func() ([]string, error) {
			if !rows.Next() {
				if err := rows.Error(); err != nil {
					return nil, err
				}
				return nil, io.EOF
			}
			return rows.Columns()
		}
	default:
		return fmt.Errorf("source %s: unsupported file type %q", source.Name, ext)
	}
	return r.stream(ctx, source, next, fn)
}

func (r *FileReader) stream(ctx context.Context, source jobs.SourceDescriptor, next func() ([]string, error), fn func(int, jobs.Row) error) error {
	header, err := next()
	if errors.Is(err, io.EOF) {
		return r.checkHeader(source, nil)
	}
	if err != nil {
		return fmt.Errorf("read header of %s: %w", source.Name, err)
	}
	for i := range header {
		header[i] = normalizeHeader(header[i])
	}
	if err := r.checkHeader(source, header); err != nil {
		return err
	}

	for index := 0; ; {
		if err := ctx.Err(); err != nil {
			return err
		}
		cells, err := next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s row %d: %w", source.Name, index, err)
		}
		if blank(cells) {
			continue
		}
		row := make(jobs.Row, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(cells) {
				row[col] = cells[i]
			} else {
				row[col] = ""
			}
		}
		if err := fn(index, row); err != nil {
			return err
		}
		index++
	}
}

func (r *FileReader) checkHeader(source jobs.SourceDescriptor, header []string) error {
	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[h] = struct{}{}
	}
	required := r.required
	if source.NeedsScraping && !slices.Contains(required, jobs.ColumnURL) {
		required = append(append([]string(nil), required...), jobs.ColumnURL)
	}
	var missing []string
	for _, col := range required {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Source: source.Name, Columns: missing}
	}
	return nil
}

func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	return strings.ToLower(strings.TrimSpace(s))
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
