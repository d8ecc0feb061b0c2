// Package sqlite provides a single-file record store built on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
	"github.com/JakeFAU/jobpost-ingest/internal/storage"
)

// RecordStore writes canonical records to a SQLite database.
type RecordStore struct {
	db    *sql.DB
	table string
}

// Open opens (or creates) the database at path and ensures the table exists.
func Open(ctx context.Context, path, table string) (*RecordStore, error) {
	table, err := storage.TableName(table)
	if err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &RecordStore{db: db, table: table}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *RecordStore) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	company TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL,
	role TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	raw_data TEXT NOT NULL,
	processed_at TIMESTAMP NOT NULL
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Ping checks the database handle.
func (s *RecordStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *RecordStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Store inserts record unless a row with the same ID exists.
func (s *RecordStore) Store(ctx context.Context, record jobs.CanonicalRecord) error {
	row, err := storage.EncodeRecord(record)
	if err != nil {
		return &jobs.StorageError{RecordID: record.ID, Err: err}
	}
	args := row.Args()
	// JSON columns are TEXT here
	args[3] = string(row.Location)
	args[6] = string(row.RawData)
	query := fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s) VALUES (?,?,?,?,?,?,?,?)`, s.table, storage.Columns)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return &jobs.StorageError{RecordID: record.ID, Err: fmt.Errorf("insert record: %w", err)}
	}
	return nil
}

// Get loads a stored record by ID. It returns sql.ErrNoRows when absent.
func (s *RecordStore) Get(ctx context.Context, id string) (jobs.CanonicalRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, storage.Columns, s.table)
	var (
		row      storage.RecordRow
		location string
		raw      string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&row.ID, &row.Title, &row.Company, &location, &row.Role, &row.Description, &raw, &row.ProcessedAt,
	)
	if err != nil {
		return jobs.CanonicalRecord{}, err
	}
	row.Location = []byte(location)
	row.RawData = []byte(raw)
	return storage.DecodeRecord(row)
}

// Count returns the number of stored records.
func (s *RecordStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}
