package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
)

func testRecord() jobs.CanonicalRecord {
	return jobs.CanonicalRecord{
		ID:       "abc123",
		Role:     "CNA",
		Location: jobs.Location{City: "Chicago", State: "IL", Country: "USA"},
		Raw: jobs.RawPosting{
			Title:       "Certified Nursing Assistant",
			Company:     "Sunrise Care",
			Location:    "Chicago, IL 60601",
			Description: "Night shift",
		},
		ProcessedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestStoreInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "jobs")
	require.NoError(t, err)

	rec := testRecord()
	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(
			rec.ID,
			rec.Raw.Title,
			rec.Raw.Company,
			[]byte(`{"city":"Chicago","state":"IL","country":"USA","is_remote":false}`),
			rec.Role,
			rec.Raw.Description,
			pgxmock.AnyArg(),
			rec.ProcessedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Store(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreWrapsFailures(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO jobs").WillReturnError(boom)

	err = store.Store(context.Background(), testRecord())
	var storageErr *jobs.StorageError
	require.ErrorAs(t, err, &storageErr)
	require.Equal(t, "abc123", storageErr.RecordID)
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())

	err = store.Store(context.Background(), jobs.CanonicalRecord{})
	require.ErrorAs(t, err, &storageErr)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "postings")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS postings").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRecordStoreWithPool(mock, "jobs")
	require.NoError(t, err)

	mock.ExpectExec("SELECT 1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectExec("SELECT 1").WillReturnError(errors.New("connection refused"))
	require.ErrorContains(t, store.Ping(context.Background()), "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRecordStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRecordStoreWithPool(nil, "jobs")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewRecordStoreWithPool(mock, "jobs; drop")
	require.Error(t, err)

	_, err = NewRecordStore(context.Background(), RecordStoreConfig{})
	require.ErrorContains(t, err, "storage.dsn")
}
