package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
)

func TestRecordStore(t *testing.T) {
	t.Parallel()

	store := NewRecordStore()
	ctx := context.Background()
	require.NoError(t, store.Store(ctx, jobs.CanonicalRecord{ID: "b", Role: "CNA"}))
	require.NoError(t, store.Store(ctx, jobs.CanonicalRecord{ID: "a", Role: "Other"}))
	require.NoError(t, store.Store(ctx, jobs.CanonicalRecord{ID: "b", Role: "RN"}))

	require.Equal(t, 2, store.Len())
	rec, ok := store.Get("b")
	require.True(t, ok)
	require.Equal(t, "CNA", rec.Role, "first write wins")
	require.Equal(t, []string{"b", "a"}, []string{store.Records()[0].ID, store.Records()[1].ID})
	require.Equal(t, []string{"a", "b"}, store.IDs())
	require.Equal(t, map[string]int{"CNA": 1, "Other": 1}, store.CountByRole())

	var storageErr *jobs.StorageError
	require.ErrorAs(t, store.Store(ctx, jobs.CanonicalRecord{}), &storageErr)
}
