package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobpost-ingest/internal/hash/sha256"
	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type failingHasher struct{}

func (failingHasher) Hash([]byte) (string, error) { return "", errors.New("boom") }

var testRules = []RoleRule{
	{Role: "CNA", Patterns: []string{"certified nursing assistant", "nursing assistant", "cna"}},
	{Role: "HHA", Patterns: []string{"home health aide"}},
	{Role: "RN", Patterns: []string{"registered nurse"}},
}

func newTestNormalizer(t *testing.T, now time.Time) *Normalizer {
	t.Helper()
	roles, err := NewRoleClassifier(testRules)
	require.NoError(t, err)
	return New(sha256.New(), fixedClock{now}, roles)
}

func TestNormalizeCNAExample(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := newTestNormalizer(t, now)
	raw := jobs.RawPosting{
		Title:       "Certified Nursing Assistant",
		Company:     "Sunrise Care",
		Location:    "Chicago, IL 60601",
		Description: "Night shift",
		SourceName:  "weekly",
	}

	rec, err := n.Normalize(raw)
	require.NoError(t, err)
	want, err := sha256.New().Hash([]byte("Certified Nursing Assistant" + "Sunrise Care" + "Chicago, IL 60601"))
	require.NoError(t, err)
	require.Equal(t, want, rec.ID)
	require.Len(t, rec.ID, 64)
	require.Equal(t, "CNA", rec.Role)
	require.Equal(t, jobs.Location{City: "Chicago", State: "IL", Country: "USA"}, rec.Location)
	require.Equal(t, raw, rec.Raw)
	require.Equal(t, now, rec.ProcessedAt)
}

func TestIdentityIgnoresNonKeyFields(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(t, time.Now())
	a := jobs.RawPosting{Title: "Caregiver", Company: "Acme", Location: "Austin, TX", Description: "one", URL: "https://a"}
	b := a
	b.Description = "two"
	b.URL = "https://b"
	b.SourceName = "other"

	ra, err := n.Normalize(a)
	require.NoError(t, err)
	rb, err := n.Normalize(b)
	require.NoError(t, err)
	require.Equal(t, ra.ID, rb.ID)

	c := a
	c.Company = "Acme Inc"
	rc, err := n.Normalize(c)
	require.NoError(t, err)
	require.NotEqual(t, ra.ID, rc.ID)
}

func TestIdentityKeepsSurroundingWhitespace(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(t, time.Now())
	tests := []struct {
		name string
		a, b jobs.Row
		same bool
	}{
		{"trailing space in title", jobs.Row{"title": "Nurse "}, jobs.Row{"title": "Nurse"}, false},
		{"leading space in company", jobs.Row{"title": "Nurse", "company": " Acme"}, jobs.Row{"title": "Nurse", "company": "Acme"}, false},
		{"url padding is not identity", jobs.Row{"title": "Nurse", "url": " https://a "}, jobs.Row{"title": "Nurse", "url": "https://a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ra, err := n.Normalize(tt.a.Posting("weekly"))
			require.NoError(t, err)
			rb, err := n.Normalize(tt.b.Posting("weekly"))
			require.NoError(t, err)
			if tt.same {
				require.Equal(t, ra.ID, rb.ID)
			} else {
				require.NotEqual(t, ra.ID, rb.ID)
			}
		})
	}
}

func TestNormalizeHashError(t *testing.T) {
	t.Parallel()

	roles, err := NewRoleClassifier(testRules)
	require.NoError(t, err)
	n := New(failingHasher{}, fixedClock{}, roles)
	_, err = n.Normalize(jobs.RawPosting{Title: "x"})
	require.ErrorContains(t, err, "boom")
}

func TestRoleClassifier(t *testing.T) {
	t.Parallel()

	c, err := NewRoleClassifier(testRules)
	require.NoError(t, err)

	tests := []struct {
		name, title, description, want string
	}{
		{"title match", "Certified Nursing Assistant", "", "CNA"},
		{"case insensitive", "HOME HEALTH AIDE", "", "HHA"},
		{"description match", "Night Shift Opening", "Registered Nurse needed", "RN"},
		{"first declared wins", "Registered Nurse / CNA", "", "CNA"},
		{"no match", "Forklift Operator", "warehouse", RoleOther},
		{"pattern split across fields", "Certified Nursing", "Assistant wanted", RoleOther},
		{"aide split across fields", "Home Health", "Aide", RoleOther},
		{"empty", "", "", RoleOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, c.Classify(tt.title, tt.description))
		})
	}
	require.Equal(t, []string{"CNA", "HHA", "RN"}, c.Roles())
}

func TestNewRoleClassifierValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRoleClassifier([]RoleRule{{Patterns: []string{"x"}}})
	require.Error(t, err)
	_, err = NewRoleClassifier([]RoleRule{{Role: "X", Patterns: []string{" ", ""}}})
	require.Error(t, err)

	c, err := NewRoleClassifier(nil)
	require.NoError(t, err)
	require.Equal(t, RoleOther, c.Classify("cna", ""))
}

func TestParseLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want jobs.Location
	}{
		{"Chicago, IL 60601", jobs.Location{City: "Chicago", State: "IL", Country: "USA"}},
		{"Remote - Work from Home", jobs.Location{Country: "USA", IsRemote: true}},
		{"Austin, Texas", jobs.Location{City: "Austin", State: "TX", Country: "USA"}},
		{"Charleston, West Virginia", jobs.Location{City: "Charleston", State: "WV", Country: "USA"}},
		{"Wichita, Kansas", jobs.Location{City: "Wichita", State: "KS", Country: "USA"}},
		{"Kansas City, MO 64101-1234", jobs.Location{City: "Kansas City", State: "MO", Country: "USA"}},
		{"Denver CO80202", jobs.Location{City: "Denver CO", State: "CO", Country: "USA"}},
		{"Phoenix, AZ (Remote)", jobs.Location{City: "Phoenix", State: "AZ", Country: "USA", IsRemote: true}},
		{"Springfield", jobs.Location{City: "Springfield", Country: "USA"}},
		{"  ", jobs.Location{}},
		{"", jobs.Location{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, ParseLocation(tt.in))
		})
	}
}

func TestIsRemote(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"REMOTE", "Virtual role", "WFH ok", "telecommute", "work from home"} {
		require.True(t, IsRemote(s), s)
	}
	require.False(t, IsRemote("Chicago, IL"))
}
