package jobs

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a page with whatever rate and retry policy it carries.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// Store persists canonical records.
type Store interface {
	Store(ctx context.Context, record CanonicalRecord) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes record notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RowReader yields the rows of a source in order. fn is called once per row;
// a non-nil return from fn stops iteration and is returned.
type RowReader interface {
	Read(ctx context.Context, source SourceDescriptor, fn func(index int, row Row) error) error
}

// Hasher computes hex digests for record identity and archive keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
