package normalize

import (
	"fmt"

	"github.com/JakeFAU/jobpost-ingest/internal/jobs"
)

// Normalizer builds canonical records. It keeps no state between calls, so
// duplicate detection happens elsewhere.
type Normalizer struct {
	hasher jobs.Hasher
	clock  jobs.Clock
	roles  *RoleClassifier
}

// New wires a Normalizer.
func New(hasher jobs.Hasher, clock jobs.Clock, roles *RoleClassifier) *Normalizer {
	return &Normalizer{hasher: hasher, clock: clock, roles: roles}
}

// Identity returns the content hash that keys a posting.
func (n *Normalizer) Identity(p jobs.RawPosting) (string, error) {
	id, err := n.hasher.Hash([]byte(p.Title + p.Company + p.Location))
	if err != nil {
		return "", fmt.Errorf("hash posting identity: %w", err)
	}
	return id, nil
}

// Normalize converts p into a CanonicalRecord. The raw posting is retained as-is.
func (n *Normalizer) Normalize(p jobs.RawPosting) (jobs.CanonicalRecord, error) {
	id, err := n.Identity(p)
	if err != nil {
		return jobs.CanonicalRecord{}, err
	}
	return jobs.CanonicalRecord{
		ID:          id,
		Role:        n.roles.Classify(p.Title, p.Description),
		Location:    ParseLocation(p.Location),
		Raw:         p,
		ProcessedAt: n.clock.Now(),
	}, nil
}
