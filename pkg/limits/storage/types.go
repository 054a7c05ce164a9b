package storage

import (
	"context"
	"sort"
	"time"

	"mercator-hq/pacer/pkg/route"
)

// Backend persists route-to-bucket assignments between runs.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Save upserts entries keyed by route. A zero LastSeen is set to now.
	Save(ctx context.Context, entries []*Assignment) error

	// Load returns the entry for k, or nil if none exists.
	Load(ctx context.Context, k route.Key) (*Assignment, error)

	// Delete removes the entry for k. No-op if absent.
	Delete(ctx context.Context, k route.Key) error

	// List returns every entry ordered by route key.
	List(ctx context.Context) ([]*Assignment, error)

	// Cleanup removes entries last seen before olderThan and returns how
	// many were removed.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases resources. The backend must not be used afterwards.
	Close() error
}

// Assignment records that a route was last reported in a bucket.
type Assignment struct {
	// Route is the classified route key.
	Route route.Key

	// Bucket is the server-assigned bucket identity.
	Bucket string

	// Limit is the bucket's last reported window size.
	Limit int

	// LastSeen is when the assignment was last snapshotted.
	LastSeen time.Time
}

func validate(a *Assignment) error {
	if a == nil {
		return errNilAssignment
	}
	if a.Bucket == "" {
		return errEmptyBucket
	}
	if a.Limit < 0 {
		return errNegativeLimit
	}
	return nil
}

func sortAssignments(entries []*Assignment) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Route < entries[j].Route })
}
