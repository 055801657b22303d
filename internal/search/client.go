// Package search defines the contract this hub holds against the search
// engine: index lifecycle, snapshot repository and snapshot operations, and
// the minimal document operations the batch indexing task needs.
package search

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an index, repository or snapshot is absent.
var ErrNotFound = errors.New("search: not found")

// Snapshot lifecycle states reported by the engine. NA and Missing are
// synthesized client-side: NA when the repository itself is absent, Missing
// when the repository exists but holds no snapshot of the requested name.
const (
	StateNA         = "N/A"
	StateMissing    = "MISSING"
	StateInProgress = "IN_PROGRESS"
	StateSuccess    = "SUCCESS"
	StateFailed     = "FAILED"
	StatePartial    = "PARTIAL"
)

// Document is one document addressed by id within an index.
type Document struct {
	ID     string
	Source map[string]any
}

// Client is the search-engine surface consumed by the indexing and snapshot
// orchestrators. Implementations must translate absence into ErrNotFound.
type Client interface {
	// Index lifecycle.
	IndexExists(ctx context.Context, index string) (bool, error)
	CreateIndex(ctx context.Context, index string, settings, mappings map[string]any) error
	// DeleteIndex with ignoreUnavailable set succeeds when the index is absent.
	DeleteIndex(ctx context.Context, index string, ignoreUnavailable bool) error
	// Aliases lists existing indices and their alias names.
	Aliases(ctx context.Context) (map[string][]string, error)

	// Snapshot repository lifecycle.
	RepositoryExists(ctx context.Context, repository string) (bool, error)
	CreateRepository(ctx context.Context, repository, repoType string, settings map[string]any) error
	DeleteRepository(ctx context.Context, repository string) error

	// Snapshot lifecycle. GetSnapshotState returns ErrNotFound when the
	// repository has no snapshot of that name.
	CreateSnapshot(ctx context.Context, repository, snapshot, index string) error
	GetSnapshotState(ctx context.Context, repository, snapshot string) (string, error)
	DeleteSnapshot(ctx context.Context, repository, snapshot string) error

	// Document operations used by the dispatched batch task.
	MultiGet(ctx context.Context, index string, ids []string) (map[string]map[string]any, error)
	Bulk(ctx context.Context, index string, docs []Document) (int, error)
}
