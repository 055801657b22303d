package build

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no build record matches.
var ErrNotFound = errors.New("build: not found")

// Backend is the persistent build store consumed by the orchestrators and
// the step status registrar.
type Backend interface {
	// FindOne loads the build record by id; ErrNotFound when absent.
	FindOne(ctx context.Context, id string) (Record, error)
	// FindByIndexEnv loads the build record that created the named index
	// in the named indexing environment.
	FindByIndexEnv(ctx context.Context, index, env string) (Record, error)
	// All returns every build record. Used by stale-status pruning.
	All(ctx context.Context) ([]Record, error)

	// SaveJobs replaces the build's step status entries.
	SaveJobs(ctx context.Context, id string, jobs []map[string]any) error
	// SetIndexInfo merges creation info for one index under the build.
	SetIndexInfo(ctx context.Context, id, index string, info map[string]any) error
	// SetSnapshotInfo merges result info for one snapshot under the build.
	SetSnapshotInfo(ctx context.Context, id, snapshot string, info map[string]any) error
	// AddPending adds an action to the build's pending set (idempotent).
	AddPending(ctx context.Context, id, action string) error
}

// CollectionReader feeds document ids and documents out of a source
// collection.
type CollectionReader interface {
	CountIDs(ctx context.Context, collection string) (int, error)
	// IDBatches streams the collection's ids in batches of batchSize.
	IDBatches(collection string, batchSize int) BatchSource
	// FetchDocs loads the documents for a batch of ids, keyed by id.
	FetchDocs(ctx context.Context, collection string, ids []string) (map[string]map[string]any, error)
}

// BatchSource produces successive id batches. Next returns nil when the
// source is exhausted.
type BatchSource interface {
	Next(ctx context.Context) ([]string, error)
}

// SliceBatches adapts a caller-supplied id list into a BatchSource.
func SliceBatches(ids []string, batchSize int) BatchSource {
	return &sliceBatches{ids: ids, size: batchSize}
}

type sliceBatches struct {
	ids  []string
	size int
}

func (s *sliceBatches) Next(_ context.Context) ([]string, error) {
	if len(s.ids) == 0 {
		return nil, nil
	}
	n := s.size
	if n > len(s.ids) {
		n = len(s.ids)
	}
	batch := s.ids[:n]
	s.ids = s.ids[n:]
	return batch, nil
}
