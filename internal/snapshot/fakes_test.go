package snapshot

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/newgene/biohub/internal/build"
	"github.com/newgene/biohub/internal/search"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memBackend is an in-memory build.Backend.
type memBackend struct {
	mu      sync.Mutex
	records map[string]build.Record
}

func newMemBackend(records ...build.Record) *memBackend {
	b := &memBackend{records: map[string]build.Record{}}
	for _, rec := range records {
		b.records[rec.ID()] = rec
	}
	return b
}

func (b *memBackend) FindOne(_ context.Context, id string) (build.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[id]
	if !ok {
		return nil, build.ErrNotFound
	}
	return rec, nil
}

func (b *memBackend) FindByIndexEnv(_ context.Context, index, env string) (build.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range b.records {
		info, ok := rec.Indices()[index]
		if ok && info["environment"] == env {
			return rec, nil
		}
	}
	return nil, build.ErrNotFound
}

func (b *memBackend) All(_ context.Context) ([]build.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]build.Record, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, rec)
	}
	return out, nil
}

func (b *memBackend) SaveJobs(_ context.Context, id string, jobs []map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	anyJobs := make([]any, len(jobs))
	for i, j := range jobs {
		anyJobs[i] = j
	}
	b.records[id]["jobs"] = anyJobs
	return nil
}

func (b *memBackend) SetIndexInfo(_ context.Context, id, index string, info map[string]any) error {
	return b.setKeyed(id, "index", index, info)
}

func (b *memBackend) SetSnapshotInfo(_ context.Context, id, snapshot string, info map[string]any) error {
	return b.setKeyed(id, "snapshot", snapshot, info)
}

func (b *memBackend) setKeyed(id, field, key string, info map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[id]
	if !ok {
		return build.ErrNotFound
	}
	section, _ := rec[field].(map[string]any)
	if section == nil {
		section = map[string]any{}
	}
	section[key] = info
	rec[field] = section
	return nil
}

func (b *memBackend) AddPending(_ context.Context, id, action string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[id]
	if !ok {
		return build.ErrNotFound
	}
	pending, _ := rec["pending"].([]any)
	for _, p := range pending {
		if p == action {
			return nil
		}
	}
	rec["pending"] = append(pending, action)
	return nil
}

// memStore is an in-memory storage.ObjectStore.
type memStore struct {
	mu      sync.Mutex
	buckets map[string]string // name → acl
}

func newMemStore() *memStore {
	return &memStore{buckets: map[string]string{}}
}

func (s *memStore) BucketExists(_ context.Context, bucket string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.buckets[bucket]
	return ok, nil
}

func (s *memStore) CreateBucket(_ context.Context, bucket, acl string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[bucket] = acl
	return nil
}

// memClient is an in-memory search.Client covering the repository and
// snapshot surface; index and document operations are inert.
type memClient struct {
	mu      sync.Mutex
	indices map[string]bool
	repos   map[string]bool
	// snapshotStates scripts successive state responses per repo/snapshot
	// key; the last state repeats.
	snapshotStates map[string][]string
	snapshots      map[string]bool
	stateCalls     int
}

func newMemClient() *memClient {
	return &memClient{
		indices:        map[string]bool{},
		repos:          map[string]bool{},
		snapshotStates: map[string][]string{},
		snapshots:      map[string]bool{},
	}
}

func (c *memClient) IndexExists(_ context.Context, index string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indices[index], nil
}

func (c *memClient) CreateIndex(_ context.Context, index string, _, _ map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indices[index] = true
	return nil
}

func (c *memClient) DeleteIndex(_ context.Context, index string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.indices, index)
	return nil
}

func (c *memClient) Aliases(_ context.Context) (map[string][]string, error) {
	return map[string][]string{}, nil
}

func (c *memClient) RepositoryExists(_ context.Context, repository string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repos[repository], nil
}

func (c *memClient) CreateRepository(_ context.Context, repository, _ string, _ map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repos[repository] = true
	return nil
}

func (c *memClient) DeleteRepository(_ context.Context, repository string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.repos, repository)
	return nil
}

func (c *memClient) CreateSnapshot(_ context.Context, repository, snapshot, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[repository+"/"+snapshot] = true
	return nil
}

func (c *memClient) GetSnapshotState(_ context.Context, repository, snapshot string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := repository + "/" + snapshot
	if !c.snapshots[key] {
		return "", search.ErrNotFound
	}
	c.stateCalls++
	states := c.snapshotStates[key]
	if len(states) == 0 {
		return search.StateSuccess, nil
	}
	state := states[0]
	if len(states) > 1 {
		c.snapshotStates[key] = states[1:]
	}
	return state, nil
}

func (c *memClient) DeleteSnapshot(_ context.Context, repository, snapshot string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, repository+"/"+snapshot)
	return nil
}

func (c *memClient) MultiGet(_ context.Context, _ string, _ []string) (map[string]map[string]any, error) {
	return map[string]map[string]any{}, nil
}

func (c *memClient) Bulk(_ context.Context, _ string, docs []search.Document) (int, error) {
	return len(docs), nil
}
