package index

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/newgene/biohub/internal/build"
	"github.com/newgene/biohub/internal/search"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBackend is an in-memory build.Backend.
type fakeBackend struct {
	mu      sync.Mutex
	records map[string]build.Record
}

func newFakeBackend(records ...build.Record) *fakeBackend {
	b := &fakeBackend{records: map[string]build.Record{}}
	for _, rec := range records {
		b.records[rec.ID()] = rec
	}
	return b
}

func (b *fakeBackend) FindOne(_ context.Context, id string) (build.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[id]
	if !ok {
		return nil, build.ErrNotFound
	}
	return rec, nil
}

func (b *fakeBackend) FindByIndexEnv(_ context.Context, index, env string) (build.Record, error) {
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

func (b *fakeBackend) All(_ context.Context) ([]build.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]build.Record, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, rec)
	}
	return out, nil
}

func (b *fakeBackend) SaveJobs(_ context.Context, id string, jobs []map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	anyJobs := make([]any, len(jobs))
	for i, j := range jobs {
		anyJobs[i] = j
	}
	b.records[id]["jobs"] = anyJobs
	return nil
}

func (b *fakeBackend) SetIndexInfo(_ context.Context, id, index string, info map[string]any) error {
	return b.setKeyed(id, "index", index, info)
}

func (b *fakeBackend) SetSnapshotInfo(_ context.Context, id, snapshot string, info map[string]any) error {
	return b.setKeyed(id, "snapshot", snapshot, info)
}

func (b *fakeBackend) setKeyed(id, field, key string, info map[string]any) error {
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

func (b *fakeBackend) AddPending(_ context.Context, id, action string) error {
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

// steps returns the recorded (step, status) pairs of a build, in order.
func (b *fakeBackend) steps(id string) [][2]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out [][2]string
	for _, entry := range b.records[id].Jobs() {
		step, _ := entry["step"].(string)
		status, _ := entry["status"].(string)
		out = append(out, [2]string{step, status})
	}
	return out
}

// fakeReader serves id batches and documents from in-memory collections.
type fakeReader struct {
	collections map[string][]string
}

func (r *fakeReader) CountIDs(_ context.Context, collection string) (int, error) {
	return len(r.collections[collection]), nil
}

func (r *fakeReader) IDBatches(collection string, batchSize int) build.BatchSource {
	ids := append([]string(nil), r.collections[collection]...)
	sort.Strings(ids)
	return build.SliceBatches(ids, batchSize)
}

func (r *fakeReader) FetchDocs(_ context.Context, collection string, ids []string) (map[string]map[string]any, error) {
	out := map[string]map[string]any{}
	for _, id := range ids {
		out[id] = map[string]any{"_id": id}
	}
	return out, nil
}

// fakeClient is an in-memory search.Client.
type fakeClient struct {
	mu      sync.Mutex
	indices map[string]bool
	created int
	deleted int

	repos map[string]bool
	// snapshotStates scripts successive GetSnapshotState responses per
	// repo/snapshot key.
	snapshotStates map[string][]string
	snapshots      map[string]bool
}

func newFakeClient(indices ...string) *fakeClient {
	c := &fakeClient{
		indices:        map[string]bool{},
		repos:          map[string]bool{},
		snapshotStates: map[string][]string{},
		snapshots:      map[string]bool{},
	}
	for _, index := range indices {
		c.indices[index] = true
	}
	return c
}

func (c *fakeClient) IndexExists(_ context.Context, index string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indices[index], nil
}

func (c *fakeClient) CreateIndex(_ context.Context, index string, _, _ map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indices[index] = true
	c.created++
	return nil
}

func (c *fakeClient) DeleteIndex(_ context.Context, index string, ignoreUnavailable bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.indices[index] && !ignoreUnavailable {
		return search.ErrNotFound
	}
	if c.indices[index] {
		c.deleted++
	}
	delete(c.indices, index)
	return nil
}

func (c *fakeClient) Aliases(_ context.Context) (map[string][]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string][]string{}
	for index := range c.indices {
		out[index] = nil
	}
	return out, nil
}

func (c *fakeClient) RepositoryExists(_ context.Context, repository string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repos[repository], nil
}

func (c *fakeClient) CreateRepository(_ context.Context, repository, _ string, _ map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repos[repository] = true
	return nil
}

func (c *fakeClient) DeleteRepository(_ context.Context, repository string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.repos, repository)
	return nil
}

func (c *fakeClient) CreateSnapshot(_ context.Context, repository, snapshot, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots[repository+"/"+snapshot] = true
	return nil
}

func (c *fakeClient) GetSnapshotState(_ context.Context, repository, snapshot string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := repository + "/" + snapshot
	if !c.snapshots[key] {
		return "", search.ErrNotFound
	}
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

func (c *fakeClient) DeleteSnapshot(_ context.Context, repository, snapshot string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, repository+"/"+snapshot)
	return nil
}

func (c *fakeClient) MultiGet(_ context.Context, _ string, _ []string) (map[string]map[string]any, error) {
	return map[string]map[string]any{}, nil
}

func (c *fakeClient) Bulk(_ context.Context, _ string, docs []search.Document) (int, error) {
	return len(docs), nil
}
