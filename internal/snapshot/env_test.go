package snapshot

import (
	"context"
	"strings"
	"testing"

	"github.com/newgene/biohub/internal/build"
	"github.com/newgene/biohub/internal/config"
	"github.com/newgene/biohub/internal/job"
	"github.com/newgene/biohub/internal/search"
)

func indexedRecord(id, index string) build.Record {
	return build.Record{
		"_id": id,
		"_meta": map[string]any{
			"build_version": "v7",
		},
		"build_config": map[string]any{"name": "mynews"},
		"index": map[string]any{
			index: map[string]any{
				"environment": "prod",
				"created_at":  "2026-08-01T00:00:00Z",
			},
		},
	}
}

func snapEnvConfig() config.SnapshotEnv {
	return config.SnapshotEnv{
		Name:    "s3-prod",
		Indexer: "prod",
		Repository: map[string]any{
			"name": "repo-%(_meta.build_version)s",
			"type": "s3",
			"settings": map[string]any{
				"bucket": "backups",
			},
			"acl": "private",
		},
	}
}

type envFixture struct {
	env     *Env
	backend *memBackend
	store   *memStore
	client  *memClient
}

func newEnvFixture(records ...build.Record) *envFixture {
	backend := newMemBackend(records...)
	store := newMemStore()
	client := newMemClient()
	env := NewEnv(snapEnvConfig(), backend, store, client, job.NewPool(testLogger()), testLogger())
	return &envFixture{env: env, backend: backend, store: store, client: client}
}

func TestSnapshotRunProvisionsAndRecords(t *testing.T) {
	rec := indexedRecord("mynews_202608_test", "mynews")
	f := newEnvFixture(rec)
	ctx := context.Background()

	j, err := f.env.Snapshot(ctx, "mynews", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.Wait(ctx); err != nil {
		t.Fatalf("snapshot run failed: %v", err)
	}

	// Bucket and repository provisioned, repository name templated.
	if ok, _ := f.store.BucketExists(ctx, "backups"); !ok {
		t.Error("bucket not created")
	}
	if !f.client.repos["repo-v7"] {
		t.Errorf("repository not created, repos = %v", f.client.repos)
	}
	// Snapshot name defaults to the index name.
	if !f.client.snapshots["repo-v7/mynews"] {
		t.Errorf("snapshot not created, snapshots = %v", f.client.snapshots)
	}

	// All three steps recorded successful.
	want := map[string]bool{"pre_snapshot": false, "snapshot": false, "post_snapshot": false}
	for _, entry := range rec.Jobs() {
		step, _ := entry["step"].(string)
		if _, ok := want[step]; ok && entry["status"] == "success" {
			want[step] = true
		}
	}
	for step, seen := range want {
		if !seen {
			t.Errorf("step %s has no success entry", step)
		}
	}

	// Cumulative result recorded under the build, pending flag added.
	snaps, _ := rec["snapshot"].(map[string]any)
	if snaps["mynews"] == nil {
		t.Error("no snapshot info recorded on the build")
	}
	pending, _ := rec["pending"].([]any)
	if len(pending) != 1 || pending[0] != "release_note" {
		t.Errorf("pending = %v, want [release_note]", pending)
	}
}

func TestSnapshotReplacesExisting(t *testing.T) {
	rec := indexedRecord("mynews_202608_test", "mynews")
	f := newEnvFixture(rec)
	ctx := context.Background()

	// Simulate a previous run's leftovers.
	f.client.repos["repo-v7"] = true
	f.client.snapshots["repo-v7/mynews"] = true

	j, err := f.env.Snapshot(ctx, "mynews", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.Wait(ctx); err != nil {
		t.Fatalf("snapshot run failed: %v", err)
	}

	snaps, _ := rec["snapshot"].(map[string]any)
	info, _ := snaps["mynews"].(map[string]any)
	if info["replaced"] != true {
		t.Errorf("replaced = %v, want true", info["replaced"])
	}
}

func TestSnapshotPollsUntilSuccess(t *testing.T) {
	rec := indexedRecord("mynews_202608_test", "mynews")
	f := newEnvFixture(rec)
	ctx := context.Background()

	f.client.snapshotStates["repo-v7/mynews"] = []string{
		search.StateInProgress, search.StateInProgress, search.StateSuccess,
	}

	j, err := f.env.Snapshot(ctx, "mynews", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.Wait(ctx); err != nil {
		t.Fatalf("snapshot run failed: %v", err)
	}
	if f.client.stateCalls < 3 {
		t.Errorf("state polled %d times, want >= 3", f.client.stateCalls)
	}
}

func TestSnapshotFailedStateStopsRun(t *testing.T) {
	rec := indexedRecord("mynews_202608_test", "mynews")
	f := newEnvFixture(rec)
	ctx := context.Background()

	f.client.snapshotStates["repo-v7/mynews"] = []string{search.StateFailed}

	j, err := f.env.Snapshot(ctx, "mynews", "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = j.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "entered state") {
		t.Fatalf("run = %v, want terminal-state error", err)
	}

	// The snapshot step is recorded failed, post_snapshot never runs.
	var failed, post bool
	for _, entry := range rec.Jobs() {
		if entry["step"] == "snapshot" && entry["status"] == "failed" {
			failed = true
		}
		if entry["step"] == "post_snapshot" {
			post = true
		}
	}
	if !failed {
		t.Error("snapshot step has no failed entry")
	}
	if post {
		t.Error("post_snapshot ran after a failed snapshot step")
	}
}

func TestSnapshotRejectsUnmanagedIndex(t *testing.T) {
	f := newEnvFixture() // no build records at all
	ctx := context.Background()

	j, err := f.env.Snapshot(ctx, "strays", "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = j.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "not a hub-managed index") {
		t.Errorf("run = %v, want unmanaged index error", err)
	}
}
