package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/newgene/biohub/internal/build"
	"github.com/newgene/biohub/internal/config"
	"github.com/newgene/biohub/internal/job"
	"github.com/newgene/biohub/internal/registrar"
	"github.com/newgene/biohub/internal/search"
	"github.com/newgene/biohub/internal/storage"
)

// stepFunc is one snapshot pipeline step. Each returns a result fragment
// merged into the run's cumulative result.
type stepFunc func(ctx context.Context, cfg RepositoryConfig, index, name string) (map[string]any, error)

// Env runs snapshots of indices living on one indexing environment into
// one cloud repository. A run walks pre_snapshot, snapshot and
// post_snapshot in order, each step recorded on the build record and
// offloaded as a background job.
type Env struct {
	name       string
	indexerEnv string
	repcfg     RepositoryConfig
	delay      time.Duration

	backend    build.Backend
	store      storage.ObjectStore
	client     search.Client
	dispatcher job.Dispatcher
	logger     *slog.Logger
}

func NewEnv(cfg config.SnapshotEnv, backend build.Backend, store storage.ObjectStore, client search.Client, dispatcher job.Dispatcher, logger *slog.Logger) *Env {
	return &Env{
		name:       cfg.Name,
		indexerEnv: cfg.Indexer,
		repcfg:     RepositoryConfig(cfg.Repository),
		delay:      time.Duration(cfg.MonitorDelay) * time.Second,
		backend:    backend,
		store:      store,
		client:     client,
		dispatcher: dispatcher,
		logger:     logger.With(slog.String("snapshot_env", cfg.Name)),
	}
}

func (e *Env) Name() string { return e.name }

// IndexerEnv names the indexing environment whose indices this
// environment snapshots.
func (e *Env) IndexerEnv() string { return e.indexerEnv }

func (e *Env) pinfo(step, name string) job.Descriptor {
	return job.Descriptor{
		Category:    job.CategorySnapshooter,
		Source:      e.name,
		Step:        step,
		Description: name,
	}
}

// buildDoc resolves the build record that produced the index. Only
// hub-managed indices (those an indexing run recorded on a build) can be
// snapshot.
func (e *Env) buildDoc(ctx context.Context, index string) (build.Record, error) {
	rec, err := e.backend.FindByIndexEnv(ctx, index, e.indexerEnv)
	if errors.Is(err, build.ErrNotFound) {
		return nil, fmt.Errorf("index %q is not a hub-managed index on environment %q", index, e.indexerEnv)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Snapshot schedules snapshotting the index under the given snapshot
// name (the index name by default) and returns the run's job handle.
func (e *Env) Snapshot(ctx context.Context, index, name string) (*job.Job, error) {
	if name == "" {
		name = index
	}
	desc := job.Descriptor{
		Category:    job.CategorySnapshotManager,
		Source:      e.name,
		Step:        "snapshot",
		Description: name,
	}
	return e.dispatcher.DeferToThread(ctx, desc, func(jctx context.Context) (int, error) {
		return 0, e.run(jctx, index, name)
	})
}

func (e *Env) run(ctx context.Context, index, name string) error {
	rec, err := e.buildDoc(ctx, index)
	if err != nil {
		return err
	}
	cfg, err := e.repcfg.Format(rec)
	if err != nil {
		return err
	}

	e.logger.Info("snapshot run starting",
		slog.String("index", index),
		slog.String("snapshot", name),
		slog.String("repository", cfg.Repo()))

	steps := []struct {
		name string
		fn   stepFunc
	}{
		{registrar.StepPreSnapshot, e.preSnapshot},
		{registrar.StepSnapshot, e.doSnapshot},
		{registrar.StepPostSnapshot, e.postSnapshot},
	}

	cumulative := map[string]any{}
	for _, step := range steps {
		reg := registrar.New(e.backend, rec.ID(), step.name)
		if err := reg.Started(ctx); err != nil {
			return err
		}

		fn := step.fn
		j, err := e.dispatcher.DeferToThread(ctx, e.pinfo(step.name, name), func(jctx context.Context) (int, error) {
			result, err := fn(jctx, cfg, index, name)
			if err != nil {
				return 0, err
			}
			for k, v := range result {
				cumulative[k] = v
			}
			return 0, nil
		})
		if err == nil {
			_, err = j.Wait(ctx)
		}
		if err != nil {
			if rerr := reg.Failed(ctx, err); rerr != nil {
				e.logger.Error("recording step failure failed",
					slog.String("step", step.name), slog.String("error", rerr.Error()))
			}
			return fmt.Errorf("%s: %w", step.name, err)
		}
		if err := reg.Succeed(ctx, map[string]any{name: cumulative}); err != nil {
			return err
		}
	}

	if err := e.backend.SetSnapshotInfo(ctx, rec.ID(), name, cumulative); err != nil {
		return err
	}
	e.logger.Info("snapshot run complete", slog.String("snapshot", name))
	return nil
}

// preSnapshot provisions the bucket and repository if either is missing.
// Idempotent, so a partially provisioned environment converges.
func (e *Env) preSnapshot(ctx context.Context, cfg RepositoryConfig, index, name string) (map[string]any, error) {
	repo := search.NewRepository(e.client, cfg.Repo())
	if err := EnsureFor(ctx, e.store, repo, cfg); err != nil {
		return nil, err
	}
	return map[string]any{
		"conf":        map[string]any{"repository": map[string]any(cfg)},
		"indexer_env": e.indexerEnv,
		"environment": e.name,
	}, nil
}

// doSnapshot creates the snapshot, replacing a previous one of the same
// name, then polls until it reaches a terminal state. Polling has no
// timeout; cancelling the run's context is the only way to abandon a
// snapshot the cluster never finishes.
func (e *Env) doSnapshot(ctx context.Context, cfg RepositoryConfig, index, name string) (map[string]any, error) {
	snap := search.NewSnapshot(e.client, cfg.Repo(), name)

	exists, err := snap.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		e.logger.Info("deleting existing snapshot", slog.String("snapshot", name))
		if err := snap.Delete(ctx); err != nil {
			return nil, err
		}
	}
	if err := snap.Create(ctx, index); err != nil {
		return nil, err
	}

	for {
		state, err := snap.State(ctx)
		if err != nil {
			return nil, err
		}
		switch state {
		case search.StateSuccess:
			return map[string]any{
				"index_name":    index,
				"replaced":      exists,
				"created_at":    time.Now().UTC().Format(time.RFC3339),
				"state":         state,
				"monitor_delay": e.delay.Seconds(),
			}, nil
		case search.StateInProgress:
			e.logger.Info("snapshot in progress", slog.String("snapshot", name))
			select {
			case <-time.After(e.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		default:
			// FAILED, PARTIAL, or a state the snapshot should never be
			// in right after creation (MISSING, N/A).
			return nil, fmt.Errorf("snapshot %q entered state %q", name, state)
		}
	}
}

// postSnapshot flags the build as ready for a release note.
func (e *Env) postSnapshot(ctx context.Context, cfg RepositoryConfig, index, name string) (map[string]any, error) {
	rec, err := e.buildDoc(ctx, index)
	if err != nil {
		return nil, err
	}
	if err := e.backend.AddPending(ctx, rec.ID(), "release_note"); err != nil {
		return nil, err
	}
	return map[string]any{"pending": []string{"release_note"}}, nil
}
