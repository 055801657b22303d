package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/newgene/biohub/internal/build"
	"github.com/newgene/biohub/internal/config"
	"github.com/newgene/biohub/internal/index"
	"github.com/newgene/biohub/internal/job"
	"github.com/newgene/biohub/internal/registrar"
	"github.com/newgene/biohub/internal/storage"
)

// StoreFactory builds an object store client for an environment's cloud
// config. Injected so tests can substitute fakes.
type StoreFactory func(config.CloudConfig) (storage.ObjectStore, error)

// Manager is the registry of named snapshot environments. Each
// environment is tied to an indexing environment registered on the index
// manager; Configure resolves that link and wires the environment's
// search and object store clients from it.
type Manager struct {
	indexManager *index.Manager
	backend      build.Backend
	dispatcher   job.Dispatcher
	newClient    index.ClientFactory
	newStore     StoreFactory
	logger       *slog.Logger

	mu   sync.RWMutex
	envs map[string]*Env
}

func NewManager(indexManager *index.Manager, backend build.Backend, dispatcher job.Dispatcher, newClient index.ClientFactory, newStore StoreFactory, logger *slog.Logger) *Manager {
	return &Manager{
		indexManager: indexManager,
		backend:      backend,
		dispatcher:   dispatcher,
		newClient:    newClient,
		newStore:     newStore,
		logger:       logger,
		envs:         map[string]*Env{},
	}
}

// CleanStaleStatus rewrites step status entries left in progress by a
// crashed run. Called once at startup, before Configure.
func (m *Manager) CleanStaleStatus(ctx context.Context) error {
	return registrar.Prune(ctx, m.backend, m.logger)
}

// Configure replaces the registry wholesale from the declarative config.
// The index manager must be configured first: every snapshot environment
// borrows the search connection of the indexing environment it names.
func (m *Manager) Configure(conf *config.Environments) error {
	envs := make(map[string]*Env, len(conf.Snapshot))
	for name, envCfg := range conf.Snapshot {
		idxEnv, ok := m.indexManager.Env(envCfg.Indexer)
		if !ok {
			return fmt.Errorf("snapshot environment %q: unknown indexing environment %q", name, envCfg.Indexer)
		}
		client, err := m.newClient(idxEnv.Args)
		if err != nil {
			return fmt.Errorf("snapshot environment %q: %w", name, err)
		}
		store, err := m.newStore(envCfg.Cloud)
		if err != nil {
			return fmt.Errorf("snapshot environment %q: %w", name, err)
		}
		envs[name] = NewEnv(envCfg, m.backend, store, client, m.dispatcher, m.logger)
	}

	m.mu.Lock()
	m.envs = envs
	m.mu.Unlock()

	m.logger.Info("snapshot environments configured", slog.Int("envs", len(envs)))
	return nil
}

// Env looks up a configured snapshot environment.
func (m *Manager) Env(name string) (*Env, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	env, ok := m.envs[name]
	return env, ok
}

// Snapshot schedules snapshotting the index on the named environment
// under the given snapshot name (the index name by default).
func (m *Manager) Snapshot(ctx context.Context, envName, indexName, snapshotName string) (*job.Job, error) {
	env, ok := m.Env(envName)
	if !ok {
		return nil, fmt.Errorf("unknown snapshot environment %q", envName)
	}
	return env.Snapshot(ctx, indexName, snapshotName)
}

// SnapshotBuild snapshots a build according to its autobuild policy: the
// build's latest index if it has one, otherwise a fresh indexing run
// named after the build followed by the snapshot.
func (m *Manager) SnapshotBuild(ctx context.Context, rec build.Record) (*job.Job, error) {
	envName := rec.AutoBuildEnv()
	if envName == "" {
		return nil, fmt.Errorf("build %q has no autobuild environment", rec.ID())
	}
	env, ok := m.Env(envName)
	if !ok {
		return nil, fmt.Errorf("unknown snapshot environment %q", envName)
	}

	if latest := rec.LatestIndex(); latest != "" {
		return env.Snapshot(ctx, latest, "")
	}

	// No index yet: index the build first, into an index named after it.
	indexJob, err := m.indexManager.Index(ctx, env.IndexerEnv(), rec.ID(), "", nil, index.Options{})
	if err != nil {
		return nil, err
	}
	desc := job.Descriptor{
		Category:    job.CategorySnapshotManager,
		Source:      envName,
		Step:        "snapshot_build",
		Description: rec.ID(),
	}
	return m.dispatcher.DeferToThread(ctx, desc, func(jctx context.Context) (int, error) {
		if _, err := indexJob.Wait(jctx); err != nil {
			return 0, fmt.Errorf("indexing before snapshot: %w", err)
		}
		snapJob, err := env.Snapshot(jctx, rec.ID(), "")
		if err != nil {
			return 0, err
		}
		return snapJob.Wait(jctx)
	})
}

// MarkPending flags a build for a later snapshot run, picked up whenever
// the pending set is processed.
func (m *Manager) MarkPending(ctx context.Context, buildID string) error {
	return m.backend.AddPending(ctx, buildID, "snapshot")
}

// SnapshotInfo reports the manager's configuration, with cloud
// credentials withheld.
func (m *Manager) SnapshotInfo() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	envInfo := make(map[string]any, len(m.envs))
	for name, env := range m.envs {
		envInfo[name] = map[string]any{
			"indexer":       env.IndexerEnv(),
			"repository":    map[string]any(env.repcfg),
			"monitor_delay": env.delay.Seconds(),
		}
	}
	return map[string]any{"env": envInfo}
}
