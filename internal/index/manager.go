package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/newgene/biohub/internal/build"
	"github.com/newgene/biohub/internal/config"
	"github.com/newgene/biohub/internal/job"
	"github.com/newgene/biohub/internal/registrar"
	"github.com/newgene/biohub/internal/search"
)

// Indexer variant tags usable in routing rules.
const (
	VariantDefault = "default"
	VariantColdHot = "cold_hot"
)

// Runner is an indexer variant: the plain Indexer or a composite.
type Runner interface {
	Index(ctx context.Context, dispatcher job.Dispatcher, opts Options) (int, error)
	IndexName() string
}

// ClientFactory builds a search client for an environment's connection
// args. Injected so tests can substitute fakes.
type ClientFactory func(config.ClientArgs) (search.Client, error)

func DefaultClientFactory(args config.ClientArgs) (search.Client, error) {
	return search.NewHTTPClient(args)
}

// Manager is the registry of named indexing environments. It resolves
// which indexer variant applies to a build via declarative routing rules
// and schedules runs as background jobs.
type Manager struct {
	backend    build.Backend
	reader     build.CollectionReader
	dispatcher job.Dispatcher
	newClient  ClientFactory
	logger     *slog.Logger

	mu      sync.RWMutex
	envs    map[string]config.IndexEnv
	routing map[string]string // dot path within build record → variant tag
}

func NewManager(backend build.Backend, reader build.CollectionReader, dispatcher job.Dispatcher, newClient ClientFactory, logger *slog.Logger) *Manager {
	return &Manager{
		backend:    backend,
		reader:     reader,
		dispatcher: dispatcher,
		newClient:  newClient,
		logger:     logger,
		envs:       map[string]config.IndexEnv{},
		routing:    map[string]string{},
	}
}

// CleanStaleStatus rewrites step status entries left in progress by a
// crashed run. Called once at startup, before Configure.
func (m *Manager) CleanStaleStatus(ctx context.Context) error {
	return registrar.Prune(ctx, m.backend, m.logger)
}

// Configure replaces the registry wholesale from the declarative config.
func (m *Manager) Configure(conf *config.Environments) error {
	envs := make(map[string]config.IndexEnv, len(conf.Index))
	for name, env := range conf.Index {
		envs[name] = env
	}
	routing := make(map[string]string, len(conf.IndexerSelect))
	for path, tag := range conf.IndexerSelect {
		switch tag {
		case VariantDefault, VariantColdHot:
		default:
			return fmt.Errorf("indexer_select %q: unknown indexer variant %q", path, tag)
		}
		routing[path] = tag
	}

	m.mu.Lock()
	m.envs = envs
	m.routing = routing
	m.mu.Unlock()

	m.logger.Info("indexing environments configured", slog.Int("envs", len(envs)))
	return nil
}

// Env looks up a configured indexing environment.
func (m *Manager) Env(name string) (config.IndexEnv, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	env, ok := m.envs[name]
	return env, ok
}

// selectVariant resolves the indexer variant for a build record. Exactly
// one routing path may match; zero matches select the default variant and
// more than one is a fatal ambiguity; the system refuses to guess.
func (m *Manager) selectVariant(rec build.Record) (string, error) {
	m.mu.RLock()
	routing := m.routing
	m.mu.RUnlock()

	if len(routing) == 0 || rec == nil {
		return VariantDefault, nil
	}

	matched := ""
	for _, path := range rec.KeyPaths() {
		if _, ok := routing[path]; !ok {
			continue
		}
		if matched != "" {
			return "", fmt.Errorf("multiple indexer routing rules matched: %q and %q", matched, path)
		}
		matched = path
	}
	if matched == "" {
		return VariantDefault, nil
	}
	return routing[matched], nil
}

// runner builds the selected indexer variant for one run.
func (m *Manager) runner(ctx context.Context, rec build.Record, env config.IndexEnv, target, indexName string) (Runner, error) {
	client, err := m.newClient(env.Args)
	if err != nil {
		return nil, err
	}
	deps := Deps{
		Backend: m.backend,
		Reader:  m.reader,
		Client:  client,
		Batch:   NewBatchTask(m.reader, client, m.logger),
		Logger:  m.logger,
	}

	variant, err := m.selectVariant(rec)
	if err != nil {
		return nil, err
	}
	switch variant {
	case VariantColdHot:
		coldRec, err := m.backend.FindOne(ctx, rec.ColdCollection())
		if err != nil {
			return nil, fmt.Errorf("cold build %q: %w", rec.ColdCollection(), err)
		}
		return NewColdHot(deps, rec, coldRec, env, target, indexName), nil
	default:
		return New(deps, rec, env, target, indexName), nil
	}
}

// Index triggers indexing the collection target into indexName (target by
// default) on the named environment. The run is scheduled as a background
// job; the caller observes the result through the returned handle.
func (m *Manager) Index(ctx context.Context, envName, target, indexName string, ids []string, opts Options) (*job.Job, error) {
	env, ok := m.Env(envName)
	if !ok {
		return nil, fmt.Errorf("unknown indexing environment %q", envName)
	}

	rec, err := m.backend.FindOne(ctx, target)
	if errors.Is(err, build.ErrNotFound) {
		return nil, fmt.Errorf("cannot find build %q", target)
	}
	if err != nil {
		return nil, err
	}
	if len(rec.BuildConfig()) == 0 {
		return nil, fmt.Errorf("cannot find build config for %q", target)
	}

	runner, err := m.runner(ctx, rec, env, target, indexName)
	if err != nil {
		return nil, err
	}
	opts.IDs = ids

	desc := job.Descriptor{
		Category:    job.CategoryIndexManager,
		Source:      envName,
		Step:        "index",
		Description: target,
		Predicates:  []job.Predicate{job.Exclusive(job.CategoryIndexManager)},
	}
	return m.dispatcher.DeferToThread(ctx, desc, func(jctx context.Context) (int, error) {
		return runner.Index(jctx, m.dispatcher, opts)
	})
}

// IndexInfo reports the manager's configuration; with remote set it also
// lists each environment's live indices and aliases. Remote lookup
// failures are logged, not raised.
func (m *Manager) IndexInfo(ctx context.Context, remote bool) map[string]any {
	m.mu.RLock()
	envs := make(map[string]config.IndexEnv, len(m.envs))
	for name, env := range m.envs {
		envs[name] = env
	}
	routing := make(map[string]string, len(m.routing))
	for path, tag := range m.routing {
		routing[path] = tag
	}
	m.mu.RUnlock()

	info := map[string]any{"indexer_select": routing}
	envInfo := make(map[string]any, len(envs))
	for name, env := range envs {
		entry := map[string]any{
			"hosts":       env.Args.Hosts,
			"concurrency": env.Concurrency,
		}
		if remote {
			if indices, err := m.listIndices(ctx, env); err != nil {
				m.logger.Warn("listing remote indices failed",
					slog.String("env", name), slog.String("error", err.Error()))
			} else {
				entry["index"] = indices
			}
		}
		envInfo[name] = entry
	}
	info["env"] = envInfo
	return info
}

func (m *Manager) listIndices(ctx context.Context, env config.IndexEnv) ([]map[string]any, error) {
	client, err := m.newClient(env.Args)
	if err != nil {
		return nil, err
	}
	aliases, err := client.Aliases(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(aliases))
	for index, names := range aliases {
		out = append(out, map[string]any{"index": index, "aliases": names})
	}
	return out, nil
}

// ValidateMapping checks a custom field mapping by creating a throwaway
// index from it on the named environment, then deleting it.
func (m *Manager) ValidateMapping(ctx context.Context, mapping map[string]any, envName string) error {
	env, ok := m.Env(envName)
	if !ok {
		return fmt.Errorf("unknown indexing environment %q", envName)
	}
	client, err := m.newClient(env.Args)
	if err != nil {
		return err
	}

	rec := build.Record{"mapping": mapping}
	settings := DefaultSettings()
	mappings := DefaultMappings()
	mappings.Enrich(rec)

	name := "hub_tmp_" + strings.ToLower(strings.ReplaceAll(uuid.NewString(), "-", ""))[:16]
	if err := client.CreateIndex(ctx, name, settings.Finalize(), mappings.Finalize()); err != nil {
		return err
	}
	if err := client.DeleteIndex(ctx, name, true); err != nil {
		m.logger.Warn("failed to delete validation index",
			slog.String("index", name), slog.String("error", err.Error()))
	}
	return nil
}
