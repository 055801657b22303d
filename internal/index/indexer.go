// Package index orchestrates building a search index from a source
// collection: the pre/index/post pipeline, batch scheduling with fail-fast
// cancellation, and the environment registry that routes builds to indexer
// variants.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/newgene/biohub/internal/build"
	"github.com/newgene/biohub/internal/config"
	"github.com/newgene/biohub/internal/job"
	"github.com/newgene/biohub/internal/registrar"
	"github.com/newgene/biohub/internal/search"
)

// Mode governs how an index run relates to a pre-existing destination.
type Mode string

const (
	// ModeIndex creates a new index; the destination must not exist.
	ModeIndex Mode = "index"
	// ModeResume adds missing documents to an existing index.
	ModeResume Mode = "resume"
	// ModeMerge merges documents into an existing index.
	ModeMerge Mode = "merge"
	// ModePurge deletes the destination if present, then creates it.
	ModePurge Mode = "purge"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeIndex, ModeResume, ModeMerge, ModePurge:
		return true
	}
	return false
}

// Options parameterizes one index run.
type Options struct {
	Steps     []string // subset of pre, index, post; default all three
	BatchSize int      // default 10000
	IDs       []string // selective indexing; nil means the whole collection
	Mode      Mode     // default ModeIndex
}

func (o *Options) normalize() error {
	if len(o.Steps) == 0 {
		o.Steps = []string{"pre", "index", "post"}
	}
	for _, step := range o.Steps {
		switch step {
		case "pre", "index", "post":
		default:
			return fmt.Errorf("bad step: %q", step)
		}
	}
	if o.BatchSize == 0 {
		o.BatchSize = 10000
	}
	if o.BatchSize < 50 || o.BatchSize > 10000 {
		return fmt.Errorf("batch_size out of range [50, 10000]: %d", o.BatchSize)
	}
	if o.Mode == "" {
		o.Mode = ModeIndex
	}
	if !o.Mode.Valid() {
		return fmt.Errorf("invalid mode: %q", o.Mode)
	}
	return nil
}

func (o Options) has(step string) bool {
	for _, s := range o.Steps {
		if s == step {
			return true
		}
	}
	return false
}

// Deps are the collaborators an Indexer works against.
type Deps struct {
	Backend build.Backend
	Reader  build.CollectionReader
	Client  search.Client
	Batch   BatchFunc
	Logger  *slog.Logger
}

// Indexer builds one destination index from one source collection through
// the pre/index/post pipeline. Every run of a present step is wrapped by a
// status-registrar transaction on the build record.
type Indexer struct {
	deps Deps

	buildID     string
	confName    string
	collection  string
	indexName   string
	envName     string
	concurrency int

	settings Settings
	mappings Mappings

	// PostFn is the optional post-index finalization hook (e.g. alias
	// switching). It runs offloaded since it may block.
	PostFn func(ctx context.Context) (map[string]any, error)

	logger *slog.Logger
}

// New builds an Indexer for one (build record, environment, collection)
// triple. The destination index name defaults to the collection name.
func New(deps Deps, rec build.Record, env config.IndexEnv, collection, indexName string) *Indexer {
	if indexName == "" {
		indexName = collection
	}
	settings := DefaultSettings()
	settings.Enrich(rec)
	mappings := DefaultMappings()
	mappings.Enrich(rec)

	confName, _ := rec.BuildConfig()["name"].(string)

	return &Indexer{
		deps:        deps,
		buildID:     rec.ID(),
		confName:    confName,
		collection:  collection,
		indexName:   indexName,
		envName:     env.Name,
		concurrency: env.Concurrency,
		settings:    settings,
		mappings:    mappings,
		logger: deps.Logger.With(
			slog.String("index", indexName),
			slog.String("collection", collection)),
	}
}

func (ix *Indexer) IndexName() string { return ix.indexName }

func (ix *Indexer) pinfo(step string) job.Descriptor {
	return job.Descriptor{
		Category:    job.CategoryIndexer,
		Source:      ix.envName,
		Step:        step,
		Description: ix.confName,
		Predicates: []job.Predicate{
			job.ConcurrencyLimit(job.CategoryIndexer, ix.envName, ix.concurrency),
		},
	}
}

// Index runs the pipeline steps in fixed order: pre, index, post. A step
// failure is recorded durably and stops the run; later steps are not
// attempted. Returns the total processed count of the index step.
func (ix *Indexer) Index(ctx context.Context, dispatcher job.Dispatcher, opts Options) (int, error) {
	if dispatcher == nil {
		return 0, fmt.Errorf("nil dispatcher")
	}
	if err := opts.normalize(); err != nil {
		return 0, err
	}

	cnt := 0

	if opts.has("pre") {
		ix.logger.Info("running pre-index process")
		err := ix.runStep(ctx, registrar.StepPreIndex, func(c context.Context) (map[string]any, error) {
			return nil, ix.preIndex(c, opts.Mode)
		})
		if err != nil {
			return 0, err
		}
	}

	if opts.has("index") {
		ix.logger.Info("running indexing process")
		err := ix.runStep(ctx, registrar.StepIndex, func(c context.Context) (map[string]any, error) {
			n, err := ix.doIndex(c, dispatcher, opts)
			if err != nil {
				return nil, err
			}
			cnt = n
			return map[string]any{
				"index": map[string]any{ix.indexName: map[string]any{"count": n}},
			}, nil
		})
		if err != nil {
			return 0, err
		}
		if err := ix.deps.Backend.SetIndexInfo(ctx, ix.buildID, ix.indexName, map[string]any{
			"environment": ix.envName,
			"created_at":  time.Now().UTC().Format(time.RFC3339),
			"count":       cnt,
		}); err != nil {
			return 0, err
		}
	}

	if opts.has("post") {
		ix.logger.Info("running post-index process")
		err := ix.runStep(ctx, registrar.StepPostIndex, func(c context.Context) (map[string]any, error) {
			return ix.postIndex(c, dispatcher)
		})
		if err != nil {
			return 0, err
		}
	}

	return cnt, nil
}

// runStep wraps a step in the started/succeeded/failed registrar pattern.
func (ix *Indexer) runStep(ctx context.Context, step string, fn func(context.Context) (map[string]any, error)) error {
	status := registrar.New(ix.deps.Backend, ix.buildID, step)
	if err := status.Started(ctx); err != nil {
		return err
	}
	result, err := fn(ctx)
	if err != nil {
		ix.logger.Error("step failed", slog.String("step", step), slog.String("error", err.Error()))
		if ferr := status.Failed(ctx, err); ferr != nil {
			ix.logger.Warn("failed to record step failure", slog.String("error", ferr.Error()))
		}
		return err
	}
	return status.Succeed(ctx, result)
}

// preIndex validates or creates the destination index per the mode.
func (ix *Indexer) preIndex(ctx context.Context, mode Mode) error {
	exists, err := ix.deps.Client.IndexExists(ctx, ix.indexName)
	if err != nil {
		return err
	}

	switch mode {
	case ModeIndex:
		if exists {
			return fmt.Errorf(
				"index %q already exists (use mode=purge to auto-delete it or mode=resume to add more documents)",
				ix.indexName)
		}
	case ModeResume, ModeMerge:
		if !exists {
			return fmt.Errorf("index %q does not exist", ix.indexName)
		}
		ix.logger.Info("found the existing index")
		return nil // skip creation
	case ModePurge:
		if err := ix.deps.Client.DeleteIndex(ctx, ix.indexName, true); err != nil {
			return err
		}
		if exists {
			ix.logger.Info("deleted the existing index")
		}
	default:
		return fmt.Errorf("invalid mode: %q", mode)
	}

	ix.logger.Info("creating index")
	return ix.deps.Client.CreateIndex(ctx, ix.indexName,
		ix.settings.Finalize(), ix.mappings.Finalize())
}

// doIndex partitions the id universe into batches and dispatches one job
// per batch, failing fast on the first recorded batch error.
func (ix *Indexer) doIndex(ctx context.Context, dispatcher job.Dispatcher, opts Options) (int, error) {
	var (
		total int
		src   build.BatchSource
		err   error
	)
	if len(opts.IDs) > 0 {
		ix.logger.Info("indexing with specific list of ids",
			slog.Int("ids", len(opts.IDs)), slog.Int("batch_size", opts.BatchSize))
		total = len(opts.IDs)
		src = build.SliceBatches(opts.IDs, opts.BatchSize)
	} else {
		ix.logger.Info("fetching ids from the source collection",
			slog.Int("batch_size", opts.BatchSize))
		if total, err = ix.deps.Reader.CountIDs(ctx, ix.collection); err != nil {
			return 0, err
		}
		src = ix.deps.Reader.IDBatches(ix.collection, opts.BatchSize)
	}

	sched, err := NewSchedule(total, opts.BatchSize)
	if err != nil {
		return 0, err
	}

	// The first batch error cancels the run context: pending jobs never
	// launch, running ones observe the cancellation, and scheduling stops.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	cell := &errCell{}
	var jobs []*job.Job

	for {
		batch, err := src.Next(ctx)
		if err != nil {
			cancelRun()
			return 0, err
		}
		if batch == nil {
			break
		}

		// When one batch already failed and scheduling has not completed,
		// stop scheduling, to fail quickly.
		if err := cell.get(); err != nil {
			return 0, err
		}

		batchNum := sched.NextBatch()
		ix.logger.Info(sched.String())

		ids := batch
		j, err := dispatcher.Defer(runCtx, ix.pinfo(sched.Suffix(ix.collection)),
			func(jctx context.Context) (int, error) {
				n, berr := ix.deps.Batch(jctx, ix.collection, ix.indexName, ids, opts.Mode, batchNum)
				if berr != nil {
					ix.logger.Warn("batch failed", slog.Int("batch", batchNum), slog.String("error", berr.Error()))
					cell.set(berr)
					cancelRun()
					return 0, berr
				}
				return n, nil
			})
		if err != nil {
			cancelRun()
			return 0, err
		}
		j.OnDone(func(j *job.Job) {
			if n, jerr := j.Result(); jerr == nil {
				sched.AddFinished(n)
			}
		})
		jobs = append(jobs, j)
	}

	ix.logger.Info("scheduled all indexing jobs", slog.Int("jobs", len(jobs)))
	if err := job.Join(ctx, jobs); err != nil {
		// A cancelled sibling may surface first; prefer the batch error
		// that triggered the cancellation.
		if cerr := cell.get(); cerr != nil {
			return 0, cerr
		}
		return 0, err
	}
	if err := cell.get(); err != nil {
		return 0, err
	}
	if err := sched.Completed(opts.Mode == ModeResume); err != nil {
		return 0, err
	}

	ix.logger.Info("indexing done", slog.Int("total", total))
	return total, nil
}

// postIndex offloads the post-index hook, if any, since it may block.
func (ix *Indexer) postIndex(ctx context.Context, dispatcher job.Dispatcher) (map[string]any, error) {
	if ix.PostFn == nil {
		return nil, nil
	}

	var result map[string]any
	j, err := dispatcher.DeferToThread(ctx, ix.pinfo(registrar.StepPostIndex),
		func(jctx context.Context) (int, error) {
			var err error
			result, err = ix.PostFn(jctx)
			return 0, err
		})
	if err != nil {
		return nil, err
	}
	if _, err := j.Wait(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// errCell retains the first error reported by a completion callback. Each
// run owns its own cell; it is never shared across runs.
type errCell struct {
	mu  sync.Mutex
	err error
}

func (c *errCell) set(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

func (c *errCell) get() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
