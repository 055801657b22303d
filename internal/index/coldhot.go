package index

import (
	"context"

	"github.com/newgene/biohub/internal/build"
	"github.com/newgene/biohub/internal/config"
	"github.com/newgene/biohub/internal/job"
)

// ColdHotIndexer builds one index from two collections: a "cold" parent
// collection that never changes and a "hot" collection that is refreshed
// regularly. The index is created from the cold documents, then the hot
// documents are merged in. The merge step fetches existing index documents
// and updates them rather than overwriting, so cold-only fields survive.
// Rebuilding only the hot side amortizes cost across builds.
type ColdHotIndexer struct {
	Cold *Indexer
	Hot  *Indexer

	indexName string
}

// NewColdHot composes the cold and hot indexers targeting one index. The
// cold side is bound to the parent collection named by the hot build's
// config; both write to the same destination.
func NewColdHot(deps Deps, hotRec, coldRec build.Record, env config.IndexEnv, collection, indexName string) *ColdHotIndexer {
	if indexName == "" {
		indexName = collection
	}
	return &ColdHotIndexer{
		Cold:      New(deps, coldRec, env, hotRec.ColdCollection(), indexName),
		Hot:       New(deps, hotRec, env, collection, indexName),
		indexName: indexName,
	}
}

func (cx *ColdHotIndexer) IndexName() string { return cx.indexName }

// Index runs the cold-then-hot strategy. When the index step is requested,
// the cold indexer runs pre+index with the caller's mode, then the hot
// indexer runs index alone in merge mode against the now-existing
// destination. When the post step is requested only the hot post-step
// runs; the cold collection stays invisible to callers of this composite.
func (cx *ColdHotIndexer) Index(ctx context.Context, dispatcher job.Dispatcher, opts Options) (int, error) {
	if err := opts.normalize(); err != nil {
		return 0, err
	}

	cnt := 0

	if opts.has("index") {
		coldOpts := opts
		coldOpts.Steps = []string{"pre", "index"}
		coldCnt, err := cx.Cold.Index(ctx, dispatcher, coldOpts)
		if err != nil {
			return 0, err
		}

		hotOpts := opts
		hotOpts.Steps = []string{"index"}
		hotOpts.Mode = ModeMerge
		hotCnt, err := cx.Hot.Index(ctx, dispatcher, hotOpts)
		if err != nil {
			return 0, err
		}
		cnt = coldCnt + hotCnt
	}

	if opts.has("post") {
		postOpts := opts
		postOpts.Steps = []string{"post"}
		if _, err := cx.Hot.Index(ctx, dispatcher, postOpts); err != nil {
			return 0, err
		}
	}

	return cnt, nil
}
