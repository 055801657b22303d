package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/newgene/biohub/internal/build"
	"github.com/newgene/biohub/internal/search"
)

// BatchFunc is the dispatched unit of batch work: index one batch of ids
// from the source collection into the destination index, returning the
// count of documents written.
type BatchFunc func(ctx context.Context, collection, index string, ids []string, mode Mode, batchNum int) (int, error)

// NewBatchTask builds the default BatchFunc over a collection reader and a
// search client.
func NewBatchTask(reader build.CollectionReader, client search.Client, logger *slog.Logger) BatchFunc {
	return func(ctx context.Context, collection, index string, ids []string, mode Mode, batchNum int) (int, error) {
		docs, err := reader.FetchDocs(ctx, collection, ids)
		if err != nil {
			return 0, fmt.Errorf("batch %d: %w", batchNum, err)
		}

		var existing map[string]map[string]any
		if mode == ModeResume || mode == ModeMerge {
			if existing, err = client.MultiGet(ctx, index, ids); err != nil {
				return 0, fmt.Errorf("batch %d: %w", batchNum, err)
			}
		}

		var payload []search.Document
		for _, id := range ids {
			doc, ok := docs[id]
			if !ok {
				continue
			}
			switch mode {
			case ModeResume:
				// Only fill the documents the index is missing.
				if _, present := existing[id]; present {
					continue
				}
			case ModeMerge:
				// Merge into the stored document so fields contributed by
				// the other collection survive; incoming keys win.
				if stored, present := existing[id]; present {
					doc = mergeDoc(stored, doc)
				}
			}
			payload = append(payload, search.Document{ID: id, Source: doc})
		}

		if len(payload) == 0 {
			return 0, nil
		}
		written, err := client.Bulk(ctx, index, payload)
		if err != nil {
			return written, fmt.Errorf("batch %d: %w", batchNum, err)
		}
		logger.Debug("batch indexed",
			slog.String("collection", collection),
			slog.String("index", index),
			slog.Int("batch", batchNum),
			slog.Int("written", written))
		return written, nil
	}
}

// mergeDoc shallow-merges update into stored without mutating either.
func mergeDoc(stored, update map[string]any) map[string]any {
	merged := make(map[string]any, len(stored)+len(update))
	for k, v := range stored {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged
}
