package pipeline

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"catalog-ingest/store"
)

// Record is one document destined for a collection.
type Record struct {
	ID     string
	Fields store.Document
}

// BatchWriter commits records to a single collection in batches of at
// most batchSize merge writes. A failed batch is logged and skipped;
// later batches still commit, so one bad batch never sinks the whole
// invocation. An LRU cache drops records already written recently,
// which keeps re-runs over overlapping listing pages cheap.
type BatchWriter struct {
	store      store.Store
	collection string
	batchSize  int
	seen       *lru.Cache[string, struct{}]
	metrics    *Metrics
}

// NewBatchWriter builds a writer for the collection. batchSize is
// clamped to the store's hard cap; cacheSize bounds the dedupe cache.
func NewBatchWriter(st store.Store, collection string, batchSize, cacheSize int, m *Metrics) (*BatchWriter, error) {
	if batchSize <= 0 || batchSize > store.MaxBatchSize {
		batchSize = store.MaxBatchSize
	}
	seen, err := lru.New[string, struct{}](cacheSize)
	if err != nil {
		return nil, err
	}
	return &BatchWriter{
		store:      st,
		collection: collection,
		batchSize:  batchSize,
		seen:       seen,
		metrics:    m,
	}, nil
}

// Write commits the records and returns how many were persisted.
// Records missing an id or payload are skipped with a warning, as are
// records whose id was already written recently.
func (w *BatchWriter) Write(ctx context.Context, records []Record) int {
	var pending []Record
	for _, rec := range records {
		if rec.ID == "" || len(rec.Fields) == 0 {
			slog.Warn("skipping record with missing required fields",
				slog.String("collection", w.collection),
				slog.String("id", rec.ID),
			)
			continue
		}
		if _, dup := w.seen.Get(rec.ID); dup {
			continue
		}
		pending = append(pending, rec)
	}

	written := 0
	for start := 0; start < len(pending); start += w.batchSize {
		end := start + w.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		batch := w.store.NewBatch()
		for _, rec := range chunk {
			batch.Set(w.collection, rec.ID, rec.Fields, true)
		}
		err := batch.Commit(ctx)
		w.metrics.IncBatchCommit(w.collection, err != nil)
		if err != nil {
			slog.Error("batch commit failed",
				slog.String("collection", w.collection),
				slog.Int("size", len(chunk)),
				slog.Any("error", err),
			)
			continue
		}

		for _, rec := range chunk {
			w.seen.Add(rec.ID, struct{}{})
		}
		written += len(chunk)
		w.metrics.AddDocs(w.collection, len(chunk))
	}

	if written < len(records) {
		slog.Info("batch write finished with skips",
			slog.String("collection", w.collection),
			slog.Int("written", written),
			slog.Int("submitted", len(records)),
		)
	}
	return written
}

// Reset clears the dedupe cache, forcing the next write of every id to
// hit the store again.
func (w *BatchWriter) Reset() {
	w.seen.Purge()
}
