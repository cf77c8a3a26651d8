package timeseries

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"catalog-ingest/models"
	"catalog-ingest/store"
)

// Pruner deletes raw snapshots older than the retention window. Each
// run removes at most one page of documents; steady-state ingest stays
// below that, and a backlog drains across scheduled runs.
type Pruner struct {
	store    store.Store
	pageSize int
	now      func() time.Time
}

// NewPruner returns a pruner over st deleting up to pageSize documents
// per run.
func NewPruner(st store.Store, pageSize int) *Pruner {
	if pageSize <= 0 || pageSize > store.MaxBatchSize {
		pageSize = store.MaxBatchSize
	}
	return &Pruner{store: st, pageSize: pageSize, now: time.Now}
}

// Prune deletes snapshots strictly older than maxAgeDays and returns
// how many were removed. A snapshot exactly at the cutoff survives.
func (p *Pruner) Prune(ctx context.Context, maxAgeDays int) (int, error) {
	cutoff := p.now().UTC().AddDate(0, 0, -maxAgeDays)

	docs, err := p.store.Query(ctx, models.CollectionSnapshots, store.Query{
		Filters: []store.Filter{
			{Field: "timestamp", Op: store.OpLess, Value: cutoff},
		},
		OrderBy: "timestamp",
		Limit:   p.pageSize,
	})
	if err != nil {
		return 0, fmt.Errorf("query expired snapshots: %w", err)
	}
	if len(docs) == 0 {
		slog.Info("no snapshots past retention", slog.Time("cutoff", cutoff))
		return 0, nil
	}

	batch := p.store.NewBatch()
	for _, doc := range docs {
		batch.Delete(models.CollectionSnapshots, doc.ID)
	}
	if err := batch.Commit(ctx); err != nil {
		return 0, fmt.Errorf("delete expired snapshots: %w", err)
	}

	slog.Info("pruned expired snapshots",
		slog.Int("deleted", len(docs)),
		slog.Time("cutoff", cutoff),
	)
	return len(docs), nil
}
