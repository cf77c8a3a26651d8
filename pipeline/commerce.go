package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"catalog-ingest/client"
	"catalog-ingest/config"
	"catalog-ingest/models"
	"catalog-ingest/store"
	"catalog-ingest/timeseries"
)

// CommerceAPI is the upstream surface the commerce pipeline needs.
type CommerceAPI interface {
	CatalogPage(ctx context.Context, pageToken string) ([]*models.Product, string, error)
	ProductInfo(ctx context.Context, productID string) (*models.Product, *models.RawSnapshot, error)
}

// CommercePipeline ingests the product catalog and its market time
// series: paginated listing discovery, concurrent per-product detail
// fetches, raw snapshot writes, daily aggregation, and retention
// cleanup. Which phases run depends on the trigger envelope.
type CommercePipeline struct {
	api         CommerceAPI
	checkpoints *CheckpointManager
	products    *BatchWriter
	snapshots   *BatchWriter
	aggregator  *timeseries.Aggregator
	pruner      *timeseries.Pruner
	cfg         *config.Config
	metrics     *Metrics
}

// NewCommercePipeline assembles the commerce pipeline over st.
func NewCommercePipeline(api CommerceAPI, st store.Store, cfg *config.Config, m *Metrics) (*CommercePipeline, error) {
	products, err := NewBatchWriter(st, models.CollectionProducts, cfg.BatchSize, cfg.DedupeCacheSize, m)
	if err != nil {
		return nil, err
	}
	snapshots, err := NewBatchWriter(st, models.CollectionSnapshots, cfg.BatchSize, cfg.DedupeCacheSize, m)
	if err != nil {
		return nil, err
	}
	return &CommercePipeline{
		api:         api,
		checkpoints: NewCheckpointManager(st, "commerce"),
		products:    products,
		snapshots:   snapshots,
		aggregator:  timeseries.NewAggregator(st),
		pruner:      timeseries.NewPruner(st, cfg.BatchSize),
		cfg:         cfg,
		metrics:     m,
	}, nil
}

// Run executes one invocation for the given trigger envelope.
func (p *CommercePipeline) Run(ctx context.Context, msg *Message) error {
	op := msg.Operation()

	var err error
	switch op {
	case OpCollection:
		err = p.collect(ctx)
	case OpAggregation:
		err = p.aggregate(ctx)
	case OpCleanup:
		err = p.cleanup(ctx)
	case OpFull:
		// Later phases run even when an earlier one fails; a quota
		// failure during collection must not block cleanup.
		err = errors.Join(p.collect(ctx), p.aggregate(ctx), p.cleanup(ctx))
	default:
		slog.Warn("unknown operation selector, ignoring", slog.String("pipeline", "commerce"))
		p.metrics.IncInvocation("commerce", op.String(), "ignored")
		return nil
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.IncInvocation("commerce", op.String(), status)
	return err
}

// collect runs one checkpointed catalog pass under the advisory lock.
// Aggregation and cleanup deliberately run without it; they touch
// different documents.
func (p *CommercePipeline) collect(ctx context.Context) error {
	cp, err := p.checkpoints.Acquire(ctx)
	if errors.Is(err, ErrBusy) {
		slog.Info("skipping run, previous invocation still in progress", slog.String("pipeline", "commerce"))
		return nil
	}
	if err != nil {
		return err
	}

	start := time.Now()
	outcome, fetchErr := FetchPages(ctx, "commerce", p.api.CatalogPage, cp.ResumeToken, p.cfg.MaxPagesPerRun, p.metrics)
	p.metrics.ObserveFetchDuration(time.Since(start))

	merged := make(map[string]*models.Product, len(outcome.Items))
	order := make([]string, 0, len(outcome.Items))
	for _, product := range outcome.Items {
		if _, dup := merged[product.ProductID]; !dup {
			order = append(order, product.ProductID)
		}
		merged[product.ProductID] = product
	}

	var snaps []*models.RawSnapshot
	var detailErr error
	if fetchErr == nil {
		snaps, detailErr = p.fanOutDetails(ctx, order, merged)
	}

	productRecords := make([]Record, 0, len(order))
	for _, id := range order {
		product := merged[id]
		if err := product.Validate(); err != nil {
			slog.Warn("skipping malformed catalog entry", slog.Any("error", err))
			continue
		}
		productRecords = append(productRecords, Record{ID: id, Fields: product.Doc()})
	}
	snapshotRecords := make([]Record, 0, len(snaps))
	for _, s := range snaps {
		snapshotRecords = append(snapshotRecords, Record{ID: s.DocID(), Fields: s.Doc()})
	}

	writtenProducts := p.products.Write(ctx, productRecords)
	writtenSnaps := p.snapshots.Write(ctx, snapshotRecords)

	slog.Info("commerce collection finished",
		slog.Int("pages", outcome.Pages),
		slog.Int("products", writtenProducts),
		slog.Int("snapshots", writtenSnaps),
		slog.Bool("complete", outcome.Complete && fetchErr == nil && detailErr == nil),
	)

	runErr := fetchErr
	if runErr == nil {
		runErr = detailErr
	}
	res := RunResult{
		ResumeToken: outcome.NextToken,
		Complete:    outcome.Complete && runErr == nil,
		Err:         runErr,
	}
	if runErr != nil {
		p.checkpoints.release(ctx, res)
		return runErr
	}
	return p.checkpoints.Release(ctx, res)
}

// fanOutDetails fetches per-product market data in bounded concurrent
// groups, pausing between groups to stay polite. Individual failures
// are logged and skipped; a quota failure stops the remaining groups
// since every further call would burn the same exhausted budget.
func (p *CommercePipeline) fanOutDetails(ctx context.Context, ids []string, merged map[string]*models.Product) ([]*models.RawSnapshot, error) {
	var (
		mu       sync.Mutex
		snaps    []*models.RawSnapshot
		quotaErr error
	)

	for start := 0; start < len(ids); start += p.cfg.FanOutSize {
		end := start + p.cfg.FanOutSize
		if end > len(ids) {
			end = len(ids)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, id := range ids[start:end] {
			id := id
			g.Go(func() error {
				product, snap, err := p.api.ProductInfo(gctx, id)
				if err != nil {
					p.metrics.IncAPIError(client.ErrorTypeLabel(err))
					if client.IsQuota(err) {
						mu.Lock()
						quotaErr = err
						mu.Unlock()
						return nil
					}
					slog.Warn("product detail fetch failed, skipping",
						slog.String("product", id),
						slog.String("category", client.ErrorTypeLabel(err)),
						slog.Any("error", err),
					)
					return nil
				}

				mu.Lock()
				defer mu.Unlock()
				snaps = append(snaps, snap)
				if existing, ok := merged[id]; ok {
					mergeProduct(existing, product)
				} else {
					merged[id] = product
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return snaps, err
		}
		if quotaErr != nil {
			slog.Error("detail fan-out stopped on quota exhaustion",
				slog.Int("fetched", len(snaps)),
				slog.Int("remaining", len(ids)-end),
				slog.Any("error", quotaErr),
			)
			return snaps, quotaErr
		}

		if end < len(ids) && p.cfg.FanOutDelay > 0 {
			timer := time.NewTimer(p.cfg.FanOutDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return snaps, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return snaps, nil
}

// mergeProduct folds detail fields over a listing summary, keeping
// summary values where the detail payload came back empty.
func mergeProduct(dst, src *models.Product) {
	if src.Title != "" {
		dst.Title = src.Title
	}
	if src.Maker != "" {
		dst.Maker = src.Maker
	}
	if src.Category != "" {
		dst.Category = src.Category
	}
	if src.ReleaseDate != "" {
		dst.ReleaseDate = src.ReleaseDate
	}
	if !src.LastFetchedAt.IsZero() {
		dst.LastFetchedAt = src.LastFetchedAt
	}
}

func (p *CommercePipeline) aggregate(ctx context.Context) error {
	written, err := p.aggregator.RunWindow(ctx, p.cfg.AggregationDays)
	p.metrics.AddAggregates(written)
	return err
}

func (p *CommercePipeline) cleanup(ctx context.Context) error {
	deleted, err := p.pruner.Prune(ctx, p.cfg.RetentionDays)
	p.metrics.AddPruned(deleted)
	return err
}
