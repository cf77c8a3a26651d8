// Package pipeline wires the checkpointed fetch loop, batched writes,
// and operation dispatch for the scheduled ingest invocations.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"catalog-ingest/client"
	"catalog-ingest/config"
	"catalog-ingest/models"
	"catalog-ingest/store"
)

// VideoAPI is the upstream surface the video pipeline needs.
type VideoAPI interface {
	SearchPage(ctx context.Context, pageToken string) ([]string, string, error)
	VideoDetails(ctx context.Context, ids []string) ([]*models.Video, error)
}

// VideoPipeline ingests channel uploads: paginated id discovery, then
// detail resolution in provider-sized chunks, then batched upserts.
type VideoPipeline struct {
	api         VideoAPI
	checkpoints *CheckpointManager
	writer      *BatchWriter
	cfg         *config.Config
	metrics     *Metrics
}

// NewVideoPipeline assembles the video pipeline over st.
func NewVideoPipeline(api VideoAPI, st store.Store, cfg *config.Config, m *Metrics) (*VideoPipeline, error) {
	writer, err := NewBatchWriter(st, models.CollectionVideos, cfg.BatchSize, cfg.DedupeCacheSize, m)
	if err != nil {
		return nil, err
	}
	return &VideoPipeline{
		api:         api,
		checkpoints: NewCheckpointManager(st, "video"),
		writer:      writer,
		cfg:         cfg,
		metrics:     m,
	}, nil
}

// Run executes one invocation for the given trigger envelope. Only the
// collection phase applies to videos; other selectors are no-ops.
func (p *VideoPipeline) Run(ctx context.Context, msg *Message) error {
	op := msg.Operation()
	switch op {
	case OpCollection, OpFull:
	case OpUnknown:
		slog.Warn("unknown operation selector, ignoring", slog.String("pipeline", "video"))
		p.metrics.IncInvocation("video", op.String(), "ignored")
		return nil
	default:
		slog.Info("operation not applicable to video pipeline", slog.String("op", op.String()))
		p.metrics.IncInvocation("video", op.String(), "skipped")
		return nil
	}

	err := p.collect(ctx)
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.IncInvocation("video", op.String(), status)
	return err
}

func (p *VideoPipeline) collect(ctx context.Context) error {
	cp, err := p.checkpoints.Acquire(ctx)
	if errors.Is(err, ErrBusy) {
		slog.Info("skipping run, previous invocation still in progress", slog.String("pipeline", "video"))
		return nil
	}
	if err != nil {
		return err
	}

	start := time.Now()
	outcome, fetchErr := FetchPages(ctx, "video", p.api.SearchPage, cp.ResumeToken, p.cfg.MaxPagesPerRun, p.metrics)
	p.metrics.ObserveFetchDuration(time.Since(start))
	if fetchErr != nil {
		p.checkpoints.release(ctx, RunResult{ResumeToken: outcome.NextToken, Err: fetchErr})
		return fetchErr
	}

	records, detailErr := p.resolveDetails(ctx, outcome.Items)
	written := p.writer.Write(ctx, records)

	slog.Info("video collection finished",
		slog.Int("pages", outcome.Pages),
		slog.Int("ids", len(outcome.Items)),
		slog.Int("written", written),
		slog.Bool("complete", outcome.Complete && detailErr == nil),
	)

	res := RunResult{
		ResumeToken: outcome.NextToken,
		Complete:    outcome.Complete && detailErr == nil,
		Err:         detailErr,
	}
	if detailErr != nil {
		p.checkpoints.release(ctx, res)
		return detailErr
	}
	return p.checkpoints.Release(ctx, res)
}

// resolveDetails turns discovered ids into full video records. A
// failed chunk ends resolution but keeps everything gathered before
// it, so partial progress still gets persisted.
func (p *VideoPipeline) resolveDetails(ctx context.Context, ids []string) ([]Record, error) {
	var records []Record
	for start := 0; start < len(ids); start += client.MaxDetailIDs {
		end := start + client.MaxDetailIDs
		if end > len(ids) {
			end = len(ids)
		}

		videos, err := p.api.VideoDetails(ctx, ids[start:end])
		if err != nil {
			p.metrics.IncAPIError(client.ErrorTypeLabel(err))
			slog.Error("video detail resolution stopped",
				slog.Int("resolved", len(records)),
				slog.Int("remaining", len(ids)-start),
				slog.String("category", client.ErrorTypeLabel(err)),
				slog.Any("error", err),
			)
			return records, err
		}
		for _, v := range videos {
			records = append(records, Record{ID: v.VideoID, Fields: v.Doc()})
		}
	}
	return records, nil
}
