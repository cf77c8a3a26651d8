package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"catalog-ingest/models"
	"catalog-ingest/store"
)

// ErrBusy is returned by Acquire when a previous invocation still
// holds the advisory lock.
var ErrBusy = errors.New("pipeline: previous invocation still in progress")

// CheckpointManager owns the per-pipeline checkpoint document, which
// carries both the resume token and the advisory in-progress flag.
// The lock is purely cooperative: a crashed invocation leaves it set
// and an operator clears it by hand.
type CheckpointManager struct {
	store    store.Store
	pipeline string
	now      func() time.Time
}

// NewCheckpointManager returns a manager for the named pipeline.
func NewCheckpointManager(st store.Store, pipeline string) *CheckpointManager {
	return &CheckpointManager{store: st, pipeline: pipeline, now: time.Now}
}

// Acquire loads the checkpoint and takes the advisory lock. It returns
// ErrBusy when another invocation is marked in progress. The returned
// checkpoint reflects the state before this acquisition.
func (m *CheckpointManager) Acquire(ctx context.Context) (*models.Checkpoint, error) {
	doc, err := m.store.Get(ctx, models.CollectionCheckpoints, m.pipeline)
	cp := &models.Checkpoint{}
	switch {
	case errors.Is(err, store.ErrNotFound):
		// First run for this pipeline.
	case err != nil:
		return nil, fmt.Errorf("load checkpoint %s: %w", m.pipeline, err)
	default:
		cp = models.CheckpointFromDoc(doc)
	}

	if cp.IsInProgress {
		return nil, ErrBusy
	}

	lock := store.Document{
		"isInProgress":  true,
		"lastFetchedAt": m.now(),
	}
	if err := m.store.Set(ctx, models.CollectionCheckpoints, m.pipeline, lock, true); err != nil {
		return nil, fmt.Errorf("acquire checkpoint %s: %w", m.pipeline, err)
	}
	return cp, nil
}

// RunResult describes how an invocation ended for checkpoint purposes.
type RunResult struct {
	ResumeToken string
	Complete    bool
	Err         error
}

// Release writes the post-run checkpoint state in a single merge so
// the lock flag, token, and error land together. A complete pass
// clears the token and stamps the completion time.
func (m *CheckpointManager) Release(ctx context.Context, res RunResult) error {
	now := m.now()
	doc := store.Document{
		"isInProgress":  false,
		"lastFetchedAt": now,
		"lastError":     "",
		"resumeToken":   res.ResumeToken,
	}
	if res.Err != nil {
		doc["lastError"] = res.Err.Error()
	}
	if res.Complete {
		doc["resumeToken"] = ""
		doc["lastSuccessfulCompleteFetch"] = now
	}

	if err := m.store.Set(ctx, models.CollectionCheckpoints, m.pipeline, doc, true); err != nil {
		return fmt.Errorf("release checkpoint %s: %w", m.pipeline, err)
	}
	return nil
}

// release finishes an invocation, logging rather than masking release
// failures so the run error stays primary.
func (m *CheckpointManager) release(ctx context.Context, res RunResult) {
	if err := m.Release(ctx, res); err != nil {
		slog.Error("checkpoint release failed",
			slog.String("pipeline", m.pipeline),
			slog.Any("error", err),
			slog.Any("run_error", res.Err),
		)
	}
}
