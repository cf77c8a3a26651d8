package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"catalog-ingest/models"
	"catalog-ingest/store"
)

func fixedCheckpoints(st store.Store, name string, now time.Time) *CheckpointManager {
	m := NewCheckpointManager(st, name)
	m.now = func() time.Time { return now }
	return m
}

func TestCheckpointAcquireFresh(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	m := fixedCheckpoints(st, "video", now)

	cp, err := m.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if cp.ResumeToken != "" || cp.IsInProgress {
		t.Fatalf("fresh checkpoint should be zero, got %+v", cp)
	}

	doc, err := st.Get(ctx, models.CollectionCheckpoints, "video")
	if err != nil {
		t.Fatalf("checkpoint doc missing: %v", err)
	}
	stored := models.CheckpointFromDoc(doc)
	if !stored.IsInProgress {
		t.Fatal("acquire should set the in-progress flag")
	}
	if !stored.LastFetchedAt.Equal(now) {
		t.Fatalf("lastFetchedAt = %v", stored.LastFetchedAt)
	}
}

func TestCheckpointAcquireBusy(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := NewCheckpointManager(st, "video")

	if _, err := m.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if _, err := m.Acquire(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("second acquire should be busy, got %v", err)
	}
}

func TestCheckpointReleasePartial(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := NewCheckpointManager(st, "commerce")

	if _, err := m.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Release(ctx, RunResult{ResumeToken: "page-4"}); err != nil {
		t.Fatalf("Release: %v", err)
	}

	cp, err := m.Acquire(ctx)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if cp.ResumeToken != "page-4" {
		t.Fatalf("resume token = %q, want page-4", cp.ResumeToken)
	}
	if !cp.LastSuccessfulCompleteFetch.IsZero() {
		t.Fatal("partial pass must not stamp completion")
	}
}

func TestCheckpointReleaseComplete(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	m := fixedCheckpoints(st, "commerce", now)

	if _, err := m.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// Complete wins even when a stale token is passed along.
	if err := m.Release(ctx, RunResult{ResumeToken: "page-9", Complete: true}); err != nil {
		t.Fatalf("Release: %v", err)
	}

	doc, err := st.Get(ctx, models.CollectionCheckpoints, "commerce")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	cp := models.CheckpointFromDoc(doc)
	if cp.IsInProgress {
		t.Fatal("release should clear the in-progress flag")
	}
	if cp.ResumeToken != "" {
		t.Fatalf("complete pass should clear the token, got %q", cp.ResumeToken)
	}
	if !cp.LastSuccessfulCompleteFetch.Equal(now) {
		t.Fatalf("completion stamp = %v", cp.LastSuccessfulCompleteFetch)
	}
}

func TestCheckpointReleaseError(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := NewCheckpointManager(st, "commerce")

	if _, err := m.Acquire(ctx); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	runErr := errors.New("quota_exceeded: daily budget")
	if err := m.Release(ctx, RunResult{ResumeToken: "page-2", Err: runErr}); err != nil {
		t.Fatalf("Release: %v", err)
	}

	doc, _ := st.Get(ctx, models.CollectionCheckpoints, "commerce")
	cp := models.CheckpointFromDoc(doc)
	if cp.LastError != runErr.Error() {
		t.Fatalf("lastError = %q", cp.LastError)
	}
	if cp.ResumeToken != "page-2" {
		t.Fatalf("failed pass should keep its token, got %q", cp.ResumeToken)
	}

	// A following clean release clears the recorded error.
	if _, err := m.Acquire(ctx); err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if err := m.Release(ctx, RunResult{Complete: true}); err != nil {
		t.Fatalf("clean release: %v", err)
	}
	doc, _ = st.Get(ctx, models.CollectionCheckpoints, "commerce")
	if cp := models.CheckpointFromDoc(doc); cp.LastError != "" {
		t.Fatalf("clean run should clear lastError, got %q", cp.LastError)
	}
}
