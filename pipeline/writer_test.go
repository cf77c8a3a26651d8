package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"catalog-ingest/store"
)

// countingStore wraps the memory store to observe and fail batch commits.
type countingStore struct {
	*store.Memory
	commits     int
	failCommits map[int]bool
}

func newCountingStore() *countingStore {
	return &countingStore{Memory: store.NewMemory(), failCommits: make(map[int]bool)}
}

func (s *countingStore) NewBatch() store.Batch {
	return &countingBatch{Batch: s.Memory.NewBatch(), store: s}
}

type countingBatch struct {
	store.Batch
	store *countingStore
}

func (b *countingBatch) Commit(ctx context.Context) error {
	b.store.commits++
	if b.store.failCommits[b.store.commits] {
		return errors.New("injected commit failure")
	}
	return b.Batch.Commit(ctx)
}

func testRecords(n int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{
			ID:     fmt.Sprintf("id-%04d", i),
			Fields: store.Document{"n": i},
		}
	}
	return records
}

func newTestWriter(t *testing.T, st store.Store, batchSize int) *BatchWriter {
	t.Helper()
	w, err := NewBatchWriter(st, "items", batchSize, 128, nil)
	if err != nil {
		t.Fatalf("NewBatchWriter: %v", err)
	}
	return w
}

func TestWriterBatchBound(t *testing.T) {
	st := newCountingStore()
	w := newTestWriter(t, st, 500)

	written := w.Write(context.Background(), testRecords(502))
	if written != 502 {
		t.Fatalf("written = %d", written)
	}
	if st.commits != 2 {
		t.Fatalf("502 records at cap 500 should need 2 commits, got %d", st.commits)
	}
}

func TestWriterSkipsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	w := newTestWriter(t, st, 500)

	records := []Record{
		{ID: "", Fields: store.Document{"a": 1}},
		{ID: "ok", Fields: store.Document{"a": 1}},
		{ID: "empty", Fields: store.Document{}},
	}
	if written := w.Write(ctx, records); written != 1 {
		t.Fatalf("written = %d, want 1", written)
	}
	if _, err := st.Get(ctx, "items", "ok"); err != nil {
		t.Fatalf("valid record missing: %v", err)
	}
	if _, err := st.Get(ctx, "items", "empty"); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("payload-less record should be skipped")
	}
}

func TestWriterToleratesCommitFailure(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	st.failCommits[1] = true
	w := newTestWriter(t, st, 2)

	written := w.Write(ctx, testRecords(4))
	if written != 2 {
		t.Fatalf("written = %d, want the surviving batch only", written)
	}
	// First batch failed, second landed.
	if _, err := st.Get(ctx, "items", "id-0000"); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("failed batch should not be applied")
	}
	if _, err := st.Get(ctx, "items", "id-0002"); err != nil {
		t.Fatalf("later batch should still commit: %v", err)
	}
}

func TestWriterDedupesAcrossWrites(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	w := newTestWriter(t, st, 500)

	if written := w.Write(ctx, testRecords(3)); written != 3 {
		t.Fatal("first write should persist everything")
	}
	if written := w.Write(ctx, testRecords(3)); written != 0 {
		t.Fatalf("repeat write should be deduped, wrote %d", written)
	}
	if st.commits != 1 {
		t.Fatalf("dedupe should avoid the second commit, got %d", st.commits)
	}

	w.Reset()
	if written := w.Write(ctx, testRecords(3)); written != 3 {
		t.Fatal("reset should allow rewrites")
	}
}

func TestWriterFailedBatchIsNotMarkedSeen(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	st.failCommits[1] = true
	w := newTestWriter(t, st, 500)

	if written := w.Write(ctx, testRecords(2)); written != 0 {
		t.Fatal("first write should fail entirely")
	}
	if written := w.Write(ctx, testRecords(2)); written != 2 {
		t.Fatal("records from a failed commit must be retryable")
	}
}
