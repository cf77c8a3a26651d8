package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is a thread-safe in-memory Store. It backs tests and the
// --dry-run mode of the ingest binary; nothing persists across restarts.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]Document)}
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (m *Memory) Set(ctx context.Context, collection, id string, doc Document, merge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply(collection, id, doc, merge)
	return nil
}

func (m *Memory) Query(ctx context.Context, collection string, q Query) ([]Doc, error) {
	for _, f := range q.Filters {
		if !validFilterOp(f.Op) {
			return nil, fmt.Errorf("store: unsupported filter operator %q", f.Op)
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Doc
	for id, doc := range m.collections[collection] {
		if matches(doc, q.Filters) {
			out = append(out, Doc{ID: id, Data: cloneDoc(doc)})
		}
	}

	if q.OrderBy != "" {
		sort.Slice(out, func(i, j int) bool {
			less := compare(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy]) < 0
			if q.Desc {
				return !less
			}
			return less
		})
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// apply assumes the write lock is held.
func (m *Memory) apply(collection, id string, doc Document, merge bool) {
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]Document)
		m.collections[collection] = coll
	}
	if existing, ok := coll[id]; ok && merge {
		merged := cloneDoc(existing)
		for k, v := range doc {
			merged[k] = v
		}
		coll[id] = merged
		return
	}
	coll[id] = cloneDoc(doc)
}

type memoryBatchOp struct {
	collection string
	id         string
	doc        Document
	merge      bool
	delete     bool
}

type memoryBatch struct {
	store *Memory
	ops   []memoryBatchOp
}

func (m *Memory) NewBatch() Batch {
	return &memoryBatch{store: m}
}

func (b *memoryBatch) Set(collection, id string, doc Document, merge bool) {
	b.ops = append(b.ops, memoryBatchOp{collection: collection, id: id, doc: cloneDoc(doc), merge: merge})
}

func (b *memoryBatch) Delete(collection, id string) {
	b.ops = append(b.ops, memoryBatchOp{collection: collection, id: id, delete: true})
}

func (b *memoryBatch) Len() int { return len(b.ops) }

func (b *memoryBatch) Commit(ctx context.Context) error {
	if err := checkBatchSize(len(b.ops)); err != nil {
		return err
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.store.collections[op.collection], op.id)
			continue
		}
		b.store.apply(op.collection, op.id, op.doc, op.merge)
	}
	b.ops = nil
	return nil
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok {
			return false
		}
		c := compare(v, f.Value)
		switch f.Op {
		case OpEqual:
			if c != 0 {
				return false
			}
		case OpLess:
			if c >= 0 {
				return false
			}
		case OpLessEqual:
			if c > 0 {
				return false
			}
		case OpGreater:
			if c <= 0 {
				return false
			}
		case OpGreaterEqual:
			if c < 0 {
				return false
			}
		}
	}
	return true
}

// compare orders two document values. Mixed numeric types are
// normalized to float64; times compare chronologically; everything
// else falls back to string comparison of the Go values.
func compare(a, b any) int {
	if at, aok := asTime(a); aok {
		if bt, bok := asTime(b); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			}
			return 0
		}
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

func cloneDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		switch vv := v.(type) {
		case map[string]float64:
			c := make(map[string]float64, len(vv))
			for mk, mv := range vv {
				c[mk] = mv
			}
			out[k] = c
		case map[string]any:
			c := make(map[string]any, len(vv))
			for mk, mv := range vv {
				c[mk] = mv
			}
			out[k] = c
		case []int:
			out[k] = append([]int(nil), vv...)
		case []string:
			out[k] = append([]string(nil), vv...)
		default:
			out[k] = v
		}
	}
	return out
}
