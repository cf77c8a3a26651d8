// Package store provides a document store abstraction with batched
// writes and a small filter-based query surface. Two implementations
// exist: a Postgres JSONB store for production and an in-memory store
// for tests and dry runs.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Document is a schemaless field map persisted under a collection/id pair.
type Document = map[string]any

// MaxBatchSize is the hard cap on operations per batch commit.
const MaxBatchSize = 500

// ErrNotFound is returned by Get when no document exists.
var ErrNotFound = errors.New("store: document not found")

// Filter operators accepted by Query.
const (
	OpEqual        = "=="
	OpLess         = "<"
	OpLessEqual    = "<="
	OpGreater      = ">"
	OpGreaterEqual = ">="
)

// Filter constrains a query to documents whose field compares true
// against the value.
type Filter struct {
	Field string
	Op    string
	Value any
}

// Query selects documents within a collection.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Doc pairs a document with its id, as returned by Query.
type Doc struct {
	ID   string
	Data Document
}

// Batch accumulates writes and deletes for a single atomic commit.
// Implementations reject commits above MaxBatchSize.
type Batch interface {
	Set(collection, id string, doc Document, merge bool)
	Delete(collection, id string)
	Len() int
	Commit(ctx context.Context) error
}

// Store is the document persistence surface used by the pipelines.
// A merge Set overwrites only the fields present in doc; a non-merge
// Set replaces the document wholesale.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, doc Document, merge bool) error
	Query(ctx context.Context, collection string, q Query) ([]Doc, error)
	NewBatch() Batch
}

func validFilterOp(op string) bool {
	switch op {
	case OpEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return true
	}
	return false
}

func checkBatchSize(n int) error {
	if n > MaxBatchSize {
		return fmt.Errorf("store: batch of %d operations exceeds cap of %d", n, MaxBatchSize)
	}
	return nil
}
