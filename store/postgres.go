package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores documents as JSONB rows keyed by (collection, id).
// Merge writes use the JSONB concatenation operator so only the fields
// present in the incoming document are touched.
type Postgres struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS documents (
	collection text NOT NULL,
	id         text NOT NULL,
	doc        jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_doc_idx ON documents USING gin (doc jsonb_path_ops);
`

// NewPostgres opens a connection pool against dsn and verifies it with
// a ping.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the documents table and its index if absent.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (p *Postgres) Set(ctx context.Context, collection, id string, doc Document, merge bool) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if _, err := p.pool.Exec(ctx, upsertSQL(merge), collection, id, raw); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func upsertSQL(merge bool) string {
	if merge {
		return `INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
			ON CONFLICT (collection, id)
			DO UPDATE SET doc = documents.doc || EXCLUDED.doc, updated_at = now()`
	}
	return `INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3)
		ON CONFLICT (collection, id)
		DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`
}

func (p *Postgres) Query(ctx context.Context, collection string, q Query) ([]Doc, error) {
	sql, args, err := buildQuerySQL(collection, q)
	if err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Doc
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", collection, err)
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		out = append(out, Doc{ID: id, Data: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", collection, err)
	}
	return out, nil
}

// buildQuerySQL turns a Query into SQL over the jsonb column. Field
// names come from pipeline code, never user input, but are still
// checked before being inlined into the expression.
func buildQuerySQL(collection string, q Query) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, doc FROM documents WHERE collection = $1`)
	args := []any{collection}

	for _, f := range q.Filters {
		if !validFilterOp(f.Op) {
			return "", nil, fmt.Errorf("store: unsupported filter operator %q", f.Op)
		}
		if !validFieldName(f.Field) {
			return "", nil, fmt.Errorf("store: invalid filter field %q", f.Field)
		}
		args = append(args, f.Value)
		fmt.Fprintf(&sb, " AND %s %s $%d", fieldExpr(f.Field, f.Value), sqlOp(f.Op), len(args))
	}

	if q.OrderBy != "" {
		if !validFieldName(q.OrderBy) {
			return "", nil, fmt.Errorf("store: invalid order field %q", q.OrderBy)
		}
		fmt.Fprintf(&sb, " ORDER BY doc->>'%s'", q.OrderBy)
		if q.Desc {
			sb.WriteString(" DESC")
		}
	} else {
		sb.WriteString(" ORDER BY id")
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	return sb.String(), args, nil
}

func sqlOp(op string) string {
	if op == OpEqual {
		return "="
	}
	return op
}

// fieldExpr casts the jsonb text value to match the filter value's type
// so numeric and time comparisons are not lexicographic.
func fieldExpr(field string, value any) string {
	switch value.(type) {
	case time.Time:
		return fmt.Sprintf("(doc->>'%s')::timestamptz", field)
	case int, int32, int64, float32, float64:
		return fmt.Sprintf("(doc->>'%s')::numeric", field)
	case bool:
		return fmt.Sprintf("(doc->>'%s')::boolean", field)
	}
	return fmt.Sprintf("doc->>'%s'", field)
}

func validFieldName(field string) bool {
	if field == "" {
		return false
	}
	for _, r := range field {
		ok := r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}

type pgBatchOp struct {
	collection string
	id         string
	raw        []byte
	merge      bool
	delete     bool
	encodeErr  error
}

type pgBatch struct {
	store *Postgres
	ops   []pgBatchOp
}

func (p *Postgres) NewBatch() Batch {
	return &pgBatch{store: p}
}

func (b *pgBatch) Set(collection, id string, doc Document, merge bool) {
	raw, err := json.Marshal(doc)
	b.ops = append(b.ops, pgBatchOp{collection: collection, id: id, raw: raw, merge: merge, encodeErr: err})
}

func (b *pgBatch) Delete(collection, id string) {
	b.ops = append(b.ops, pgBatchOp{collection: collection, id: id, delete: true})
}

func (b *pgBatch) Len() int { return len(b.ops) }

// Commit applies all queued operations inside one transaction.
func (b *pgBatch) Commit(ctx context.Context) error {
	if err := checkBatchSize(len(b.ops)); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, op := range b.ops {
		if op.encodeErr != nil {
			return fmt.Errorf("encode %s/%s: %w", op.collection, op.id, op.encodeErr)
		}
		if op.delete {
			batch.Queue(`DELETE FROM documents WHERE collection = $1 AND id = $2`, op.collection, op.id)
			continue
		}
		batch.Queue(upsertSQL(op.merge), op.collection, op.id, op.raw)
	}

	tx, err := b.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for range b.ops {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	b.ops = nil
	return nil
}
