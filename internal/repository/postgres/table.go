package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/userdir/internal/errs"
	"github.com/and161185/userdir/internal/expr"
	"github.com/and161185/userdir/internal/repository"
)

// Table implements repository.Table on a (key text, doc jsonb) table.
type Table struct {
	db      *DB
	keyAttr string

	qGet, qPut, qUpdate, qDelete, qScan, qScanProjected string
}

var _ repository.Table = (*Table)(nil)

// NewTable constructs a table adapter. name is the SQL table, keyAttr the
// document attribute holding the primary key.
func NewTable(db *DB, name, keyAttr string) *Table {
	t := pgx.Identifier{name}.Sanitize()
	return &Table{
		db:      db,
		keyAttr: keyAttr,

		qGet:    `SELECT doc FROM ` + t + ` WHERE key = $1`,
		qPut:    `INSERT INTO ` + t + ` (key, doc) VALUES ($1, $2::jsonb) ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc`,
		qUpdate: `UPDATE ` + t + ` SET doc = (doc || $2::jsonb) - $3::text[] WHERE key = $1`,
		qDelete: `DELETE FROM ` + t + ` WHERE key = $1`,
		qScan:   `SELECT doc FROM ` + t + ` WHERE doc->>$1 = $2`,
		qScanProjected: `SELECT (SELECT COALESCE(jsonb_object_agg(e.k, e.v), '{}'::jsonb) FROM jsonb_each(doc) AS e(k, v) WHERE e.k = ANY($3::text[])) FROM ` +
			t + ` WHERE doc->>$1 = $2`,
	}
}

// Get selects a document by key.
func (r *Table) Get(ctx context.Context, key string) (repository.Item, bool, error) {
	var doc []byte
	if err := r.db.Pool.QueryRow(ctx, r.qGet, key).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, transport("get", err)
	}
	item, err := decodeDoc(doc)
	if err != nil {
		return nil, false, err
	}
	return item, true, nil
}

// Put upserts a whole document.
func (r *Table) Put(ctx context.Context, item repository.Item) error {
	key, _ := item[r.keyAttr].(string)
	if key == "" {
		return fmt.Errorf("put: missing %q: %w", r.keyAttr, errs.ErrInvalidArgument)
	}
	doc, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if _, err := r.db.Pool.Exec(ctx, r.qPut, key, string(doc)); err != nil {
		return transport("put", err)
	}
	return nil
}

// Update merges SET values into the document and drops REMOVE names.
func (r *Table) Update(ctx context.Context, key string, u expr.Update) error {
	if u.IsEmpty() {
		return nil
	}
	set, err := json.Marshal(u.SetValues())
	if err != nil {
		return err
	}
	tag, err := r.db.Pool.Exec(ctx, r.qUpdate, key, string(set), u.RemovedNames())
	if err != nil {
		return transport("update", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: %w", key, errs.ErrNotFound)
	}
	return nil
}

// Delete removes a document; deleting a missing key succeeds.
func (r *Table) Delete(ctx context.Context, key string) error {
	if _, err := r.db.Pool.Exec(ctx, r.qDelete, key); err != nil {
		return transport("delete", err)
	}
	return nil
}

// Scan returns documents whose attribute equals the filter value, compared as text.
func (r *Table) Scan(ctx context.Context, f repository.Filter, projection ...string) ([]repository.Item, error) {
	var (
		rows pgx.Rows
		err  error
	)
	val := fmt.Sprint(f.Value)
	if len(projection) > 0 {
		rows, err = r.db.Pool.Query(ctx, r.qScanProjected, f.Attr, val, projection)
	} else {
		rows, err = r.db.Pool.Query(ctx, r.qScan, f.Attr, val)
	}
	if err != nil {
		return nil, transport("scan", err)
	}
	defer rows.Close()

	var out []repository.Item
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, transport("scan", err)
		}
		item, err := decodeDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, transport("scan", err)
	}
	return out, nil
}

// decodeDoc unmarshals a jsonb document keeping integers as int64.
func decodeDoc(doc []byte) (repository.Item, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode doc: %w", err)
	}
	item := make(repository.Item, len(raw))
	for k, v := range raw {
		if n, ok := v.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				item[k] = i
				continue
			}
			f, _ := n.Float64()
			item[k] = f
			continue
		}
		item[k] = v
	}
	return item, nil
}
