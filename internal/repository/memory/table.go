// Package memory is an in-process repository.Table for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/and161185/userdir/internal/errs"
	"github.com/and161185/userdir/internal/expr"
	"github.com/and161185/userdir/internal/repository"
)

// Table keeps items in a map guarded by a mutex.
type Table struct {
	keyAttr string

	mu    sync.RWMutex
	items map[string]repository.Item
}

var _ repository.Table = (*Table)(nil)

// NewTable creates an empty table keyed by keyAttr.
func NewTable(keyAttr string) *Table {
	return &Table{keyAttr: keyAttr, items: map[string]repository.Item{}}
}

func (t *Table) Get(_ context.Context, key string) (repository.Item, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	it, ok := t.items[key]
	if !ok {
		return nil, false, nil
	}
	return clone(it), true, nil
}

func (t *Table) Put(_ context.Context, item repository.Item) error {
	key, _ := item[t.keyAttr].(string)
	if key == "" {
		return fmt.Errorf("put: missing %q: %w", t.keyAttr, errs.ErrInvalidArgument)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[key] = clone(item)
	return nil
}

// Update fails with errs.ErrNotFound when key is absent, like the other backends.
func (t *Table) Update(_ context.Context, key string, u expr.Update) error {
	if u.IsEmpty() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[key]
	if !ok {
		return fmt.Errorf("update %s: %w", key, errs.ErrNotFound)
	}
	t.items[key] = expr.Apply(it, u)
	return nil
}

func (t *Table) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, key)
	return nil
}

// Scan walks items in key order so results are stable.
func (t *Table) Scan(_ context.Context, f repository.Filter, projection ...string) ([]repository.Item, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	want := fmt.Sprint(f.Value)
	var out []repository.Item
	for _, k := range keys {
		it := t.items[k]
		v, ok := it[f.Attr]
		if !ok || fmt.Sprint(v) != want {
			continue
		}
		out = append(out, project(it, projection))
	}
	return out, nil
}

// Len reports the number of stored items.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

func project(it repository.Item, names []string) repository.Item {
	if len(names) == 0 {
		return clone(it)
	}
	out := make(repository.Item, len(names))
	for _, n := range names {
		if v, ok := it[n]; ok {
			out[n] = v
		}
	}
	return out
}

func clone(it repository.Item) repository.Item {
	out := make(repository.Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}
