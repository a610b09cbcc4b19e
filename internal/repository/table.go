// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/userdir/internal/expr"
)

// Item is a single stored record as attribute name -> value.
// Values are strings and int64 numbers.
type Item = map[string]any

// Filter selects items whose attribute Attr equals Value.
type Filter struct {
	Attr  string
	Value any
}

// Table is a key-value table with single-key atomic operations.
// Implementations wrap driver failures with errs.ErrTransport.
type Table interface {
	// Get loads an item by primary key; ok is false when it does not exist.
	Get(ctx context.Context, key string) (item Item, ok bool, err error)
	// Put writes a whole item, replacing any previous one with the same key.
	Put(ctx context.Context, item Item) error
	// Update applies a compiled update expression to the item at key.
	Update(ctx context.Context, key string, u expr.Update) error
	// Delete removes the item at key; a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Scan returns every item matching filter, reduced to projection when given.
	Scan(ctx context.Context, filter Filter, projection ...string) ([]Item, error)
}
