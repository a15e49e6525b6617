// Package store defines the document store abstraction the rest of the
// application is written against: keyed JSON documents grouped into named
// collections, with shallow merge writes and snapshot subscriptions.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Doc is a shallow document: field name to JSON-compatible value. Values are
// normalized through JSON on write, so readers always see the JSON type set
// (string, float64, bool, []any, map[string]any, nil) regardless of backend.
type Doc map[string]any

// Key identifies a single document inside a collection.
type Key struct {
	Collection string
	ID         string
}

func (k Key) String() string {
	return k.Collection + "/" + k.ID
}

// Op is a query filter operator.
type Op string

const (
	// OpEqual matches documents whose field equals the filter value.
	OpEqual Op = "=="
	// OpContains matches documents whose array field contains the filter value.
	OpContains Op = "array-contains"
)

// Filter is a single equality-style constraint on a query.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents from one collection. Filters are ANDed. When
// OrderBy is set, results are sorted ascending by that field.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
}

// Where appends an equality filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(q.Filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// Snapshot is a point-in-time materialization of a single document.
type Snapshot struct {
	Key    Key
	Exists bool
	Data   Doc
}

// QuerySnapshot is a point-in-time materialization of a query result.
type QuerySnapshot struct {
	Docs []Snapshot
}

// Store is the document store contract. All writes are atomic at single-key
// granularity; no multi-key transactions are offered, so callers issue
// independent idempotent writes and tolerate partial application.
type Store interface {
	// Get returns the current snapshot of one document. A missing document
	// is not an error; Exists is false.
	Get(ctx context.Context, key Key) (Snapshot, error)
	// SetMerge shallow-merges fields into the document, creating it when
	// absent. Untouched fields are never cleared.
	SetMerge(ctx context.Context, key Key, fields Doc) error
	// Delete removes the document. Deleting a missing document is a no-op.
	Delete(ctx context.Context, key Key) error
	// GetQuery returns the current result set of a query.
	GetQuery(ctx context.Context, q Query) (QuerySnapshot, error)
	// Watch delivers an initial snapshot of the document immediately, then a
	// new snapshot after every change, until cancelled.
	Watch(ctx context.Context, key Key) (*DocWatch, error)
	// WatchQuery delivers an initial result set immediately, then a new one
	// after every change in the collection, until cancelled.
	WatchQuery(ctx context.Context, q Query) (*QueryWatch, error)
}

// Normalize round-trips fields through JSON so that every backend stores and
// returns the same value types.
func Normalize(fields Doc) (Doc, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	var out Doc
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return out, nil
}

// Merge returns base with overlay's fields shallow-merged on top. Base may be
// nil. The result is a fresh map; neither input is mutated.
func Merge(base, overlay Doc) Doc {
	out := make(Doc, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// Matches reports whether a document satisfies every filter of the query.
func Matches(data Doc, q Query) bool {
	for _, f := range q.Filters {
		v, ok := data[f.Field]
		switch f.Op {
		case OpEqual:
			if !ok || !looseEqual(v, f.Value) {
				return false
			}
		case OpContains:
			arr, isArr := v.([]any)
			if !ok || !isArr {
				return false
			}
			found := false
			for _, item := range arr {
				if looseEqual(item, f.Value) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// looseEqual compares JSON-normalized values against caller-supplied filter
// values, tolerating the int/float64 mismatch JSON decoding introduces.
func looseEqual(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		if fb, okb := asFloat(b); okb {
			return fa == fb
		}
		return false
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	}
	return 0, false
}
