// Package memcollection implements chronicle's Collection interface
// entirely in memory, for tests and small single-process deployments that
// do not need SQLite or a cloud document store.
package memcollection

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docver/chronicle"
)

type document = map[string]any

type index struct {
	spec chronicle.IndexSpec
}

// Collection is a mutex-guarded slice of documents with a linear scan
// query engine. It favors straightforward correctness over throughput:
// production deployments back onto sqlitecollection or firestorecollection
// instead.
type Collection struct {
	mu      sync.RWMutex
	docs    []document
	indexes []index
}

// New returns an empty Collection.
func New() *Collection {
	return &Collection{}
}

func cloneDoc(d document) document {
	out := make(document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func matches(doc document, filter map[string]any) bool {
	for field, want := range filter {
		got, present := doc[field]
		if ops, ok := want.(map[string]any); ok && isOperatorMap(ops) {
			if !matchOps(got, present, ops) {
				return false
			}
			continue
		}
		if want == nil {
			if present && got != nil {
				return false
			}
			continue
		}
		if !present || !equalValue(got, want) {
			return false
		}
	}
	return true
}

func isOperatorMap(m map[string]any) bool {
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return len(m) > 0
}

func matchOps(got any, present bool, ops map[string]any) bool {
	for op, v := range ops {
		switch op {
		case "$gt":
			if !present || compare(got, v) <= 0 {
				return false
			}
		case "$gte":
			if !present || compare(got, v) < 0 {
				return false
			}
		case "$lt":
			if !present || compare(got, v) >= 0 {
				return false
			}
		case "$lte":
			if !present || compare(got, v) > 0 {
				return false
			}
		case "$ne":
			if v == nil {
				if !present || got == nil {
					return false
				}
			} else if present && equalValue(got, v) {
				return false
			}
		case "$in":
			list, _ := v.([]any)
			found := false
			for _, item := range list {
				if present && equalValue(got, item) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func equalValue(a, b any) bool {
	return compare(a, b) == 0
}

// compare orders two filter operands. time.Time compares against an int64
// by treating the int64 as Unix nanoseconds, matching how chunkstore.go
// encodes listBound.MaxTime. Everything else compares numerically,
// lexically, or (bool) as 0/1.
func compare(a, b any) int {
	if at, ok := a.(time.Time); ok {
		bn := toUnixNanos(b)
		an := at.UnixNano()
		return compareInt64(an, bn)
	}
	if bt, ok := b.(time.Time); ok {
		an := toUnixNanos(a)
		return compareInt64(an, bt.UnixNano())
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, aok := asComparableString(a)
	bs, bok := asComparableString(b)
	if aok && bok {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	return 0
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toUnixNanos(v any) int64 {
	switch t := v.(type) {
	case time.Time:
		return t.UnixNano()
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	default:
		return 0, false
	}
}

func asComparableString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		if t {
			return "1", true
		}
		return "0", true
	default:
		return "", false
	}
}

// InsertOne appends doc to the collection.
func (c *Collection) InsertOne(ctx context.Context, doc document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, cloneDoc(doc))
	return nil
}

func (c *Collection) findLocked(filter map[string]any) []int {
	var idx []int
	for i, d := range c.docs {
		if matches(d, filter) {
			idx = append(idx, i)
		}
	}
	return idx
}

// UpdateOne applies update to the first matching document, or inserts one
// built from filter+update when opts.Upsert is set and nothing matches.
func (c *Collection) UpdateOne(ctx context.Context, filter, update document, opts chronicle.UpdateOptions) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.findLocked(filter)
	if len(idx) == 0 {
		if !opts.Upsert {
			return 0, nil
		}
		merged := cloneDoc(filter)
		for k, v := range update {
			merged[k] = v
		}
		c.docs = append(c.docs, merged)
		return 1, nil
	}
	for k, v := range update {
		c.docs[idx[0]][k] = v
	}
	return 1, nil
}

// UpdateMany applies update to every matching document.
func (c *Collection) UpdateMany(ctx context.Context, filter, update document) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.findLocked(filter)
	for _, i := range idx {
		for k, v := range update {
			c.docs[i][k] = v
		}
	}
	return len(idx), nil
}

// DeleteOne removes the first matching document.
func (c *Collection) DeleteOne(ctx context.Context, filter document) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.findLocked(filter)
	if len(idx) == 0 {
		return 0, nil
	}
	c.docs = append(c.docs[:idx[0]], c.docs[idx[0]+1:]...)
	return 1, nil
}

// DeleteMany removes every matching document.
func (c *Collection) DeleteMany(ctx context.Context, filter document) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.findLocked(filter)
	if len(idx) == 0 {
		return 0, nil
	}
	remaining := c.docs[:0:0]
	removed := make(map[int]bool, len(idx))
	for _, i := range idx {
		removed[i] = true
	}
	for i, d := range c.docs {
		if !removed[i] {
			remaining = append(remaining, d)
		}
	}
	c.docs = remaining
	return len(idx), nil
}

func applySort(docs []document, spec chronicle.SortSpec) {
	if len(spec) == 0 {
		return
	}
	fields := make([]string, 0, len(spec))
	for f := range spec {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			c := compare(docs[i][f], docs[j][f])
			if c == 0 {
				continue
			}
			if spec[f] < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func applyProjection(doc document, fields []string) document {
	if len(fields) == 0 {
		return doc
	}
	out := make(document, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

// FindOne returns the first matching document, or nil if none match.
func (c *Collection) FindOne(ctx context.Context, filter document, opts chronicle.FindOptions) (document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx := c.findLocked(filter)
	if len(idx) == 0 {
		return nil, nil
	}
	matched := make([]document, 0, len(idx))
	for _, i := range idx {
		matched = append(matched, cloneDoc(c.docs[i]))
	}
	applySort(matched, opts.Sort)
	return applyProjection(matched[0], opts.Projection), nil
}

// Find returns every matching document.
func (c *Collection) Find(ctx context.Context, filter document, opts chronicle.FindOptions) ([]document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	idx := c.findLocked(filter)
	matched := make([]document, 0, len(idx))
	for _, i := range idx {
		matched = append(matched, cloneDoc(c.docs[i]))
	}
	applySort(matched, opts.Sort)
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	for i, d := range matched {
		matched[i] = applyProjection(d, opts.Projection)
	}
	return matched, nil
}

// CountDocuments counts documents matching filter.
func (c *Collection) CountDocuments(ctx context.Context, filter document) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.findLocked(filter))), nil
}

// CreateIndex records the index spec. memcollection does not build a real
// index structure since its scans are linear regardless; the core already
// enforces uniqueness itself via the key index, so this only needs to
// remember specs for introspection in tests.
func (c *Collection) CreateIndex(ctx context.Context, spec chronicle.IndexSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexes = append(c.indexes, index{spec: spec})
	return nil
}

// Len reports the number of documents currently stored, for test
// assertions.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}
