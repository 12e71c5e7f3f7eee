package chronicle

import (
	"context"
	"strings"
	"sync"
	"time"
)

// stubNow pins nowFunc to t and returns a closure that restores it.
func stubNow(t time.Time) func() {
	prev := nowFunc
	nowFunc = func() time.Time { return t }
	return func() { nowFunc = prev }
}

// fakeCollection is a minimal in-package Collection used by white-box unit
// tests for chunkStore, keyIndex, branchManager, and rehydrator. It is
// deliberately separate from internal/memcollection (which is the
// production-quality in-memory backend offered to callers): memcollection
// imports this package for its named option types, so this package cannot
// import memcollection back without an import cycle.
type fakeCollection struct {
	mu      sync.Mutex
	docs    []map[string]any
	indexes []IndexSpec
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{}
}

func fakeClone(d map[string]any) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func fakeMatches(doc, filter map[string]any) bool {
	for field, want := range filter {
		got, present := doc[field]
		if ops, ok := want.(map[string]any); ok && fakeIsOperatorMap(ops) {
			if !fakeMatchOps(got, present, ops) {
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
		if !present || !fakeEqual(got, want) {
			return false
		}
	}
	return true
}

func fakeIsOperatorMap(m map[string]any) bool {
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return len(m) > 0
}

func fakeMatchOps(got any, present bool, ops map[string]any) bool {
	for op, v := range ops {
		switch op {
		case "$gt":
			if !present || fakeCompare(got, v) <= 0 {
				return false
			}
		case "$gte":
			if !present || fakeCompare(got, v) < 0 {
				return false
			}
		case "$lt":
			if !present || fakeCompare(got, v) >= 0 {
				return false
			}
		case "$lte":
			if !present || fakeCompare(got, v) > 0 {
				return false
			}
		case "$ne":
			if v == nil {
				if !present || got == nil {
					return false
				}
			} else if present && fakeEqual(got, v) {
				return false
			}
		case "$in":
			list, _ := v.([]any)
			found := false
			for _, item := range list {
				if present && fakeEqual(got, item) {
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

func fakeEqual(a, b any) bool {
	return fakeCompare(a, b) == 0
}

func fakeCompare(a, b any) int {
	if at, ok := a.(time.Time); ok {
		a = at.UnixNano()
	}
	if bt, ok := b.(time.Time); ok {
		b = bt.UnixNano()
	}
	af, aok := fakeToFloat(a)
	bf, bok := fakeToFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, aok := fakeToString(a)
	bs, bok := fakeToString(b)
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

func fakeToFloat(v any) (float64, bool) {
	n, ok := numericValue(v)
	return n, ok
}

func fakeToString(v any) (string, bool) {
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

func (c *fakeCollection) InsertOne(_ context.Context, doc map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, fakeClone(doc))
	return nil
}

func (c *fakeCollection) findIdxLocked(filter map[string]any) []int {
	var idx []int
	for i, d := range c.docs {
		if fakeMatches(d, filter) {
			idx = append(idx, i)
		}
	}
	return idx
}

func (c *fakeCollection) UpdateOne(_ context.Context, filter, update map[string]any, opts UpdateOptions) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.findIdxLocked(filter)
	if len(idx) == 0 {
		if !opts.Upsert {
			return 0, nil
		}
		merged := fakeClone(filter)
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

func (c *fakeCollection) UpdateMany(_ context.Context, filter, update map[string]any) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.findIdxLocked(filter)
	for _, i := range idx {
		for k, v := range update {
			c.docs[i][k] = v
		}
	}
	return len(idx), nil
}

func (c *fakeCollection) DeleteOne(_ context.Context, filter map[string]any) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.findIdxLocked(filter)
	if len(idx) == 0 {
		return 0, nil
	}
	c.docs = append(c.docs[:idx[0]], c.docs[idx[0]+1:]...)
	return 1, nil
}

func (c *fakeCollection) DeleteMany(_ context.Context, filter map[string]any) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.findIdxLocked(filter)
	if len(idx) == 0 {
		return 0, nil
	}
	removed := make(map[int]bool, len(idx))
	for _, i := range idx {
		removed[i] = true
	}
	remaining := c.docs[:0:0]
	for i, d := range c.docs {
		if !removed[i] {
			remaining = append(remaining, d)
		}
	}
	c.docs = remaining
	return len(idx), nil
}

func (c *fakeCollection) applySort(docs []map[string]any, spec SortSpec) {
	if len(spec) == 0 {
		return
	}
	fields := make([]string, 0, len(spec))
	for f := range spec {
		fields = append(fields, f)
	}
	// stable order over field names for determinism across multi-key sorts
	for i := 0; i < len(fields); i++ {
		for j := i + 1; j < len(fields); j++ {
			if fields[j] < fields[i] {
				fields[i], fields[j] = fields[j], fields[i]
			}
		}
	}
	for i := 1; i < len(docs); i++ {
		for j := i; j > 0; j-- {
			less := false
			for _, f := range fields {
				c := fakeCompare(docs[j][f], docs[j-1][f])
				if c == 0 {
					continue
				}
				if spec[f] < 0 {
					less = c > 0
				} else {
					less = c < 0
				}
				break
			}
			if !less {
				break
			}
			docs[j], docs[j-1] = docs[j-1], docs[j]
		}
	}
}

func (c *fakeCollection) FindOne(_ context.Context, filter map[string]any, opts FindOptions) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.findIdxLocked(filter)
	if len(idx) == 0 {
		return nil, nil
	}
	matched := make([]map[string]any, 0, len(idx))
	for _, i := range idx {
		matched = append(matched, fakeClone(c.docs[i]))
	}
	c.applySort(matched, opts.Sort)
	return matched[0], nil
}

func (c *fakeCollection) Find(_ context.Context, filter map[string]any, opts FindOptions) ([]map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.findIdxLocked(filter)
	matched := make([]map[string]any, 0, len(idx))
	for _, i := range idx {
		matched = append(matched, fakeClone(c.docs[i]))
	}
	c.applySort(matched, opts.Sort)
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

func (c *fakeCollection) CountDocuments(_ context.Context, filter map[string]any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.findIdxLocked(filter))), nil
}

func (c *fakeCollection) CreateIndex(_ context.Context, spec IndexSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexes = append(c.indexes, spec)
	return nil
}

func (c *fakeCollection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.docs)
}

// fixedIdentifiers hands out deterministic, incrementing ids for tests that
// need to assert on exact identifier values.
type fixedIdentifiers struct {
	mu   sync.Mutex
	next int
}

func (f *fixedIdentifiers) NewID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return "id-" + itoa(int64(f.next))
}
