// Package firestorecollection implements chronicle's Collection interface
// on top of Google Cloud Firestore, for deployments that want a managed,
// horizontally-scaling document store under the chunk, branch, metadata,
// and key collections.
package firestorecollection

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/docver/chronicle"
)

// Collection is a Firestore-backed chronicle.Collection over a single
// top-level Firestore collection.
type Collection struct {
	client *firestore.Client
	name   string
}

// New returns a Collection over client's "name" collection.
func New(client *firestore.Client, name string) *Collection {
	return &Collection{client: client, name: name}
}

func (c *Collection) coll() *firestore.CollectionRef {
	return c.client.Collection(c.name)
}

func isOperatorMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return false
		}
	}
	return true
}

// buildQuery translates a chronicle filter map into a Firestore query. $ne
// against nil (the key index's sparse-unique-field marker) degrades to an
// unfiltered query refined client-side in filterDocs, since Firestore
// treats null comparisons narrowly.
func buildQuery(q firestore.Query, filter map[string]any) (firestore.Query, map[string]any) {
	residual := map[string]any{}
	for field, want := range filter {
		if ops, ok := want.(map[string]any); ok && isOperatorMap(ops) {
			for op, v := range ops {
				switch op {
				case "$gt":
					q = q.Where(field, ">", v)
				case "$gte":
					q = q.Where(field, ">=", v)
				case "$lt":
					q = q.Where(field, "<", v)
				case "$lte":
					q = q.Where(field, "<=", v)
				case "$ne":
					if v == nil {
						residual[field] = ops
					} else {
						q = q.Where(field, "!=", v)
					}
				case "$in":
					q = q.Where(field, "in", v)
				}
			}
			continue
		}
		q = q.Where(field, "==", want)
	}
	return q, residual
}

func matchesResidual(doc map[string]any, residual map[string]any) bool {
	for field, ops := range residual {
		m, _ := ops.(map[string]any)
		if v, ok := m["$ne"]; ok && v == nil {
			got, present := doc[field]
			if !present || got == nil {
				return false
			}
		}
	}
	return true
}

// InsertOne adds doc as a new Firestore document with an auto-generated ID.
func (c *Collection) InsertOne(ctx context.Context, doc map[string]any) error {
	_, _, err := c.coll().Add(ctx, doc)
	return err
}

func (c *Collection) queryDocs(ctx context.Context, filter map[string]any, opts chronicle.FindOptions) ([]*firestore.DocumentSnapshot, map[string]any, error) {
	q, residual := buildQuery(c.coll().Query, filter)
	for field, dir := range opts.Sort {
		direction := firestore.Asc
		if dir < 0 {
			direction = firestore.Desc
		}
		q = q.OrderBy(field, direction)
	}
	if opts.Limit > 0 && len(residual) == 0 {
		q = q.Limit(opts.Limit)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var snaps []*firestore.DocumentSnapshot
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("firestorecollection: query %s: %w", c.name, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, residual, nil
}

func applyProjection(doc map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return doc
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

// FindOne returns the first document matching filter, or nil if none match.
func (c *Collection) FindOne(ctx context.Context, filter map[string]any, opts chronicle.FindOptions) (map[string]any, error) {
	snaps, residual, err := c.queryDocs(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	for _, snap := range snaps {
		data := snap.Data()
		if matchesResidual(data, residual) {
			return applyProjection(data, opts.Projection), nil
		}
	}
	return nil, nil
}

// Find returns every document matching filter.
func (c *Collection) Find(ctx context.Context, filter map[string]any, opts chronicle.FindOptions) ([]map[string]any, error) {
	snaps, residual, err := c.queryDocs(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for _, snap := range snaps {
		data := snap.Data()
		if !matchesResidual(data, residual) {
			continue
		}
		out = append(out, applyProjection(data, opts.Projection))
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

// CountDocuments counts documents matching filter.
func (c *Collection) CountDocuments(ctx context.Context, filter map[string]any) (int64, error) {
	snaps, residual, err := c.queryDocs(ctx, filter, chronicle.FindOptions{})
	if err != nil {
		return 0, err
	}
	var n int64
	for _, snap := range snaps {
		if matchesResidual(snap.Data(), residual) {
			n++
		}
	}
	return n, nil
}

// UpdateOne merges update into the first document matching filter. With
// opts.Upsert, it creates a document from filter+update when nothing
// matches.
func (c *Collection) UpdateOne(ctx context.Context, filter, update map[string]any, opts chronicle.UpdateOptions) (int, error) {
	snaps, residual, err := c.queryDocs(ctx, filter, chronicle.FindOptions{Limit: 1})
	if err != nil {
		return 0, err
	}
	var target *firestore.DocumentSnapshot
	for _, snap := range snaps {
		if matchesResidual(snap.Data(), residual) {
			target = snap
			break
		}
	}
	if target == nil {
		if !opts.Upsert {
			return 0, nil
		}
		merged := map[string]any{}
		for k, v := range filter {
			if _, isOp := v.(map[string]any); isOp {
				continue
			}
			merged[k] = v
		}
		for k, v := range update {
			merged[k] = v
		}
		return 1, c.InsertOne(ctx, merged)
	}

	updates := make([]firestore.Update, 0, len(update))
	for k, v := range update {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	if _, err := target.Ref.Update(ctx, updates); err != nil {
		return 0, fmt.Errorf("firestorecollection: update: %w", err)
	}
	return 1, nil
}

// UpdateMany merges update into every document matching filter.
func (c *Collection) UpdateMany(ctx context.Context, filter, update map[string]any) (int, error) {
	snaps, residual, err := c.queryDocs(ctx, filter, chronicle.FindOptions{})
	if err != nil {
		return 0, err
	}
	updates := make([]firestore.Update, 0, len(update))
	for k, v := range update {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	n := 0
	for _, snap := range snaps {
		if !matchesResidual(snap.Data(), residual) {
			continue
		}
		if _, err := snap.Ref.Update(ctx, updates); err != nil {
			return n, fmt.Errorf("firestorecollection: updateMany: %w", err)
		}
		n++
	}
	return n, nil
}

// DeleteOne removes the first document matching filter.
func (c *Collection) DeleteOne(ctx context.Context, filter map[string]any) (int, error) {
	snaps, residual, err := c.queryDocs(ctx, filter, chronicle.FindOptions{Limit: 1})
	if err != nil {
		return 0, err
	}
	for _, snap := range snaps {
		if matchesResidual(snap.Data(), residual) {
			if _, err := snap.Ref.Delete(ctx); err != nil {
				return 0, fmt.Errorf("firestorecollection: delete: %w", err)
			}
			return 1, nil
		}
	}
	return 0, nil
}

// DeleteMany removes every document matching filter.
func (c *Collection) DeleteMany(ctx context.Context, filter map[string]any) (int, error) {
	snaps, residual, err := c.queryDocs(ctx, filter, chronicle.FindOptions{})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, snap := range snaps {
		if !matchesResidual(snap.Data(), residual) {
			continue
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return n, fmt.Errorf("firestorecollection: deleteMany: %w", err)
		}
		n++
	}
	return n, nil
}

// CreateIndex is a no-op: Firestore composite indexes are declared out of
// band in firestore.indexes.json / the Firestore console, not through the
// client library.
func (c *Collection) CreateIndex(ctx context.Context, spec chronicle.IndexSpec) error {
	return nil
}
