package chronicle

import "context"

// SortSpec orders a Find by field, ascending if positive, descending if
// negative magnitude is ignored (implementations treat any negative value
// as descending, mirroring the conventional Mongo sort-direction encoding).
type SortSpec map[string]int

// FindOptions controls a Collection.Find or Collection.FindOne call.
type FindOptions struct {
	Sort       SortSpec
	Limit      int
	Projection []string
}

// UpdateOptions controls a Collection.UpdateOne or UpdateMany call.
type UpdateOptions struct {
	// Upsert inserts a new document built from the filter and update
	// operators when no document matches the filter.
	Upsert bool
}

// IndexSpec describes a single index to create via Collection.CreateIndex.
type IndexSpec struct {
	// Keys lists the indexed field paths in order, each 1 (ascending) or
	// -1 (descending).
	Keys SortSpec
	// Unique enforces no two documents share the same key combination,
	// subject to Partial.
	Unique bool
	// Partial, if non-empty, restricts the index to documents matching
	// this filter (a partial/filtered index).
	Partial map[string]any
	// Name overrides the backend's default generated index name.
	Name string
}

// Collection is the storage abstraction the core consumes for each of its
// own collections (chunks, branches, metadata, keys) as well as, when a
// host wants it, the live mirror collection itself. It mirrors the
// subset of a conventional document-database driver's API that the core
// needs: indexed queries, upserts, and atomic single-document updates.
//
// Implementations must provide at least per-document atomicity; they need
// not provide cross-document transactions. See internal/memcollection,
// internal/sqlitecollection, and internal/firestorecollection for
// concrete implementations.
type Collection interface {
	InsertOne(ctx context.Context, doc map[string]any) error
	UpdateOne(ctx context.Context, filter, update map[string]any, opts UpdateOptions) (matched int, err error)
	UpdateMany(ctx context.Context, filter, update map[string]any) (matched int, err error)
	DeleteOne(ctx context.Context, filter map[string]any) (deleted int, err error)
	DeleteMany(ctx context.Context, filter map[string]any) (deleted int, err error)
	FindOne(ctx context.Context, filter map[string]any, opts FindOptions) (map[string]any, error)
	Find(ctx context.Context, filter map[string]any, opts FindOptions) ([]map[string]any, error)
	CountDocuments(ctx context.Context, filter map[string]any) (int64, error)
	CreateIndex(ctx context.Context, spec IndexSpec) error
}

// IdentifierFactory generates opaque, sortable, collision-resistant
// identifiers for chunks, branches, and documents.
type IdentifierFactory interface {
	NewID() string
}
