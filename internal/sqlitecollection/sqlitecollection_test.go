package sqlitecollection

import (
	"context"
	"testing"

	"github.com/docver/chronicle"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateIndexWithPartialFilterSucceeds(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	coll, err := store.Collection(ctx, "chunks")
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}

	// A partial unique index mirroring keyindex.go's ensureIndexes: SQLite
	// rejects bound parameters in a partial index's WHERE clause, so this
	// must compile the filter to inlined literals.
	if err := coll.CreateIndex(ctx, chronicle.IndexSpec{
		Keys:    chronicle.SortSpec{"key_email": 1, "branchId": 1},
		Unique:  true,
		Partial: map[string]any{"isDeleted": false, "key_email": map[string]any{"$ne": nil}},
		Name:    "key_email_branchId_partial",
	}); err != nil {
		t.Fatalf("CreateIndex with partial filter: %v", err)
	}

	if err := coll.CreateIndex(ctx, chronicle.IndexSpec{
		Keys:    chronicle.SortSpec{"docId": 1, "epoch": 1, "branchId": 1},
		Partial: map[string]any{"isLatest": true, "isDeleted": true},
		Name:    "chunk_deleted_partial",
	}); err != nil {
		t.Fatalf("CreateIndex with multi-field partial filter: %v", err)
	}
}

func TestInitializeAgainstRealSQLiteSucceeds(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	chunks, err := store.Collection(ctx, "widgets_chronicle_chunks")
	if err != nil {
		t.Fatalf("Collection(chunks): %v", err)
	}
	branches, err := store.Collection(ctx, "widgets_chronicle_branches")
	if err != nil {
		t.Fatalf("Collection(branches): %v", err)
	}
	metadata, err := store.Collection(ctx, "widgets_chronicle_metadata")
	if err != nil {
		t.Fatalf("Collection(metadata): %v", err)
	}
	keys, err := store.Collection(ctx, "widgets_chronicle_keys")
	if err != nil {
		t.Fatalf("Collection(keys): %v", err)
	}

	cfg := chronicle.DefaultConfig()
	cfg.CollectionName = "widgets"
	cfg.UniqueFields = []string{"email"}
	cfg.IndexedFields = []string{"sku"}

	db := chronicle.New(chunks, branches, metadata, keys, cfg)
	if err := db.Initialize(ctx); err != nil {
		t.Fatalf("Initialize against a real SQLite connection: %v", err)
	}

	if _, err := db.Save(ctx, "doc1", map[string]any{"email": "a@b.com", "sku": "WID-1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
}

func TestInsertFindUpdateDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	coll, err := store.Collection(ctx, "docs")
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}

	if err := coll.InsertOne(ctx, map[string]any{"docId": "doc1", "qty": int64(3)}); err != nil {
		t.Fatalf("InsertOne: %v", err)
	}

	got, err := coll.FindOne(ctx, map[string]any{"docId": "doc1"}, chronicle.FindOptions{})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if got == nil {
		t.Fatal("expected a document, got nil")
	}

	n, err := coll.UpdateOne(ctx, map[string]any{"docId": "doc1"}, map[string]any{"qty": int64(9)}, chronicle.UpdateOptions{})
	if err != nil {
		t.Fatalf("UpdateOne: %v", err)
	}
	if n != 1 {
		t.Fatalf("UpdateOne modified %d, want 1", n)
	}

	got, _ = coll.FindOne(ctx, map[string]any{"docId": "doc1"}, chronicle.FindOptions{})
	if got["qty"] != float64(9) {
		t.Errorf("qty = %v, want 9 (json round trip surfaces numbers as float64)", got["qty"])
	}

	n, err = coll.DeleteOne(ctx, map[string]any{"docId": "doc1"})
	if err != nil {
		t.Fatalf("DeleteOne: %v", err)
	}
	if n != 1 {
		t.Fatalf("DeleteOne removed %d, want 1", n)
	}

	count, err := coll.CountDocuments(ctx, map[string]any{"docId": "doc1"})
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if count != 0 {
		t.Fatalf("CountDocuments = %d, want 0", count)
	}
}
