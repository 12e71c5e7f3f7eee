package memcollection

import (
	"context"
	"testing"

	"github.com/docver/chronicle"
)

func TestInsertAndFindOneExactMatch(t *testing.T) {
	ctx := context.Background()
	c := New()
	if err := c.InsertOne(ctx, map[string]any{"sku": "WID-1", "qty": int64(3)}); err != nil {
		t.Fatalf("InsertOne: %v", err)
	}

	doc, err := c.FindOne(ctx, map[string]any{"sku": "WID-1"}, chronicle.FindOptions{})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if doc == nil || doc["qty"] != int64(3) {
		t.Fatalf("FindOne = %v, want qty 3", doc)
	}
}

func TestFindOneReturnsNilWhenNoMatch(t *testing.T) {
	ctx := context.Background()
	c := New()
	doc, err := c.FindOne(ctx, map[string]any{"sku": "missing"}, chronicle.FindOptions{})
	if err != nil {
		t.Fatalf("FindOne: %v", err)
	}
	if doc != nil {
		t.Fatalf("expected nil, got %v", doc)
	}
}

func TestFindRespectsOperators(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.InsertOne(ctx, map[string]any{"qty": int64(1)})
	c.InsertOne(ctx, map[string]any{"qty": int64(5)})
	c.InsertOne(ctx, map[string]any{"qty": int64(10)})

	got, err := c.Find(ctx, map[string]any{"qty": map[string]any{"$gte": int64(5)}}, chronicle.FindOptions{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Find($gte) = %d docs, want 2", len(got))
	}
}

func TestFindNeOperatorExcludesNullAndMissing(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.InsertOne(ctx, map[string]any{"email": "a@b.com"})
	c.InsertOne(ctx, map[string]any{"email": nil})
	c.InsertOne(ctx, map[string]any{})

	got, err := c.Find(ctx, map[string]any{"email": map[string]any{"$ne": nil}}, chronicle.FindOptions{})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Find($ne: nil) = %d docs, want 1", len(got))
	}
}

func TestFindSortAndLimit(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.InsertOne(ctx, map[string]any{"n": int64(3)})
	c.InsertOne(ctx, map[string]any{"n": int64(1)})
	c.InsertOne(ctx, map[string]any{"n": int64(2)})

	got, err := c.Find(ctx, map[string]any{}, chronicle.FindOptions{Sort: chronicle.SortSpec{"n": 1}, Limit: 2})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Find limit = %d, want 2", len(got))
	}
	if got[0]["n"] != int64(1) || got[1]["n"] != int64(2) {
		t.Fatalf("Find sort order = %v", got)
	}
}

func TestFindProjectionRestrictsFields(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.InsertOne(ctx, map[string]any{"sku": "WID-1", "qty": int64(3), "color": "red"})

	got, err := c.Find(ctx, map[string]any{}, chronicle.FindOptions{Projection: []string{"sku"}})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Find = %d docs, want 1", len(got))
	}
	if _, ok := got[0]["qty"]; ok {
		t.Error("projection should have excluded qty")
	}
	if got[0]["sku"] != "WID-1" {
		t.Errorf("sku = %v, want WID-1", got[0]["sku"])
	}
}

func TestUpdateOneUpsertInsertsWhenNoMatch(t *testing.T) {
	ctx := context.Background()
	c := New()
	n, err := c.UpdateOne(ctx, map[string]any{"docId": "doc1"}, map[string]any{"qty": int64(1)}, chronicle.UpdateOptions{Upsert: true})
	if err != nil {
		t.Fatalf("UpdateOne: %v", err)
	}
	if n != 1 {
		t.Fatalf("UpdateOne upsert modified %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestUpdateOneWithoutUpsertIsNoOpWhenMissing(t *testing.T) {
	ctx := context.Background()
	c := New()
	n, err := c.UpdateOne(ctx, map[string]any{"docId": "doc1"}, map[string]any{"qty": int64(1)}, chronicle.UpdateOptions{})
	if err != nil {
		t.Fatalf("UpdateOne: %v", err)
	}
	if n != 0 {
		t.Fatalf("UpdateOne = %d, want 0", n)
	}
	if c.Len() != 0 {
		t.Fatal("nothing should have been inserted")
	}
}

func TestUpdateManyAppliesToAllMatches(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.InsertOne(ctx, map[string]any{"branchId": "main", "isLatest": true})
	c.InsertOne(ctx, map[string]any{"branchId": "main", "isLatest": true})
	c.InsertOne(ctx, map[string]any{"branchId": "other", "isLatest": true})

	n, err := c.UpdateMany(ctx, map[string]any{"branchId": "main"}, map[string]any{"isLatest": false})
	if err != nil {
		t.Fatalf("UpdateMany: %v", err)
	}
	if n != 2 {
		t.Fatalf("UpdateMany modified %d, want 2", n)
	}

	remaining, _ := c.Find(ctx, map[string]any{"branchId": "other", "isLatest": true}, chronicle.FindOptions{})
	if len(remaining) != 1 {
		t.Fatal("the other branch's document should be untouched")
	}
}

func TestDeleteOneRemovesSingleMatch(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.InsertOne(ctx, map[string]any{"id": int64(1)})
	c.InsertOne(ctx, map[string]any{"id": int64(1)})

	n, err := c.DeleteOne(ctx, map[string]any{"id": int64(1)})
	if err != nil {
		t.Fatalf("DeleteOne: %v", err)
	}
	if n != 1 {
		t.Fatalf("DeleteOne removed %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1 remaining", c.Len())
	}
}

func TestDeleteManyRemovesAllMatches(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.InsertOne(ctx, map[string]any{"epoch": int64(1)})
	c.InsertOne(ctx, map[string]any{"epoch": int64(1)})
	c.InsertOne(ctx, map[string]any{"epoch": int64(2)})

	n, err := c.DeleteMany(ctx, map[string]any{"epoch": int64(1)})
	if err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if n != 2 {
		t.Fatalf("DeleteMany removed %d, want 2", n)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestCountDocuments(t *testing.T) {
	ctx := context.Background()
	c := New()
	c.InsertOne(ctx, map[string]any{"docId": "doc1"})
	c.InsertOne(ctx, map[string]any{"docId": "doc1"})
	c.InsertOne(ctx, map[string]any{"docId": "doc2"})

	n, err := c.CountDocuments(ctx, map[string]any{"docId": "doc1"})
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if n != 2 {
		t.Fatalf("CountDocuments = %d, want 2", n)
	}
}

func TestCreateIndexRecordsSpecForIntrospection(t *testing.T) {
	ctx := context.Background()
	c := New()
	spec := chronicle.IndexSpec{Keys: chronicle.SortSpec{"sku": 1}, Unique: true, Name: "sku_unique"}
	if err := c.CreateIndex(ctx, spec); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if len(c.indexes) != 1 || c.indexes[0].spec.Name != "sku_unique" {
		t.Fatalf("indexes = %+v", c.indexes)
	}
}

func TestInsertOneClonesSoCallerMutationsDoNotLeak(t *testing.T) {
	ctx := context.Background()
	c := New()
	doc := map[string]any{"qty": int64(1)}
	c.InsertOne(ctx, doc)
	doc["qty"] = int64(999)

	got, _ := c.FindOne(ctx, map[string]any{}, chronicle.FindOptions{})
	if got["qty"] != int64(1) {
		t.Errorf("qty = %v, want 1 (insert should have cloned the input)", got["qty"])
	}
}
