package chronicle

import (
	"context"
	"testing"
	"time"
)

func TestRehydratorFoldsDeltasOntoFull(t *testing.T) {
	ctx := context.Background()
	cs := newTestChunkStore()
	r := newRehydrator(cs)
	g := chunkGroup{DocID: "doc1", Epoch: 1, BranchID: "main"}

	cs.appendChunk(ctx, g, 1, ccFull, false, map[string]any{"sku": "WID-1", "qty": 1})
	cs.appendChunk(ctx, g, 2, ccDelta, false, map[string]any{"qty": 2})
	cs.appendChunk(ctx, g, 3, ccDelta, false, map[string]any{"color": "red"})

	got, err := r.rehydrate(ctx, g, latestBound)
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if got == nil {
		t.Fatal("expected a result, got nil")
	}
	if got.Serial != 3 {
		t.Errorf("Serial = %d, want 3", got.Serial)
	}
	if got.State["sku"] != "WID-1" {
		t.Errorf("sku = %v, want WID-1 (carried from FULL)", got.State["sku"])
	}
	if got.State["qty"] != 2 {
		t.Errorf("qty = %v, want 2 (overwritten by delta)", got.State["qty"])
	}
	if got.State["color"] != "red" {
		t.Errorf("color = %v, want red (added by delta)", got.State["color"])
	}
}

func TestRehydratorAtSerialBoundStopsEarly(t *testing.T) {
	ctx := context.Background()
	cs := newTestChunkStore()
	r := newRehydrator(cs)
	g := chunkGroup{DocID: "doc1", Epoch: 1, BranchID: "main"}

	cs.appendChunk(ctx, g, 1, ccFull, false, map[string]any{"qty": 1})
	cs.appendChunk(ctx, g, 2, ccDelta, false, map[string]any{"qty": 2})
	cs.appendChunk(ctx, g, 3, ccDelta, false, map[string]any{"qty": 3})

	got, err := r.rehydrate(ctx, g, atSerial(2))
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if got.Serial != 2 {
		t.Errorf("Serial = %d, want 2", got.Serial)
	}
	if got.State["qty"] != 2 {
		t.Errorf("qty = %v, want 2", got.State["qty"])
	}
}

func TestRehydratorAtTimeBoundStopsEarly(t *testing.T) {
	ctx := context.Background()
	cs := newTestChunkStore()
	r := newRehydrator(cs)
	g := chunkGroup{DocID: "doc1", Epoch: 1, BranchID: "main"}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	restore := stubNow(base)
	cs.appendChunk(ctx, g, 1, ccFull, false, map[string]any{"qty": 1})
	restore()

	restore = stubNow(base.Add(time.Hour))
	cs.appendChunk(ctx, g, 2, ccDelta, false, map[string]any{"qty": 2})
	restore()

	restore = stubNow(base.Add(2 * time.Hour))
	cs.appendChunk(ctx, g, 3, ccDelta, false, map[string]any{"qty": 3})
	restore()

	got, err := r.rehydrate(ctx, g, atTime(base.Add(90*time.Minute)))
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if got.Serial != 2 {
		t.Errorf("Serial = %d, want 2", got.Serial)
	}
}

func TestRehydratorEmptyGroupReturnsNilNotError(t *testing.T) {
	ctx := context.Background()
	cs := newTestChunkStore()
	r := newRehydrator(cs)
	g := chunkGroup{DocID: "doc1", Epoch: 1, BranchID: "main"}

	got, err := r.rehydrate(ctx, g, latestBound)
	if err != nil {
		t.Fatalf("rehydrate on empty group should not error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil result, got %+v", got)
	}
}

func TestRehydratorNoReachableFullIsCorrupt(t *testing.T) {
	ctx := context.Background()
	cs := newTestChunkStore()
	r := newRehydrator(cs)
	g := chunkGroup{DocID: "doc1", Epoch: 1, BranchID: "main"}

	// A DELTA-only sequence with no preceding FULL violates the invariant
	// that every chunk group must open with a FULL chunk.
	cs.appendChunk(ctx, g, 1, ccDelta, false, map[string]any{"qty": 1})

	_, err := r.rehydrate(ctx, g, latestBound)
	if err == nil {
		t.Fatal("expected a corruption error, got nil")
	}
}

func TestRehydratorCarriesDeletedFlagFromTail(t *testing.T) {
	ctx := context.Background()
	cs := newTestChunkStore()
	r := newRehydrator(cs)
	g := chunkGroup{DocID: "doc1", Epoch: 1, BranchID: "main"}

	cs.appendChunk(ctx, g, 1, ccFull, false, map[string]any{"qty": 1})
	cs.appendChunk(ctx, g, 2, ccDelta, true, map[string]any{})

	got, err := r.rehydrate(ctx, g, latestBound)
	if err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if !got.IsDeleted {
		t.Error("expected IsDeleted to be true, carried from the tail chunk")
	}
}

func TestRehydratorMetricsNilReceiverIsSafe(t *testing.T) {
	ctx := context.Background()
	cs := newTestChunkStore()
	r := &rehydrator{store: cs}
	g := chunkGroup{DocID: "doc1", Epoch: 1, BranchID: "main"}
	cs.appendChunk(ctx, g, 1, ccFull, false, map[string]any{})

	if _, err := r.rehydrate(ctx, g, latestBound); err != nil {
		t.Fatalf("rehydrate with nil metrics should not error: %v", err)
	}
}
