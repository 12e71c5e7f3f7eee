package chronicle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docver/chronicle"
	"github.com/docver/chronicle/internal/memcollection"
)

func newTestChronicle(t *testing.T, cfg chronicle.Config) *chronicle.Chronicle {
	t.Helper()
	cfg.CollectionName = "widgets"
	c := chronicle.New(memcollection.New(), memcollection.New(), memcollection.New(), memcollection.New(), cfg)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return c
}

func TestSaveCreatesThenUpdatesWithDeltaCadence(t *testing.T) {
	ctx := context.Background()
	cfg := chronicle.DefaultConfig()
	cfg.Chunking.FullChunkInterval = 3
	c := newTestChronicle(t, cfg)

	res, err := c.Save(ctx, "doc1", map[string]any{"sku": "WID-1", "qty": 1})
	if err != nil {
		t.Fatalf("Save (create): %v", err)
	}
	if res.NoOp {
		t.Fatal("first save should not be a no-op")
	}

	if _, err := c.Save(ctx, "doc1", map[string]any{"sku": "WID-1", "qty": 2}); err != nil {
		t.Fatalf("Save (update): %v", err)
	}
	// Third save lands on serial 3, a full-chunk cadence tick.
	if _, err := c.Save(ctx, "doc1", map[string]any{"sku": "WID-1", "qty": 3}); err != nil {
		t.Fatalf("Save (update 2): %v", err)
	}

	got, err := c.AsOf(ctx, "doc1", time.Now().Add(time.Hour), chronicle.AsOfOptions{})
	if err != nil {
		t.Fatalf("AsOf: %v", err)
	}
	if !got.Found {
		t.Fatal("expected to find doc1")
	}
	if got.State["qty"] != 3 {
		t.Errorf("qty = %v, want 3", got.State["qty"])
	}
	if got.Serial != 3 {
		t.Errorf("Serial = %d, want 3", got.Serial)
	}
}

func TestSaveIsNoOpWhenPayloadUnchanged(t *testing.T) {
	ctx := context.Background()
	c := newTestChronicle(t, chronicle.DefaultConfig())

	if _, err := c.Save(ctx, "doc1", map[string]any{"qty": 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	res, err := c.Save(ctx, "doc1", map[string]any{"qty": 1})
	if err != nil {
		t.Fatalf("Save (repeat): %v", err)
	}
	if !res.NoOp {
		t.Fatal("identical payload save should be a no-op")
	}
}

func TestSaveRejectsDuplicateUniqueField(t *testing.T) {
	ctx := context.Background()
	cfg := chronicle.DefaultConfig()
	cfg.UniqueFields = []string{"email"}
	c := newTestChronicle(t, cfg)

	if _, err := c.Save(ctx, "doc1", map[string]any{"email": "a@b.com"}); err != nil {
		t.Fatalf("Save doc1: %v", err)
	}
	if _, err := c.Save(ctx, "doc2", map[string]any{"email": "a@b.com"}); err == nil {
		t.Fatal("expected a unique-constraint error for doc2")
	}
}

func TestSoftDeleteThenUndeleteReleasesAndReacquiresUniqueSlot(t *testing.T) {
	ctx := context.Background()
	cfg := chronicle.DefaultConfig()
	cfg.UniqueFields = []string{"email"}
	c := newTestChronicle(t, cfg)

	c.Save(ctx, "doc1", map[string]any{"email": "a@b.com"})

	if _, err := c.SoftDelete(ctx, "doc1"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	// The value should now be free for another document.
	if _, err := c.Save(ctx, "doc2", map[string]any{"email": "a@b.com"}); err != nil {
		t.Fatalf("doc2 should be able to take the released value: %v", err)
	}

	// Undeleting doc1 with the same value should now collide with doc2.
	if _, err := c.Undelete(ctx, "doc1", chronicle.UndeleteOptions{}); err == nil {
		t.Fatal("expected Undelete to fail: doc2 now holds the value")
	}
}

func TestUndeleteRestoresDeletedDocument(t *testing.T) {
	ctx := context.Background()
	c := newTestChronicle(t, chronicle.DefaultConfig())

	c.Save(ctx, "doc1", map[string]any{"qty": 1})
	delRes, err := c.SoftDelete(ctx, "doc1")
	if err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if delRes.FinalState["qty"] != 1 {
		t.Errorf("FinalState[qty] = %v, want 1", delRes.FinalState["qty"])
	}

	undel, err := c.Undelete(ctx, "doc1", chronicle.UndeleteOptions{})
	if err != nil {
		t.Fatalf("Undelete: %v", err)
	}
	if undel.RestoredState["qty"] != 1 {
		t.Errorf("RestoredState[qty] = %v, want 1", undel.RestoredState["qty"])
	}

	deleted, err := c.ListDeleted(ctx, chronicle.DeletedFilter{})
	if err != nil {
		t.Fatalf("ListDeleted: %v", err)
	}
	if len(deleted) != 0 {
		t.Errorf("expected no deleted documents after undelete, got %d", len(deleted))
	}
}

func TestCreateBranchDivergesWithoutAffectingMain(t *testing.T) {
	ctx := context.Background()
	c := newTestChronicle(t, chronicle.DefaultConfig())

	c.Save(ctx, "doc1", map[string]any{"qty": 1})
	c.Save(ctx, "doc1", map[string]any{"qty": 2})

	branch, err := c.CreateBranch(ctx, "doc1", "experiment", chronicle.CreateBranchOptions{Activate: true})
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	if _, err := c.Save(ctx, "doc1", map[string]any{"qty": 99}); err != nil {
		t.Fatalf("Save on new branch: %v", err)
	}

	onBranch, err := c.AsOf(ctx, "doc1", time.Now().Add(time.Hour), chronicle.AsOfOptions{BranchID: branch.BranchID})
	if err != nil {
		t.Fatalf("AsOf branch: %v", err)
	}
	if onBranch.State["qty"] != 99 {
		t.Errorf("branch qty = %v, want 99", onBranch.State["qty"])
	}

	active, err := c.GetActiveBranch(ctx, "doc1")
	if err != nil {
		t.Fatalf("GetActiveBranch: %v", err)
	}
	if active.BranchID != branch.BranchID {
		t.Errorf("active branch = %s, want %s", active.BranchID, branch.BranchID)
	}

	if err := c.SwitchBranch(ctx, "doc1", active.ParentBranchID); err != nil {
		t.Fatalf("SwitchBranch back to parent: %v", err)
	}
	onParent, err := c.AsOf(ctx, "doc1", time.Now().Add(time.Hour), chronicle.AsOfOptions{})
	if err != nil {
		t.Fatalf("AsOf parent: %v", err)
	}
	if onParent.State["qty"] != 2 {
		t.Errorf("parent qty after switch back = %v, want 2 (unaffected by the branch's save)", onParent.State["qty"])
	}
}

func TestRevertUpdatesOrphanedChildBranch(t *testing.T) {
	ctx := context.Background()
	c := newTestChronicle(t, chronicle.DefaultConfig())

	c.Save(ctx, "doc1", map[string]any{"qty": 1})
	c.Save(ctx, "doc1", map[string]any{"qty": 2})
	c.Save(ctx, "doc1", map[string]any{"qty": 3})

	active, _ := c.GetActiveBranch(ctx, "doc1")
	child, err := c.CreateBranch(ctx, "doc1", "child", chronicle.CreateBranchOptions{})
	if err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	revertRes, err := c.Revert(ctx, "doc1", 1, chronicle.RevertOptions{BranchID: active.BranchID, Rehydrate: true})
	if err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if !revertRes.Success {
		t.Fatal("expected Revert to succeed")
	}
	if revertRes.State["qty"] != 1 {
		t.Errorf("reverted state qty = %v, want 1", revertRes.State["qty"])
	}
	if revertRes.BranchesUpdated != 1 {
		t.Errorf("BranchesUpdated = %d, want 1", revertRes.BranchesUpdated)
	}

	branches, err := c.ListBranches(ctx, "doc1")
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	var found *chronicle.ChronicleBranch
	for _, b := range branches {
		if b.BranchID == child.BranchID {
			found = b
		}
	}
	if found == nil {
		t.Fatal("child branch should still exist")
	}
	if found.ParentSerial == nil || *found.ParentSerial != 1 {
		t.Errorf("child ParentSerial = %v, want 1 (rewound past the revert point)", found.ParentSerial)
	}
}

func TestSquashCollapsesLineageIntoFreshEpoch(t *testing.T) {
	ctx := context.Background()
	c := newTestChronicle(t, chronicle.DefaultConfig())

	c.Save(ctx, "doc1", map[string]any{"qty": 1})
	c.Save(ctx, "doc1", map[string]any{"qty": 2})
	c.Save(ctx, "doc1", map[string]any{"qty": 3})

	dry, err := c.Squash(ctx, "doc1", 3, chronicle.SquashOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Squash dry run: %v", err)
	}
	if !dry.DryRun || dry.WouldDeleteChunks == 0 {
		t.Fatalf("dry run result = %+v, want populated DryRun fields", dry)
	}

	res, err := c.Squash(ctx, "doc1", 3, chronicle.SquashOptions{Confirm: true})
	if err != nil {
		t.Fatalf("Squash: %v", err)
	}
	if res.NewBranchID == "" {
		t.Fatal("expected a new branch id after squash")
	}

	got, err := c.AsOf(ctx, "doc1", time.Now().Add(time.Hour), chronicle.AsOfOptions{})
	if err != nil {
		t.Fatalf("AsOf: %v", err)
	}
	if got.State["qty"] != 3 {
		t.Errorf("post-squash state qty = %v, want 3", got.State["qty"])
	}
	if got.Serial != 1 {
		t.Errorf("post-squash Serial = %d, want 1 (collapsed history)", got.Serial)
	}
}

func TestSquashRejectsOutOfRangeTargetSerial(t *testing.T) {
	ctx := context.Background()
	c := newTestChronicle(t, chronicle.DefaultConfig())

	c.Save(ctx, "doc1", map[string]any{"qty": 1})
	c.Save(ctx, "doc1", map[string]any{"qty": 2})

	_, err := c.Squash(ctx, "doc1", 99, chronicle.SquashOptions{Confirm: true})
	var notFound *chronicle.SerialNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Squash with an out-of-range targetSerial = %v, want a SerialNotFoundError", err)
	}
}

func TestSquashWithoutConfirmOrDryRunIsRejected(t *testing.T) {
	ctx := context.Background()
	c := newTestChronicle(t, chronicle.DefaultConfig())
	c.Save(ctx, "doc1", map[string]any{"qty": 1})

	if _, err := c.Squash(ctx, "doc1", 1, chronicle.SquashOptions{}); err == nil {
		t.Fatal("expected Squash to require Confirm or DryRun")
	}
}

func TestPurgeRequiresConfirmAndReleasesDocIDForReuse(t *testing.T) {
	ctx := context.Background()
	cfg := chronicle.DefaultConfig()
	cfg.UniqueFields = []string{"email"}
	c := newTestChronicle(t, cfg)

	c.Save(ctx, "doc1", map[string]any{"email": "a@b.com"})

	if _, err := c.Purge(ctx, "doc1", chronicle.PurgeOptions{}); err == nil {
		t.Fatal("expected Purge without Confirm to fail")
	}

	if _, err := c.Purge(ctx, "doc1", chronicle.PurgeOptions{Confirm: true}); err != nil {
		t.Fatalf("Purge: %v", err)
	}

	if _, err := c.Save(ctx, "doc1", map[string]any{"email": "a@b.com"}); err != nil {
		t.Fatalf("doc1 should be fully reusable after purge: %v", err)
	}
}

func TestCompactRewritesLatestDeltaToFull(t *testing.T) {
	ctx := context.Background()
	cfg := chronicle.DefaultConfig()
	cfg.Chunking.FullChunkInterval = 1000
	c := newTestChronicle(t, cfg)

	c.Save(ctx, "doc1", map[string]any{"qty": 1})
	c.Save(ctx, "doc1", map[string]any{"qty": 2})

	active, _ := c.GetActiveBranch(ctx, "doc1")
	res, err := c.Compact(ctx, "doc1", active.BranchID)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if !res.Compacted {
		t.Fatal("expected the latest delta chunk to be compacted")
	}

	again, err := c.Compact(ctx, "doc1", active.BranchID)
	if err != nil {
		t.Fatalf("Compact again: %v", err)
	}
	if again.Compacted {
		t.Fatal("compacting an already-full latest chunk should be a no-op")
	}

	got, err := c.AsOf(ctx, "doc1", time.Now().Add(time.Hour), chronicle.AsOfOptions{})
	if err != nil {
		t.Fatalf("AsOf: %v", err)
	}
	if got.State["qty"] != 2 {
		t.Errorf("qty after compact = %v, want 2", got.State["qty"])
	}
}

func TestSubscribePublishesChangeEventsOnSave(t *testing.T) {
	ctx := context.Background()
	c := newTestChronicle(t, chronicle.DefaultConfig())
	ch, unsubscribe := c.Subscribe()
	defer unsubscribe()

	if _, err := c.Save(ctx, "doc1", map[string]any{"qty": 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.DocID != "doc1" || ev.Serial != 1 {
			t.Errorf("event = %+v, want docId=doc1 serial=1", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change event")
	}
}
