package chronicle

import (
	"context"
	"encoding/json"
	"time"
)

// RevertOptions customizes Revert's target branch and whether the
// resulting state is rehydrated and returned.
type RevertOptions struct {
	BranchID  string
	Rehydrate bool
}

// RevertResult is returned by Revert.
type RevertResult struct {
	Success         bool
	RevertedSerial  int64
	ChunksRemoved   int
	BranchesUpdated int
	State           map[string]any
}

// Revert implements §4.6.5: deletes every chunk after targetSerial on one
// branch and reparents any child branch that had diverged past it.
func (c *Chronicle) Revert(ctx context.Context, docID string, targetSerial int64, opts RevertOptions) (RevertResult, error) {
	meta, err := c.branches.getLatestMetadata(ctx, docID)
	if err != nil {
		return RevertResult{}, err
	}
	if meta == nil {
		return RevertResult{}, ErrNotFound
	}
	branchID := opts.BranchID
	if branchID == "" {
		branchID = meta.ActiveBranchID
	}

	g := chunkGroup{DocID: docID, Epoch: meta.Epoch, BranchID: branchID}
	target, err := c.chunks.findBySerial(ctx, g, targetSerial)
	if err != nil {
		return RevertResult{}, err
	}
	if target == nil {
		return RevertResult{}, &SerialNotFoundError{DocID: docID, BranchID: branchID, Serial: targetSerial}
	}

	latest, err := c.chunks.findLatest(ctx, g)
	if err != nil {
		return RevertResult{}, err
	}
	if latest != nil && latest.Serial == targetSerial {
		result := RevertResult{Success: true, RevertedSerial: targetSerial}
		if opts.Rehydrate {
			rh, err := c.rehydr.rehydrate(ctx, g, atSerial(targetSerial))
			if err != nil {
				return RevertResult{}, err
			}
			if rh != nil {
				result.State = rh.State
			}
		}
		return result, nil
	}

	removed, err := c.chunks.deleteAfter(ctx, g, targetSerial)
	if err != nil {
		return RevertResult{}, err
	}
	if err := c.chunks.clearLatest(ctx, g); err != nil {
		return RevertResult{}, err
	}
	if _, err := c.chunks.coll.UpdateOne(ctx,
		map[string]any{"docId": docID, "epoch": meta.Epoch, "branchId": branchID, "serial": targetSerial},
		map[string]any{"isLatest": true},
		UpdateOptions{},
	); err != nil {
		return RevertResult{}, err
	}

	updated, err := c.branches.reparentChildren(ctx, docID, branchID, targetSerial)
	if err != nil {
		return RevertResult{}, err
	}

	result := RevertResult{
		Success: true, RevertedSerial: targetSerial,
		ChunksRemoved: removed, BranchesUpdated: updated,
	}
	if opts.Rehydrate {
		rh, err := c.rehydr.rehydrate(ctx, g, atSerial(targetSerial))
		if err != nil {
			return RevertResult{}, err
		}
		if rh != nil {
			result.State = rh.State
		}
	}
	return result, nil
}

// SquashOptions customizes Squash.
type SquashOptions struct {
	BranchID string
	Confirm  bool
	DryRun   bool
}

// SquashResult is returned by Squash. When opts.DryRun was set, only
// DryRun, WouldDeleteChunks, WouldDeleteBranches, and NewBaseState are
// populated and no write occurred; otherwise the remaining fields describe
// the rewrite actually performed.
type SquashResult struct {
	DryRun bool

	// Populated when DryRun.
	WouldDeleteChunks   int
	WouldDeleteBranches int
	NewBaseState        map[string]any

	// Populated when the rewrite was performed.
	NewBranchID     string
	ChunksRemoved   int
	BranchesRemoved int
}

// Squash implements §4.6.6: collapses a document's entire history into a
// single FULL chunk on a fresh main branch, resetting its epoch to 1.
// Destructive; requires Confirm unless DryRun.
func (c *Chronicle) Squash(ctx context.Context, docID string, targetSerial int64, opts SquashOptions) (SquashResult, error) {
	if !opts.Confirm && !opts.DryRun {
		return SquashResult{}, ErrConfirmationRequired
	}

	meta, err := c.branches.getLatestMetadata(ctx, docID)
	if err != nil {
		return SquashResult{}, err
	}
	if meta == nil {
		return SquashResult{}, ErrNotFound
	}
	branchID := opts.BranchID
	if branchID == "" {
		branchID = meta.ActiveBranchID
	}

	g := chunkGroup{DocID: docID, Epoch: meta.Epoch, BranchID: branchID}
	target, err := c.chunks.findBySerial(ctx, g, targetSerial)
	if err != nil {
		return SquashResult{}, err
	}
	if target == nil {
		return SquashResult{}, &SerialNotFoundError{DocID: docID, BranchID: branchID, Serial: targetSerial}
	}
	rh, err := c.rehydr.rehydrate(ctx, g, atSerial(targetSerial))
	if err != nil {
		return SquashResult{}, err
	}
	if rh == nil {
		return SquashResult{}, &SerialNotFoundError{DocID: docID, BranchID: branchID, Serial: targetSerial}
	}

	totalChunks, err := c.countChunks(ctx, docID, nil)
	if err != nil {
		return SquashResult{}, err
	}
	totalBranches, err := c.countBranches(ctx, docID, nil)
	if err != nil {
		return SquashResult{}, err
	}

	if opts.DryRun {
		return SquashResult{
			DryRun:              true,
			WouldDeleteChunks:   totalChunks,
			WouldDeleteBranches: totalBranches - 1,
			NewBaseState:        rh.State,
		}, nil
	}

	if err := c.archiveBeforeDelete(ctx, docID, meta.Epoch); err != nil {
		return SquashResult{}, err
	}

	chunksRemoved, err := c.chunks.deleteAll(ctx, docID, nil)
	if err != nil {
		return SquashResult{}, err
	}
	branchesRemoved, err := c.branches.deleteAllBranches(ctx, docID, nil)
	if err != nil {
		return SquashResult{}, err
	}

	newBranchID := c.cfg.Identifiers.NewID()
	if err := c.branches.insertBranch(ctx, &ChronicleBranch{
		BranchID:  newBranchID,
		DocID:     docID,
		Epoch:     1,
		Name:      mainBranchName,
		CreatedAt: nowFunc(),
		Protected: true,
	}); err != nil {
		return SquashResult{}, err
	}
	newGroup := chunkGroup{DocID: docID, Epoch: 1, BranchID: newBranchID}
	if _, err := c.chunks.appendChunk(ctx, newGroup, 1, ccFull, false, rh.State); err != nil {
		return SquashResult{}, err
	}
	if _, err := c.branches.deleteAllMetadata(ctx, docID, nil); err != nil {
		return SquashResult{}, err
	}
	if err := c.branches.createMetadata(ctx, docID, 1, newBranchID); err != nil {
		return SquashResult{}, err
	}
	if err := c.branches.activateMetadata(ctx, docID, 1, newBranchID); err != nil {
		return SquashResult{}, err
	}
	c.publish(ctx, ChangeEvent{
		DocID: docID, Epoch: 1, BranchID: newBranchID,
		Serial: 1, CCType: int(ccFull), IsDeleted: false, At: nowFunc(),
	})

	return SquashResult{
		NewBranchID:     newBranchID,
		ChunksRemoved:   chunksRemoved,
		BranchesRemoved: branchesRemoved,
	}, nil
}

// PurgeOptions customizes Purge.
type PurgeOptions struct {
	Confirm bool
	Epoch   *int64
}

// PurgeResult is returned by Purge.
type PurgeResult struct {
	DocID           string
	EpochsPurged    int
	ChunksRemoved   int
	BranchesRemoved int
}

// Purge implements §4.6.7: irrecoverably removes a document's lineage
// (optionally one epoch only). When no epoch is given, key rows are
// released as well so a later Save with the same docID starts a fresh
// epoch-1 lineage; an epoch-restricted purge leaves key rows in place.
func (c *Chronicle) Purge(ctx context.Context, docID string, opts PurgeOptions) (PurgeResult, error) {
	if !opts.Confirm {
		return PurgeResult{}, ErrConfirmationRequired
	}

	epochsPurged, err := c.countMatchingMetadata(ctx, docID, opts.Epoch)
	if err != nil {
		return PurgeResult{}, err
	}
	if epochsPurged == 0 {
		return PurgeResult{}, ErrNotFound
	}

	archiveEpoch := int64(0)
	if opts.Epoch != nil {
		archiveEpoch = *opts.Epoch
	}
	if err := c.archiveBeforeDelete(ctx, docID, archiveEpoch); err != nil {
		return PurgeResult{}, err
	}

	chunksRemoved, err := c.chunks.deleteAll(ctx, docID, opts.Epoch)
	if err != nil {
		return PurgeResult{}, err
	}
	branchesRemoved, err := c.branches.deleteAllBranches(ctx, docID, opts.Epoch)
	if err != nil {
		return PurgeResult{}, err
	}
	if _, err := c.branches.deleteAllMetadata(ctx, docID, opts.Epoch); err != nil {
		return PurgeResult{}, err
	}
	if opts.Epoch == nil {
		if _, err := c.keys.coll.DeleteMany(ctx, map[string]any{"docId": docID}); err != nil {
			return PurgeResult{}, err
		}
	}

	return PurgeResult{
		DocID: docID, EpochsPurged: epochsPurged,
		ChunksRemoved: chunksRemoved, BranchesRemoved: branchesRemoved,
	}, nil
}

// DeletedFilter restricts ListDeleted's scan.
type DeletedFilter struct {
	DeletedAfter  *time.Time
	DeletedBefore *time.Time
}

// DeletedDoc is one entry returned by ListDeleted.
type DeletedDoc struct {
	DocID      string
	Epoch      int64
	DeletedAt  time.Time
	FinalState map[string]any
}

// ListDeleted implements §4.6.8: scans every isLatest, isDeleted chunk
// across the chunk store, applying cTime filters and sorting newest
// first.
func (c *Chronicle) ListDeleted(ctx context.Context, filter DeletedFilter) ([]DeletedDoc, error) {
	f := map[string]any{"isLatest": true, "isDeleted": true}
	cTime := map[string]any{}
	if filter.DeletedAfter != nil {
		cTime["$gte"] = *filter.DeletedAfter
	}
	if filter.DeletedBefore != nil {
		cTime["$lte"] = *filter.DeletedBefore
	}
	if len(cTime) > 0 {
		f["cTime"] = cTime
	}
	docs, err := c.chunks.coll.Find(ctx, f, FindOptions{Sort: SortSpec{"cTime": -1}})
	if err != nil {
		return nil, err
	}
	out := make([]DeletedDoc, 0, len(docs))
	for _, d := range docs {
		chunk, err := c.chunks.docToChunk(d)
		if err != nil {
			return nil, err
		}
		out = append(out, DeletedDoc{
			DocID: chunk.DocID, Epoch: chunk.Epoch,
			DeletedAt: chunk.CTime, FinalState: chunk.Payload,
		})
	}
	return out, nil
}

func (c *Chronicle) countChunks(ctx context.Context, docID string, epoch *int64) (int, error) {
	f := map[string]any{"docId": docID}
	if epoch != nil {
		f["epoch"] = *epoch
	}
	n, err := c.chunks.coll.CountDocuments(ctx, f)
	return int(n), err
}

func (c *Chronicle) countBranches(ctx context.Context, docID string, epoch *int64) (int, error) {
	f := map[string]any{"docId": docID}
	if epoch != nil {
		f["epoch"] = *epoch
	}
	n, err := c.branches.branches.CountDocuments(ctx, f)
	return int(n), err
}

func (c *Chronicle) countMatchingMetadata(ctx context.Context, docID string, epoch *int64) (int, error) {
	f := map[string]any{"docId": docID}
	if epoch != nil {
		f["epoch"] = *epoch
	}
	n, err := c.branches.metadata.CountDocuments(ctx, f)
	return int(n), err
}

// archiveBeforeDelete writes a snapshot of every chunk and branch about
// to be deleted to Config.Archive, when configured, per the
// archival-before-delete supplement. epoch of 0 means "all epochs" (purge
// with no epoch restriction).
func (c *Chronicle) archiveBeforeDelete(ctx context.Context, docID string, epoch int64) error {
	if c.cfg.Archive == nil || !c.cfg.Retention.ArchiveBeforeDelete {
		return nil
	}
	chunkFilter := map[string]any{"docId": docID}
	branchFilter := map[string]any{"docId": docID}
	if epoch != 0 {
		chunkFilter["epoch"] = epoch
		branchFilter["epoch"] = epoch
	}
	chunkDocs, err := c.chunks.coll.Find(ctx, chunkFilter, FindOptions{Sort: SortSpec{"serial": 1}})
	if err != nil {
		return err
	}
	branchDocs, err := c.branches.branches.Find(ctx, branchFilter, FindOptions{})
	if err != nil {
		return err
	}
	snapshot, err := json.Marshal(map[string]any{
		"docId":      docID,
		"epoch":      epoch,
		"chunks":     chunkDocs,
		"branches":   branchDocs,
		"archivedAt": nowFunc(),
	})
	if err != nil {
		return err
	}
	return c.cfg.Archive.Write(ctx, archiveKey(c.cfg.CollectionName, docID, epoch), snapshot)
}
