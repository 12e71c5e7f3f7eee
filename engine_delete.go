package chronicle

import "context"

// SoftDeleteResult is returned by SoftDelete.
type SoftDeleteResult struct {
	ChunkID    string
	FinalState map[string]any
}

// SoftDelete implements §4.6.2: marks a document deleted, carrying its
// full pre-deletion state in the deletion chunk so undelete and
// ListDeleted never need a secondary rehydration.
func (c *Chronicle) SoftDelete(ctx context.Context, docID string) (SoftDeleteResult, error) {
	meta, err := c.branches.getLatestMetadata(ctx, docID)
	if err != nil {
		return SoftDeleteResult{}, err
	}
	if meta == nil {
		return SoftDeleteResult{}, ErrNotFound
	}
	g := chunkGroup{DocID: docID, Epoch: meta.Epoch, BranchID: meta.ActiveBranchID}
	latest, err := c.chunks.findLatest(ctx, g)
	if err != nil {
		return SoftDeleteResult{}, err
	}
	if latest == nil {
		return SoftDeleteResult{}, ErrNotFound
	}
	if latest.IsDeleted {
		return SoftDeleteResult{}, ErrAlreadyDeleted
	}

	rh, err := c.rehydr.rehydrate(ctx, g, atSerial(latest.Serial))
	if err != nil {
		return SoftDeleteResult{}, err
	}
	if rh == nil {
		return SoftDeleteResult{}, newCorrupt(docID, meta.Epoch, meta.ActiveBranchID, "no state reachable at latest serial")
	}

	chunk, err := c.chunks.appendChunk(ctx, g, latest.Serial+1, ccFull, true, rh.State)
	if err != nil {
		return SoftDeleteResult{}, err
	}
	c.metrics.recordChunk(ccFull)

	if err := c.keys.markDeleted(ctx, docID, meta.ActiveBranchID); err != nil {
		return SoftDeleteResult{}, err
	}

	c.publish(ctx, ChangeEvent{
		DocID: docID, Epoch: meta.Epoch, BranchID: meta.ActiveBranchID,
		Serial: chunk.Serial, CCType: int(ccFull), IsDeleted: true, At: nowFunc(),
	})

	return SoftDeleteResult{ChunkID: chunk.ChunkID, FinalState: rh.State}, nil
}

// UndeleteOptions customizes Undelete's target coordinates.
type UndeleteOptions struct {
	Epoch    *int64
	BranchID string
}

// UndeleteResult is returned by Undelete.
type UndeleteResult struct {
	DocID         string
	Epoch         int64
	RestoredState map[string]any
}

// Undelete implements §4.6.3: restores a soft-deleted document, failing
// if a live document on the same branch has since taken a unique value
// the restored payload also holds.
func (c *Chronicle) Undelete(ctx context.Context, docID string, opts UndeleteOptions) (UndeleteResult, error) {
	var meta *ChronicleMetadata
	var err error
	if opts.Epoch != nil {
		meta, err = c.branches.getMetadata(ctx, docID, *opts.Epoch)
	} else {
		meta, err = c.branches.getLatestMetadata(ctx, docID)
	}
	if err != nil {
		return UndeleteResult{}, err
	}
	if meta == nil {
		return UndeleteResult{}, ErrNotFound
	}

	branchID := opts.BranchID
	if branchID == "" {
		branchID = meta.ActiveBranchID
	}

	g := chunkGroup{DocID: docID, Epoch: meta.Epoch, BranchID: branchID}
	latest, err := c.chunks.findLatest(ctx, g)
	if err != nil {
		return UndeleteResult{}, err
	}
	if latest == nil {
		return UndeleteResult{}, ErrNotFound
	}
	if !latest.IsDeleted {
		return UndeleteResult{}, ErrNotDeleted
	}

	restored := latest.Payload
	if err := c.keys.validate(ctx, restored, branchID, docID); err != nil {
		c.metrics.recordUniqueViolation()
		return UndeleteResult{}, err
	}

	chunk, err := c.chunks.appendChunk(ctx, g, latest.Serial+1, ccFull, false, restored)
	if err != nil {
		return UndeleteResult{}, err
	}
	c.metrics.recordChunk(ccFull)

	if err := c.keys.clearDeleted(ctx, docID, branchID, restored); err != nil {
		return UndeleteResult{}, err
	}

	c.publish(ctx, ChangeEvent{
		DocID: docID, Epoch: meta.Epoch, BranchID: branchID,
		Serial: chunk.Serial, CCType: int(ccFull), IsDeleted: false, At: nowFunc(),
	})

	return UndeleteResult{DocID: docID, Epoch: meta.Epoch, RestoredState: restored}, nil
}
