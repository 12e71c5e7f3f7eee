package chronicle

import "context"

// CompactResult is returned by Compact.
type CompactResult struct {
	// Compacted is false if the latest chunk was already FULL.
	Compacted bool
	Serial    int64
}

// Compact rewrites a branch's latest chunk in place from a DELTA to a
// FULL chunk carrying the fully rehydrated state, without changing its
// serial number or touching any earlier chunk. Unlike Squash, it never
// deletes history: it only shortens the backward scan rehydrate needs to
// perform the next time this branch is read. A no-op if the latest chunk
// is already FULL.
func (c *Chronicle) Compact(ctx context.Context, docID, branchID string) (CompactResult, error) {
	meta, err := c.branches.getLatestMetadata(ctx, docID)
	if err != nil {
		return CompactResult{}, err
	}
	if meta == nil {
		return CompactResult{}, ErrNotFound
	}
	if branchID == "" {
		branchID = meta.ActiveBranchID
	}
	g := chunkGroup{DocID: docID, Epoch: meta.Epoch, BranchID: branchID}

	latest, err := c.chunks.findLatest(ctx, g)
	if err != nil {
		return CompactResult{}, err
	}
	if latest == nil {
		return CompactResult{}, ErrNotFound
	}
	if latest.CCType == ccFull {
		return CompactResult{Compacted: false, Serial: latest.Serial}, nil
	}

	rh, err := c.rehydr.rehydrate(ctx, g, atSerial(latest.Serial))
	if err != nil {
		return CompactResult{}, err
	}
	if rh == nil {
		return CompactResult{}, newCorrupt(docID, meta.Epoch, branchID, "no state reachable while compacting latest chunk")
	}

	encoded, err := c.codec.encode(rh.State)
	if err != nil {
		return CompactResult{}, err
	}
	if _, err := c.chunks.coll.UpdateOne(ctx,
		map[string]any{"docId": docID, "epoch": meta.Epoch, "branchId": branchID, "serial": latest.Serial},
		map[string]any{"ccType": int64(ccFull), "payload": encoded},
		UpdateOptions{},
	); err != nil {
		return CompactResult{}, err
	}
	c.metrics.recordBranchOp("compact")

	return CompactResult{Compacted: true, Serial: latest.Serial}, nil
}
