package chronicle

import (
	"context"
	"time"
)

// AsOfOptions selects how AsOf resolves which branch(es) to search.
type AsOfOptions struct {
	// BranchID restricts the search to one branch. Mutually exclusive
	// with SearchAllBranches.
	BranchID string
	// SearchAllBranches considers every branch of the document's current
	// epoch and returns the state from whichever branch has the most
	// recent chunk at or before t.
	SearchAllBranches bool
}

// AsOfResult is returned by AsOf.
type AsOfResult struct {
	Found          bool
	State          map[string]any
	Serial         int64
	BranchID       string
	ChunkTimestamp time.Time
}

// AsOf implements §4.6.4: a point-in-time read bounded by a timestamp
// instead of a serial.
func (c *Chronicle) AsOf(ctx context.Context, docID string, t time.Time, opts AsOfOptions) (AsOfResult, error) {
	if opts.BranchID != "" && opts.SearchAllBranches {
		return AsOfResult{}, ErrMutuallyExclusiveOptions
	}

	meta, err := c.branches.getLatestMetadata(ctx, docID)
	if err != nil {
		return AsOfResult{}, err
	}
	if meta == nil {
		return AsOfResult{}, ErrNotFound
	}

	if !opts.SearchAllBranches {
		branchID := opts.BranchID
		if branchID == "" {
			branchID = meta.ActiveBranchID
		}
		rh, err := c.rehydr.rehydrate(ctx, chunkGroup{DocID: docID, Epoch: meta.Epoch, BranchID: branchID}, atTime(t))
		if err != nil {
			return AsOfResult{}, err
		}
		if rh == nil {
			return AsOfResult{Found: false}, nil
		}
		return AsOfResult{
			Found: true, State: rh.State, Serial: rh.Serial,
			BranchID: branchID, ChunkTimestamp: rh.ChunkTimestamp,
		}, nil
	}

	branches, err := c.branches.listBranches(ctx, docID, meta.Epoch)
	if err != nil {
		return AsOfResult{}, err
	}

	var best *rehydrated
	var bestBranch string
	for _, b := range branches {
		rh, err := c.rehydr.rehydrate(ctx, chunkGroup{DocID: docID, Epoch: meta.Epoch, BranchID: b.BranchID}, atTime(t))
		if err != nil {
			return AsOfResult{}, err
		}
		if rh == nil {
			continue
		}
		if best == nil ||
			rh.ChunkTimestamp.After(best.ChunkTimestamp) ||
			(rh.ChunkTimestamp.Equal(best.ChunkTimestamp) && b.BranchID > bestBranch) {
			best = rh
			bestBranch = b.BranchID
		}
	}
	if best == nil {
		return AsOfResult{Found: false}, nil
	}
	return AsOfResult{
		Found: true, State: best.State, Serial: best.Serial,
		BranchID: bestBranch, ChunkTimestamp: best.ChunkTimestamp,
	}, nil
}
