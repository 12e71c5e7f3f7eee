package chronicle

import "context"

// CreateBranchOptions customizes CreateBranch.
type CreateBranchOptions struct {
	// FromSerial is the serial on the current active branch to diverge
	// from. Defaults to that branch's latest serial.
	FromSerial *int64
	// Activate makes the new branch the document's active branch.
	Activate bool
}

// CreateBranch implements §4.5's create-branch algorithm: a new branch
// diverging from the current active branch at a chosen serial, seeded
// with a fresh FULL chunk carrying the parent's state at that point.
func (c *Chronicle) CreateBranch(ctx context.Context, docID, name string, opts CreateBranchOptions) (*ChronicleBranch, error) {
	meta, err := c.branches.getLatestMetadata(ctx, docID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, ErrNotFound
	}
	parentBranchID := meta.ActiveBranchID
	parentGroup := chunkGroup{DocID: docID, Epoch: meta.Epoch, BranchID: parentBranchID}

	fromSerial := opts.FromSerial
	if fromSerial == nil {
		latest, err := c.chunks.findLatest(ctx, parentGroup)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			return nil, ErrNoChunks
		}
		s := latest.Serial
		fromSerial = &s
	} else {
		existing, err := c.chunks.findBySerial(ctx, parentGroup, *fromSerial)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, &SerialNotFoundError{DocID: docID, BranchID: parentBranchID, Serial: *fromSerial}
		}
	}

	rh, err := c.rehydr.rehydrate(ctx, parentGroup, atSerial(*fromSerial))
	if err != nil {
		return nil, err
	}
	if rh == nil {
		return nil, ErrNoChunks
	}

	newBranchID := c.cfg.Identifiers.NewID()
	branch := &ChronicleBranch{
		BranchID:       newBranchID,
		DocID:          docID,
		Epoch:          meta.Epoch,
		ParentBranchID: parentBranchID,
		ParentSerial:   fromSerial,
		Name:           name,
		CreatedAt:      nowFunc(),
	}
	if err := c.branches.insertBranch(ctx, branch); err != nil {
		return nil, err
	}

	newGroup := chunkGroup{DocID: docID, Epoch: meta.Epoch, BranchID: newBranchID}
	if _, err := c.chunks.appendChunk(ctx, newGroup, 1, ccFull, false, rh.State); err != nil {
		return nil, err
	}
	c.metrics.recordBranchOp("create")

	if opts.Activate {
		if err := c.branches.activateMetadata(ctx, docID, meta.Epoch, newBranchID); err != nil {
			return nil, err
		}
	}
	c.publish(ctx, ChangeEvent{
		DocID: docID, Epoch: meta.Epoch, BranchID: newBranchID,
		Serial: 1, CCType: int(ccFull), IsDeleted: false, At: nowFunc(),
	})

	return branch, nil
}

// SwitchBranch implements §4.5's switch-branch operation: points future
// saves at a different existing branch of the document.
func (c *Chronicle) SwitchBranch(ctx context.Context, docID, branchID string) error {
	meta, err := c.branches.getLatestMetadata(ctx, docID)
	if err != nil {
		return err
	}
	if meta == nil {
		return ErrNotFound
	}
	branch, err := c.branches.getBranch(ctx, branchID)
	if err != nil {
		return err
	}
	if branch == nil || branch.DocID != docID || branch.Epoch != meta.Epoch {
		return ErrBranchNotFound
	}
	if err := c.branches.activateMetadata(ctx, docID, meta.Epoch, branchID); err != nil {
		return err
	}
	c.metrics.recordBranchOp("switch")

	latest, err := c.chunks.findLatest(ctx, chunkGroup{DocID: docID, Epoch: meta.Epoch, BranchID: branchID})
	if err == nil && latest != nil {
		c.publish(ctx, ChangeEvent{
			DocID: docID, Epoch: meta.Epoch, BranchID: branchID,
			Serial: latest.Serial, CCType: int(latest.CCType), IsDeleted: latest.IsDeleted, At: nowFunc(),
		})
	}
	return nil
}

// ListBranches returns every branch of docID's current epoch.
func (c *Chronicle) ListBranches(ctx context.Context, docID string) ([]*ChronicleBranch, error) {
	meta, err := c.branches.getLatestMetadata(ctx, docID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, ErrNotFound
	}
	return c.branches.listBranches(ctx, docID, meta.Epoch)
}

// GetActiveBranch returns docID's current active branch, or nil if the
// document does not exist.
func (c *Chronicle) GetActiveBranch(ctx context.Context, docID string) (*ChronicleBranch, error) {
	meta, err := c.branches.getLatestMetadata(ctx, docID)
	if err != nil || meta == nil {
		return nil, err
	}
	return c.branches.getBranch(ctx, meta.ActiveBranchID)
}
