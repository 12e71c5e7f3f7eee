package chronicle

import (
	"context"

	"go.uber.org/zap"
)

// SaveResult is returned by Save.
type SaveResult struct {
	DocID   string
	ChunkID string
	// NoOp is true when payload was identical to the current state and no
	// chunk was appended (§4.6.1 step 4).
	NoOp bool
}

// Save implements §4.6.1: creates docId on first call, or appends a new
// chunk for it otherwise. The whole read-modify-write sequence retries on
// a losing race against a concurrent save for the same (docId, epoch,
// branchId), per the conditional-append-with-retry concurrency decision.
func (c *Chronicle) Save(ctx context.Context, docID string, payload map[string]any) (SaveResult, error) {
	var result SaveResult
	res := c.retryer.Do(ctx, func() error {
		r, err := c.saveOnce(ctx, docID, payload)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if res.LastErr != nil {
		return SaveResult{}, res.LastErr
	}
	return result, nil
}

func (c *Chronicle) saveOnce(ctx context.Context, docID string, payload map[string]any) (SaveResult, error) {
	meta, err := c.branches.getLatestMetadata(ctx, docID)
	if err != nil {
		return SaveResult{}, err
	}

	var (
		epoch      int64
		branchID   string
		previous   map[string]any
		currSerial int64
		isCreate   bool
	)

	if meta == nil {
		isCreate = true
		epoch = 1
		branchID = c.cfg.Identifiers.NewID()
		if err := c.branches.insertBranch(ctx, &ChronicleBranch{
			BranchID:  branchID,
			DocID:     docID,
			Epoch:     epoch,
			Name:      mainBranchName,
			CreatedAt: nowFunc(),
			Protected: true,
		}); err != nil {
			return SaveResult{}, err
		}
		if err := c.branches.createMetadata(ctx, docID, epoch, branchID); err != nil {
			return SaveResult{}, err
		}
	} else {
		epoch = meta.Epoch
		branchID = meta.ActiveBranchID
		g := chunkGroup{DocID: docID, Epoch: epoch, BranchID: branchID}
		latest, err := c.chunks.findLatest(ctx, g)
		if err != nil {
			return SaveResult{}, err
		}
		if latest == nil {
			return SaveResult{}, ErrNotFound
		}
		currSerial = latest.Serial
		rh, err := c.rehydr.rehydrate(ctx, g, atSerial(currSerial))
		if err != nil {
			return SaveResult{}, err
		}
		if rh != nil {
			previous = rh.State
		}
	}

	excludeDocID := ""
	if !isCreate {
		excludeDocID = docID
	}
	if err := c.keys.validate(ctx, payload, branchID, excludeDocID); err != nil {
		c.metrics.recordUniqueViolation()
		return SaveResult{}, err
	}

	nextSerial := currSerial + 1
	shouldFull := c.cfg.Chunking.chunkCadenceTick(nextSerial)

	var chunkPayload map[string]any
	var t ccType
	if shouldFull {
		chunkPayload = payload
		t = ccFull
	} else {
		base := previous
		if base == nil {
			base = map[string]any{}
		}
		delta := computeDelta(base, payload)
		if isEmpty(delta) {
			return SaveResult{DocID: docID, NoOp: true}, nil
		}
		chunkPayload = delta
		t = ccDelta
	}

	g := chunkGroup{DocID: docID, Epoch: epoch, BranchID: branchID}
	chunk, err := c.chunks.appendChunk(ctx, g, nextSerial, t, false, chunkPayload)
	if err != nil {
		return SaveResult{}, err
	}
	c.metrics.recordChunk(t)

	if err := c.keys.upsert(ctx, docID, branchID, payload, false); err != nil {
		return SaveResult{}, err
	}
	if err := c.branches.activateMetadata(ctx, docID, epoch, ""); err != nil {
		return SaveResult{}, err
	}

	c.log.Debug("chronicle save",
		zap.String("docId", docID),
		zap.Int64("epoch", epoch),
		zap.String("branchId", branchID),
		zap.Int64("serial", nextSerial),
		zap.String("ccType", t.String()),
	)
	c.publish(ctx, ChangeEvent{
		DocID: docID, Epoch: epoch, BranchID: branchID,
		Serial: nextSerial, CCType: int(t), IsDeleted: false, At: nowFunc(),
	})

	return SaveResult{DocID: docID, ChunkID: chunk.ChunkID}, nil
}
