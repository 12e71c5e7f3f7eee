package chronicle

import (
	"context"
	"time"
)

// rehydrateBound selects how far into a chunk group's history a
// rehydration scan is allowed to look.
type rehydrateBound struct {
	// Serial, if non-nil, restricts the scan to serial <= *Serial.
	Serial *int64
	// Time, if non-nil, restricts the scan to cTime <= *Time.
	Time *time.Time
}

// atSerial returns a bound restricted to serial <= s.
func atSerial(s int64) rehydrateBound { return rehydrateBound{Serial: &s} }

// atTime returns a bound restricted to cTime <= t.
func atTime(t time.Time) rehydrateBound { return rehydrateBound{Time: &t} }

// latestBound is the unrestricted bound: rehydrate up to the current tip.
var latestBound = rehydrateBound{}

// rehydrated is the result of a successful C3 rehydration.
type rehydrated struct {
	State          map[string]any
	Serial         int64
	BranchID       string
	ChunkTimestamp time.Time
	IsDeleted      bool
}

// rehydrator implements C3: given a chunk group and a bound, reconstructs
// document state by scanning backward from the bound for the nearest
// FULL chunk and folding every following DELTA onto it.
type rehydrator struct {
	store   *chunkStore
	metrics *Metrics
}

func newRehydrator(store *chunkStore) *rehydrator {
	return &rehydrator{store: store}
}

// rehydrate implements §4.3 steps 1-5. It returns (nil, nil) — not an
// error — when the bound matches no chunks, matching the spec's "return
// not found" outcome; callers translate that into their own NotFound or
// {found:false} result shape.
func (r *rehydrator) rehydrate(ctx context.Context, g chunkGroup, bound rehydrateBound) (*rehydrated, error) {
	start := nowFunc()
	defer func() { r.metrics.observeRehydration(nowFunc().Sub(start).Seconds()) }()

	lb := listBound{}
	if bound.Serial != nil {
		lb.MaxSerial = bound.Serial
	}
	if bound.Time != nil {
		nanos := bound.Time.UnixNano()
		lb.MaxTime = &nanos
	}
	chunks, err := r.store.listOrdered(ctx, g, lb)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	full := -1
	for i := len(chunks) - 1; i >= 0; i-- {
		if chunks[i].CCType == ccFull {
			full = i
			break
		}
	}
	if full == -1 {
		// Invariant I4 violated: no FULL chunk reachable at or before
		// the bound on a non-empty sequence.
		return nil, newCorrupt(g.DocID, g.Epoch, g.BranchID, "no FULL chunk reachable within rehydration bound")
	}

	state := cloneMap(chunks[full].Payload)
	for i := full + 1; i < len(chunks); i++ {
		state = applyDelta(state, chunks[i].Payload)
	}
	tail := chunks[len(chunks)-1]
	return &rehydrated{
		State:          state,
		Serial:         tail.Serial,
		BranchID:       g.BranchID,
		ChunkTimestamp: tail.CTime,
		IsDeleted:      tail.IsDeleted,
	}, nil
}
