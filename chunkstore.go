package chronicle

import (
	"context"
	"sort"
)

// chunkStore implements C2 over a Collection holding ChronicleChunk
// documents. All operations are scoped to a single chunkGroup unless
// noted otherwise.
type chunkStore struct {
	coll  Collection
	ids   IdentifierFactory
	codec *payloadCodec
}

func newChunkStore(coll Collection, ids IdentifierFactory, codec *payloadCodec) *chunkStore {
	return &chunkStore{coll: coll, ids: ids, codec: codec}
}

// groupFilter builds a Collection filter scoped to g, merged with extra
// conditions.
func groupFilter(g chunkGroup, extra map[string]any) map[string]any {
	f := map[string]any{
		"docId":    g.DocID,
		"epoch":    g.Epoch,
		"branchId": g.BranchID,
	}
	for k, v := range extra {
		f[k] = v
	}
	return f
}

// appendChunk clears the previous isLatest chunk in the group, if any,
// then inserts the new chunk with isLatest=true. Per §4.2 and the
// concurrency model in §5, the clear happens first so that a reader
// racing the insert finds, at worst, zero isLatest chunks rather than two
// stale ones; a genuine overlap window where two chunks are isLatest=true
// is tolerated and resolved by readers preferring the higher serial.
func (s *chunkStore) appendChunk(ctx context.Context, g chunkGroup, serial int64, t ccType, isDeleted bool, payload map[string]any) (*ChronicleChunk, error) {
	if err := s.clearLatest(ctx, g); err != nil {
		return nil, err
	}
	encoded, err := s.codec.encode(payload)
	if err != nil {
		return nil, err
	}
	chunk := &ChronicleChunk{
		ChunkID:   s.ids.NewID(),
		DocID:     g.DocID,
		Epoch:     g.Epoch,
		BranchID:  g.BranchID,
		Serial:    serial,
		CCType:    t,
		IsDeleted: isDeleted,
		IsLatest:  true,
		CTime:     nowFunc(),
		Payload:   encoded,
	}
	if err := s.coll.InsertOne(ctx, chunkToDoc(chunk)); err != nil {
		return nil, err
	}
	return chunk, nil
}

// clearLatest clears the isLatest flag on any chunk currently marked
// within the group. It is a no-op if no chunk is marked.
func (s *chunkStore) clearLatest(ctx context.Context, g chunkGroup) error {
	_, err := s.coll.UpdateMany(ctx,
		groupFilter(g, map[string]any{"isLatest": true}),
		map[string]any{"isLatest": false},
	)
	return err
}

// findLatest returns the chunk marked isLatest in the group, or nil if
// the group is empty. If more than one chunk is transiently marked
// isLatest, the one with the higher serial wins per §5 point 2.
func (s *chunkStore) findLatest(ctx context.Context, g chunkGroup) (*ChronicleChunk, error) {
	docs, err := s.coll.Find(ctx,
		groupFilter(g, map[string]any{"isLatest": true}),
		FindOptions{Sort: SortSpec{"serial": -1}},
	)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	chunk, err := s.docToChunk(docs[0])
	if err != nil {
		return nil, err
	}
	for _, d := range docs[1:] {
		c, err := s.docToChunk(d)
		if err != nil {
			return nil, err
		}
		if c.Serial > chunk.Serial {
			chunk = c
		}
	}
	return chunk, nil
}

// findBySerial returns the chunk at the given serial within the group, or
// nil if it does not exist.
func (s *chunkStore) findBySerial(ctx context.Context, g chunkGroup, serial int64) (*ChronicleChunk, error) {
	doc, err := s.coll.FindOne(ctx, groupFilter(g, map[string]any{"serial": serial}), FindOptions{})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return s.docToChunk(doc)
}

// listBound restricts listOrdered to chunks at or before a serial or a
// timestamp. The zero value means "no bound" (list everything).
type listBound struct {
	MaxSerial *int64
	MaxTime   *int64 // unix nanos, to keep this file free of extra imports
}

// listOrdered returns every chunk in the group honoring bound, sorted by
// serial ascending.
func (s *chunkStore) listOrdered(ctx context.Context, g chunkGroup, bound listBound) ([]*ChronicleChunk, error) {
	filter := map[string]any{"docId": g.DocID, "epoch": g.Epoch, "branchId": g.BranchID}
	if bound.MaxSerial != nil {
		filter["serial"] = map[string]any{"$lte": *bound.MaxSerial}
	}
	if bound.MaxTime != nil {
		filter["cTime"] = map[string]any{"$lte": *bound.MaxTime}
	}
	docs, err := s.coll.Find(ctx, filter, FindOptions{Sort: SortSpec{"serial": 1}})
	if err != nil {
		return nil, err
	}
	chunks := make([]*ChronicleChunk, 0, len(docs))
	for _, d := range docs {
		c, err := s.docToChunk(d)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Serial < chunks[j].Serial })
	return chunks, nil
}

// deleteAfter deletes every chunk in the group with serial > n, returning
// the number removed.
func (s *chunkStore) deleteAfter(ctx context.Context, g chunkGroup, n int64) (int, error) {
	return s.coll.DeleteMany(ctx, groupFilter(g, map[string]any{
		"serial": map[string]any{"$gt": n},
	}))
}

// deleteAll removes every chunk belonging to docId, optionally restricted
// to one epoch, cascading across every branch.
func (s *chunkStore) deleteAll(ctx context.Context, docID string, epoch *int64) (int, error) {
	filter := map[string]any{"docId": docID}
	if epoch != nil {
		filter["epoch"] = *epoch
	}
	return s.coll.DeleteMany(ctx, filter)
}

// docToChunk decodes a raw Collection document back into a ChronicleChunk,
// decrypting/decompressing the payload as configured.
func (s *chunkStore) docToChunk(doc map[string]any) (*ChronicleChunk, error) {
	payload, err := s.codec.decode(doc["payload"])
	if err != nil {
		return nil, err
	}
	return &ChronicleChunk{
		ChunkID:   asString(doc["chunkId"]),
		DocID:     asString(doc["docId"]),
		Epoch:     asInt64(doc["epoch"]),
		BranchID:  asString(doc["branchId"]),
		Serial:    asInt64(doc["serial"]),
		CCType:    ccType(asInt64(doc["ccType"])),
		IsDeleted: asBool(doc["isDeleted"]),
		IsLatest:  asBool(doc["isLatest"]),
		CTime:     asTime(doc["cTime"]),
		Payload:   payload,
	}, nil
}

// chunkToDoc renders a ChronicleChunk for InsertOne. The payload map has
// already been encoded by the caller (appendChunk).
func chunkToDoc(c *ChronicleChunk) map[string]any {
	return map[string]any{
		"chunkId":   c.ChunkID,
		"docId":     c.DocID,
		"epoch":     c.Epoch,
		"branchId":  c.BranchID,
		"serial":    c.Serial,
		"ccType":    int64(c.CCType),
		"isDeleted": c.IsDeleted,
		"isLatest":  c.IsLatest,
		"cTime":     c.CTime,
		"payload":   c.Payload,
	}
}
