package chronicle

import (
	"context"
)

// branchManager implements C5 over Collections holding ChronicleBranch and
// ChronicleMetadata documents.
type branchManager struct {
	branches Collection
	metadata Collection
	ids      IdentifierFactory
}

func newBranchManager(branches, metadata Collection, ids IdentifierFactory) *branchManager {
	return &branchManager{branches: branches, metadata: metadata, ids: ids}
}

// getMetadata returns the (docId, epoch) metadata row, or nil if absent.
func (m *branchManager) getMetadata(ctx context.Context, docID string, epoch int64) (*ChronicleMetadata, error) {
	doc, err := m.metadata.FindOne(ctx, map[string]any{"docId": docID, "epoch": epoch}, FindOptions{})
	if err != nil || doc == nil {
		return nil, err
	}
	return docToMetadata(doc), nil
}

// getLatestMetadata returns the metadata row with the highest epoch for
// docID, or nil if no lineage exists.
func (m *branchManager) getLatestMetadata(ctx context.Context, docID string) (*ChronicleMetadata, error) {
	doc, err := m.metadata.FindOne(ctx,
		map[string]any{"docId": docID},
		FindOptions{Sort: SortSpec{"epoch": -1}},
	)
	if err != nil || doc == nil {
		return nil, err
	}
	return docToMetadata(doc), nil
}

// createMetadata inserts a new (docId, epoch) metadata row in pending
// status for a newly created branch.
func (m *branchManager) createMetadata(ctx context.Context, docID string, epoch int64, activeBranchID string) error {
	return m.metadata.InsertOne(ctx, map[string]any{
		"docId":          docID,
		"epoch":          epoch,
		"activeBranchId": activeBranchID,
		"metadataStatus": string(statusPending),
		"createdAt":      nowFunc(),
		"updatedAt":      nowFunc(),
	})
}

// activateMetadata flips (docId, epoch) to active, and optionally updates
// its active branch.
func (m *branchManager) activateMetadata(ctx context.Context, docID string, epoch int64, activeBranchID string) error {
	update := map[string]any{
		"metadataStatus": string(statusActive),
		"updatedAt":      nowFunc(),
	}
	if activeBranchID != "" {
		update["activeBranchId"] = activeBranchID
	}
	_, err := m.metadata.UpdateOne(ctx,
		map[string]any{"docId": docID, "epoch": epoch},
		update,
		UpdateOptions{},
	)
	return err
}

// getBranch returns the branch by ID, or nil if it doesn't exist.
func (m *branchManager) getBranch(ctx context.Context, branchID string) (*ChronicleBranch, error) {
	doc, err := m.branches.FindOne(ctx, map[string]any{"branchId": branchID}, FindOptions{})
	if err != nil || doc == nil {
		return nil, err
	}
	return docToBranch(doc), nil
}

// listBranches returns every branch belonging to (docId, epoch).
func (m *branchManager) listBranches(ctx context.Context, docID string, epoch int64) ([]*ChronicleBranch, error) {
	docs, err := m.branches.Find(ctx, map[string]any{"docId": docID, "epoch": epoch}, FindOptions{Sort: SortSpec{"createdAt": 1}})
	if err != nil {
		return nil, err
	}
	out := make([]*ChronicleBranch, 0, len(docs))
	for _, d := range docs {
		out = append(out, docToBranch(d))
	}
	return out, nil
}

// insertBranch creates a new branch row.
func (m *branchManager) insertBranch(ctx context.Context, b *ChronicleBranch) error {
	return m.branches.InsertOne(ctx, branchToDoc(b))
}

// reparentChildren implements revert step 4: every branch whose
// (parentBranchId, parentSerial) pins it past targetSerial on branchID is
// rewound to targetSerial, so its logical attachment point stays valid
// after the ancestor's future chunks are deleted.
func (m *branchManager) reparentChildren(ctx context.Context, docID, branchID string, targetSerial int64) (int, error) {
	return m.branches.UpdateMany(ctx,
		map[string]any{
			"docId":          docID,
			"parentBranchId": branchID,
			"parentSerial":   map[string]any{"$gt": targetSerial},
		},
		map[string]any{"parentSerial": targetSerial},
	)
}

// deleteAllBranches removes every branch for docID, optionally restricted
// to one epoch.
func (m *branchManager) deleteAllBranches(ctx context.Context, docID string, epoch *int64) (int, error) {
	filter := map[string]any{"docId": docID}
	if epoch != nil {
		filter["epoch"] = *epoch
	}
	return m.branches.DeleteMany(ctx, filter)
}

// deleteAllMetadata removes metadata rows for docID, optionally restricted
// to one epoch.
func (m *branchManager) deleteAllMetadata(ctx context.Context, docID string, epoch *int64) (int, error) {
	filter := map[string]any{"docId": docID}
	if epoch != nil {
		filter["epoch"] = *epoch
	}
	return m.metadata.DeleteMany(ctx, filter)
}

func docToMetadata(doc map[string]any) *ChronicleMetadata {
	return &ChronicleMetadata{
		DocID:          asString(doc["docId"]),
		Epoch:          asInt64(doc["epoch"]),
		ActiveBranchID: asString(doc["activeBranchId"]),
		Status:         metadataStatus(asString(doc["metadataStatus"])),
		CreatedAt:      asTime(doc["createdAt"]),
		UpdatedAt:      asTime(doc["updatedAt"]),
	}
}

func docToBranch(doc map[string]any) *ChronicleBranch {
	b := &ChronicleBranch{
		BranchID:       asString(doc["branchId"]),
		DocID:          asString(doc["docId"]),
		Epoch:          asInt64(doc["epoch"]),
		ParentBranchID: asString(doc["parentBranchId"]),
		Name:           asString(doc["name"]),
		CreatedAt:      asTime(doc["createdAt"]),
		Protected:      asBool(doc["protected"]),
	}
	if v, ok := doc["parentSerial"]; ok && v != nil {
		s := asInt64(v)
		b.ParentSerial = &s
	}
	return b
}

func branchToDoc(b *ChronicleBranch) map[string]any {
	doc := map[string]any{
		"branchId":       b.BranchID,
		"docId":          b.DocID,
		"epoch":          b.Epoch,
		"parentBranchId": b.ParentBranchID,
		"name":           b.Name,
		"createdAt":      b.CreatedAt,
		"protected":      b.Protected,
	}
	if b.ParentSerial != nil {
		doc["parentSerial"] = *b.ParentSerial
	} else {
		doc["parentSerial"] = nil
	}
	return doc
}
