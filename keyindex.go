package chronicle

import (
	"context"
	"fmt"
)

// keyField returns the key-row column name for a declared unique field,
// e.g. "email" -> "key_email".
func keyField(f string) string {
	return fmt.Sprintf("key_%s", f)
}

// keyIndex implements C4 over a Collection holding one row per
// (docId, branchId): validate a prospective payload against the declared
// unique fields, and keep the stored key row in sync with save/softDelete/
// undelete transitions.
type keyIndex struct {
	coll         Collection
	uniqueFields []string
}

func newKeyIndex(coll Collection, uniqueFields []string) *keyIndex {
	return &keyIndex{coll: coll, uniqueFields: uniqueFields}
}

// validate checks payload against every declared unique field on
// branchID, excluding excludeDocID (the document being updated, if any)
// from the collision check. A field whose value in payload is nil or
// absent is exempt (sparse uniqueness).
func (k *keyIndex) validate(ctx context.Context, payload map[string]any, branchID, excludeDocID string) error {
	for _, f := range k.uniqueFields {
		v, ok := payload[f]
		if !ok || v == nil {
			continue
		}
		filter := map[string]any{
			keyField(f):  v,
			"branchId":   branchID,
			"isDeleted":  false,
		}
		if excludeDocID != "" {
			filter["docId"] = map[string]any{"$ne": excludeDocID}
		}
		n, err := k.coll.CountDocuments(ctx, filter)
		if err != nil {
			return err
		}
		if n > 0 {
			return &UniqueConstraintViolationError{Field: f, Value: v}
		}
	}
	return nil
}

// upsert writes or refreshes the key row for (docId, branchId), setting
// each key_f column from payload (or nil, if the field is absent) and
// isDeleted as given.
func (k *keyIndex) upsert(ctx context.Context, docID, branchID string, payload map[string]any, isDeleted bool) error {
	set := map[string]any{
		"docId":     docID,
		"branchId":  branchID,
		"isDeleted": isDeleted,
	}
	for _, f := range k.uniqueFields {
		set[keyField(f)] = payload[f]
	}
	_, err := k.coll.UpdateOne(ctx,
		map[string]any{"docId": docID, "branchId": branchID},
		set,
		UpdateOptions{Upsert: true},
	)
	return err
}

// markDeleted releases the unique slot held by (docId, branchId) without
// clearing the stored key values; clearDeleted later refreshes them from
// the payload it is given.
func (k *keyIndex) markDeleted(ctx context.Context, docID, branchID string) error {
	_, err := k.coll.UpdateOne(ctx,
		map[string]any{"docId": docID, "branchId": branchID},
		map[string]any{"isDeleted": true},
		UpdateOptions{Upsert: true},
	)
	return err
}

// clearDeleted re-acquires the unique slot for (docId, branchId),
// refreshing key_f from payload.
func (k *keyIndex) clearDeleted(ctx context.Context, docID, branchID string, payload map[string]any) error {
	return k.upsert(ctx, docID, branchID, payload, false)
}

// ensureIndexes creates the compound unique index on (docId, branchId)
// and, for each declared unique field, a partial unique index on
// (key_f, branchId) filtered to live rows, per §4.4.
func (k *keyIndex) ensureIndexes(ctx context.Context) error {
	if err := k.coll.CreateIndex(ctx, IndexSpec{
		Keys:   SortSpec{"docId": 1, "branchId": 1},
		Unique: true,
		Name:   "docId_branchId_unique",
	}); err != nil {
		return err
	}
	for _, f := range k.uniqueFields {
		if err := k.coll.CreateIndex(ctx, IndexSpec{
			Keys:    SortSpec{keyField(f): 1, "branchId": 1},
			Unique:  true,
			Partial: map[string]any{"isDeleted": false, keyField(f): map[string]any{"$ne": nil}},
			Name:    "key_" + f + "_branchId_partial",
		}); err != nil {
			return err
		}
	}
	return nil
}
