package chronicle

import "time"

// metadataStatus is the lifecycle state of a (docId, epoch) lineage.
type metadataStatus string

const (
	statusPending  metadataStatus = "pending"
	statusActive   metadataStatus = "active"
	statusOrphaned metadataStatus = "orphaned"
)

// ChronicleMetadata is the one row per (DocID, Epoch) that tracks which
// branch is currently receiving saves and the lineage's lifecycle status.
type ChronicleMetadata struct {
	DocID          string         `bson:"docId" json:"docId"`
	Epoch          int64          `bson:"epoch" json:"epoch"`
	ActiveBranchID string         `bson:"activeBranchId" json:"activeBranchId"`
	Status         metadataStatus `bson:"metadataStatus" json:"metadataStatus"`
	CreatedAt      time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time      `bson:"updatedAt" json:"updatedAt"`
}
