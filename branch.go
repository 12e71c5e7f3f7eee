package chronicle

import "time"

// ChronicleBranch is a named, parented timeline of a single document
// within one epoch. Branches form a forest rooted at "main" for each
// epoch; every non-root branch carries (ParentBranchID, ParentSerial)
// recording the point on its parent where it diverged.
type ChronicleBranch struct {
	BranchID       string    `bson:"branchId" json:"branchId"`
	DocID          string    `bson:"docId" json:"docId"`
	Epoch          int64     `bson:"epoch" json:"epoch"`
	ParentBranchID string    `bson:"parentBranchId,omitempty" json:"parentBranchId,omitempty"`
	ParentSerial   *int64    `bson:"parentSerial,omitempty" json:"parentSerial,omitempty"`
	Name           string    `bson:"name" json:"name"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`

	// Protected is advisory: it records that a branch (conventionally
	// "main") shouldn't be torn down by a host-level policy, but Revert
	// and Squash don't read it themselves and will operate on a
	// Protected branch like any other. Hosts that want a hard gate can
	// check it before calling Revert/Squash.
	Protected bool `bson:"protected" json:"protected"`
}

// isRoot reports whether b is the root branch of its epoch.
func (b *ChronicleBranch) isRoot() bool {
	return b.ParentBranchID == "" && b.ParentSerial == nil
}

// mainBranchName is the conventional name of the root branch of an epoch.
const mainBranchName = "main"
