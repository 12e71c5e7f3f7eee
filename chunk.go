package chronicle

import "time"

// ccType distinguishes a full snapshot chunk from a forward delta chunk.
type ccType int

const (
	// ccFull chunks carry the complete document state at a serial.
	ccFull ccType = 1
	// ccDelta chunks carry only the fields that changed since the
	// previous chunk, per the algebra in delta.go.
	ccDelta ccType = 2
)

func (t ccType) String() string {
	switch t {
	case ccFull:
		return "FULL"
	case ccDelta:
		return "DELTA"
	default:
		return "UNKNOWN"
	}
}

// ChronicleChunk is one immutable, append-only record in a document's
// chunk store: either a full snapshot or a forward delta, scoped to a
// single (DocID, Epoch, BranchID) lineage.
//
// Invariant I1: within a (DocID, Epoch, BranchID) group, Serial values form
// 1..N with no gaps. Invariant I2: at most one chunk per group has
// IsLatest=true. Invariant I3: the first chunk of any branch (Serial 1) is
// always FULL. Invariant I5: a FULL chunk's Payload is the complete state;
// a DELTA chunk's Payload maps changed keys to new values and removed keys
// to the tombstone sentinel.
type ChronicleChunk struct {
	ChunkID   string         `bson:"chunkId" json:"chunkId"`
	DocID     string         `bson:"docId" json:"docId"`
	Epoch     int64          `bson:"epoch" json:"epoch"`
	BranchID  string         `bson:"branchId" json:"branchId"`
	Serial    int64          `bson:"serial" json:"serial"`
	CCType    ccType         `bson:"ccType" json:"ccType"`
	IsDeleted bool           `bson:"isDeleted" json:"isDeleted"`
	IsLatest  bool           `bson:"isLatest" json:"isLatest"`
	CTime     time.Time      `bson:"cTime" json:"cTime"`
	Payload   map[string]any `bson:"payload" json:"payload"`
}

// chunkGroup identifies the (docId, epoch, branchId) lineage a chunk
// belongs to.
type chunkGroup struct {
	DocID    string
	Epoch    int64
	BranchID string
}
