package chronicle

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the chronicle package.
var (
	// ErrNotFound is returned when no metadata, chunks, or branch exist at
	// the requested coordinates.
	ErrNotFound = errors.New("chronicle: not found")

	// ErrBranchNotFound is returned when a branch does not belong to the
	// document it was addressed against.
	ErrBranchNotFound = errors.New("chronicle: branch not found")

	// ErrAlreadyDeleted is returned by SoftDelete when the document's
	// latest chunk is already marked deleted.
	ErrAlreadyDeleted = errors.New("chronicle: already deleted")

	// ErrNotDeleted is returned by Undelete when the document's latest
	// chunk is not marked deleted.
	ErrNotDeleted = errors.New("chronicle: not deleted")

	// ErrConfirmationRequired is returned by destructive operations
	// (Squash, Purge) invoked without explicit confirmation.
	ErrConfirmationRequired = errors.New("chronicle: confirmation required")

	// ErrMutuallyExclusiveOptions is returned for ill-formed option
	// combinations, e.g. AsOf with both BranchID and SearchAllBranches set.
	ErrMutuallyExclusiveOptions = errors.New("chronicle: mutually exclusive options")

	// ErrNotConnected is returned when a chunk payload is stored encrypted
	// but no encryptor is configured to decrypt it. It is not returned for
	// an unavailable collection or for a Chronicle whose Initialize has not
	// run; neither condition is checked.
	ErrNotConnected = errors.New("chronicle: not connected")

	// ErrNoChunks is returned by CreateBranch when the parent branch has
	// no chunks to branch from.
	ErrNoChunks = errors.New("chronicle: no chunks")

	// ErrSerialNotFound is the sentinel matched by SerialNotFoundError.Is,
	// for callers that only care about the error category.
	ErrSerialNotFound = errors.New("chronicle: serial not found")

	// ErrUniqueConstraintViolation is the sentinel matched by
	// UniqueConstraintViolationError.Is.
	ErrUniqueConstraintViolation = errors.New("chronicle: unique constraint violation")

	// ErrCorrupt is the sentinel matched by CorruptError.Is.
	ErrCorrupt = errors.New("chronicle: corrupt")
)

// SerialNotFoundError is returned when a requested serial does not exist on
// the resolved branch.
type SerialNotFoundError struct {
	DocID    string
	BranchID string
	Serial   int64
}

func (e *SerialNotFoundError) Error() string {
	return fmt.Sprintf("chronicle: serial %d not found for doc %s on branch %s", e.Serial, e.DocID, e.BranchID)
}

// Is reports whether target is the SerialNotFound sentinel category.
func (e *SerialNotFoundError) Is(target error) bool {
	return target == ErrSerialNotFound
}

// UniqueConstraintViolationError is returned when a save, undelete, or
// explicit validate call would duplicate a value already held by another
// live document on the same branch for a declared unique field.
type UniqueConstraintViolationError struct {
	Field string
	Value any
}

func (e *UniqueConstraintViolationError) Error() string {
	return fmt.Sprintf("chronicle: unique constraint violated on field %q (value %v)", e.Field, e.Value)
}

// Is reports whether target is the UniqueConstraintViolation sentinel
// category.
func (e *UniqueConstraintViolationError) Is(target error) bool {
	return target == ErrUniqueConstraintViolation
}

// CorruptError indicates invariant I4 failed: no FULL chunk was reachable
// at or before a rehydration bound on a non-empty chunk sequence. This
// should never happen in a well-formed store; the engine returns it to the
// caller without logging it.
type CorruptError struct {
	DocID    string
	Epoch    int64
	BranchID string
	Reason   string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("chronicle: corrupt chronicle for doc %s epoch %d branch %s: %s", e.DocID, e.Epoch, e.BranchID, e.Reason)
}

// Is reports whether target is the Corrupt sentinel category.
func (e *CorruptError) Is(target error) bool {
	return target == ErrCorrupt
}

func newCorrupt(docID string, epoch int64, branchID, reason string) error {
	return &CorruptError{DocID: docID, Epoch: epoch, BranchID: branchID, Reason: reason}
}
