package chronicle

import "context"

// ArchiveBackend is a cold-storage sink squash and purge write to before
// deleting chunks and branches, when Config.Archive is set. Its shape
// matches internal/archive.Backend exactly, so any concrete backend from
// that package (memory, local filesystem, S3) satisfies it without an
// adapter.
type ArchiveBackend interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// archiveKey derives the archive key for a (docId, epoch) snapshot about
// to be deleted by squash or purge.
func archiveKey(collectionName, docID string, epoch int64) string {
	return collectionName + "/" + docID + "/" + itoa(epoch)
}
