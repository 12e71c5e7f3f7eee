// Package archive provides cold-storage backends chronicle uses to write
// a copy of chunks and branches before squash or purge deletes them.
package archive

import (
	"context"
	"io"
)

// Backend is a key/blob store: chronicle addresses archived snapshots by
// a "{collection}/{docId}/{epoch}" key and never reads them back itself
// (retrieval is an operator/compliance concern), so the interface only
// needs write-path completeness plus enough read/list surface for
// operators to verify what was archived.
type Backend interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// FromReader drains r into a byte slice, closing it afterward. Useful for
// adapting a streaming source to Backend.Write.
func FromReader(r io.ReadCloser) ([]byte, error) {
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}
