package chronicle

import (
	"fmt"

	"go.uber.org/zap"
)

// Config configures a [Chronicle] for a single host collection.
//
// Per spec §3 (ChronicleConfig), a Config is scoped to one collection: the
// chunk/branch/metadata/key collections Initialize creates are named after
// CollectionName.
type Config struct {
	// CollectionName is the name of the host's live collection. Chronicle's
	// own collections are named "{CollectionName}_chronicle_chunks",
	// "..._chronicle_metadata", "..._chronicle_branches", and
	// "..._chronicle_keys".
	CollectionName string

	// IndexedFields are payload field paths the host has already indexed
	// on the live collection; Chronicle mirrors them onto the latest
	// partial index described in spec §4.2 when the Collection supports
	// CreateIndex.
	IndexedFields []string

	// UniqueFields are payload field paths enforced unique per branch by
	// the key index (C4). A field's absence or null value is exempt
	// (sparse uniqueness).
	UniqueFields []string

	// Chunking groups chunk-cadence settings.
	Chunking ChunkingConfig

	// Retention groups squash/purge archival settings.
	Retention RetentionConfig

	// Encryption configures payload encryption at rest. Nil or
	// Encryption.Enabled false means payloads are stored as plain
	// attribute maps.
	Encryption *EncryptionConfig

	// Archive, if set, is used to write a copy of chunks and branches about
	// to be deleted by Squash/Purge before the delete proceeds.
	Archive ArchiveBackend

	// ChangeFeed, if set, receives a ChangeEvent after every committed
	// chunk append and branch switch.
	ChangeFeed ChangeFeedPublisher

	// Identifiers generates docId/chunkId/branchId values. Defaults to a
	// [UUIDFactory] producing time-sortable UUIDv7 values.
	Identifiers IdentifierFactory

	// Logger receives structured logs from Initialize and from each
	// committed Save. Corrupt-chronicle conditions are returned as
	// CorruptError and are not logged. Defaults to a no-op logger.
	Logger *zap.Logger

	// Metrics receives counters/histograms for engine operations. Defaults
	// to a disabled recorder.
	Metrics *Metrics
}

// ChunkingConfig groups chunk-store cadence settings.
type ChunkingConfig struct {
	// FullChunkInterval is the save cadence at which a FULL chunk is
	// written instead of a DELTA, per spec §4.6.1 step 3: a FULL chunk is
	// written whenever currentSerial+1 is a multiple of this interval (and
	// always for serial 1). Default: 10.
	FullChunkInterval int

	// CompressionThresholdBytes is the minimum encoded payload size above
	// which chunk payloads are snappy-compressed before being written to
	// the Collection. 0 is replaced by the default; a negative value
	// disables compression. Default: 2048.
	CompressionThresholdBytes int
}

// RetentionConfig groups squash/purge archival settings.
type RetentionConfig struct {
	// ArchiveBeforeDelete, when true and Config.Archive is set, serializes
	// chunks and branches to the archive backend before Squash/Purge
	// deletes them.
	ArchiveBeforeDelete bool
}

// DefaultConfig returns a Config with sensible defaults. CollectionName
// must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		Chunking: ChunkingConfig{
			FullChunkInterval:         10,
			CompressionThresholdBytes: 2048,
		},
		Identifiers: NewUUIDFactory(),
		Logger:      zap.NewNop(),
		Metrics:     NewMetrics(nil),
	}
}

// normalize fills in defaults for zero-valued fields, mirroring the
// teacher's Config.normalize: callers may construct a Config as a literal
// and rely on Initialize to complete it.
func (c *Config) normalize() {
	if c.Chunking.FullChunkInterval <= 0 {
		c.Chunking.FullChunkInterval = 10
	}
	if c.Chunking.CompressionThresholdBytes == 0 {
		c.Chunking.CompressionThresholdBytes = 2048
	}
	if c.Identifiers == nil {
		c.Identifiers = NewUUIDFactory()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(nil)
	}
}

// Validate checks the configuration for consistency, returning an error
// describing the first problem found.
func (c *Config) Validate() error {
	if c.CollectionName == "" {
		return fmt.Errorf("chronicle: CollectionName is required")
	}
	if c.Chunking.FullChunkInterval <= 0 {
		return fmt.Errorf("chronicle: Chunking.FullChunkInterval must be positive")
	}
	if c.Encryption != nil && c.Encryption.Enabled {
		if len(c.Encryption.Key) == 0 && c.Encryption.KeyPassword == "" {
			return fmt.Errorf("chronicle: Encryption.Enabled but no Key or KeyPassword provided")
		}
	}
	return nil
}

// collectionNames returns the derived names of Chronicle's own collections.
func (c *Config) collectionNames() (chunks, metadata, branches, keys string) {
	base := c.CollectionName
	return base + "_chronicle_chunks",
		base + "_chronicle_metadata",
		base + "_chronicle_branches",
		base + "_chronicle_keys"
}

// chunkCadenceTick reports whether the chunk about to be written at
// nextSerial must be FULL under the configured cadence (spec §4.6.1 step 3).
func (c ChunkingConfig) chunkCadenceTick(nextSerial int64) bool {
	if nextSerial <= 1 {
		return true
	}
	return nextSerial%int64(c.FullChunkInterval) == 0
}

