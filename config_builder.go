package chronicle

import "go.uber.org/zap"

// ConfigBuilder provides a fluent API for constructing a [Config].
// It starts from [DefaultConfig], so only fields that differ from the
// defaults need to be set.
//
//	cfg, err := chronicle.NewConfigBuilder("widgets").
//	    WithUniqueFields("sku").
//	    WithFullChunkInterval(20).
//	    WithEncryption("correct-horse-battery-staple").
//	    Build()
type ConfigBuilder struct {
	cfg Config
}

// NewConfigBuilder creates a builder pre-populated with [DefaultConfig]
// values for the named host collection.
func NewConfigBuilder(collectionName string) *ConfigBuilder {
	cfg := DefaultConfig()
	cfg.CollectionName = collectionName
	return &ConfigBuilder{cfg: cfg}
}

// Indexing settings

// WithIndexedFields sets the payload fields mirrored onto the chunk store's
// latest-chunk partial indexes.
func (b *ConfigBuilder) WithIndexedFields(fields ...string) *ConfigBuilder {
	b.cfg.IndexedFields = fields
	return b
}

// WithUniqueFields sets the payload fields enforced unique per branch.
func (b *ConfigBuilder) WithUniqueFields(fields ...string) *ConfigBuilder {
	b.cfg.UniqueFields = fields
	return b
}

// Chunking settings

// WithFullChunkInterval sets the save cadence at which a FULL chunk is
// written instead of a DELTA.
func (b *ConfigBuilder) WithFullChunkInterval(n int) *ConfigBuilder {
	b.cfg.Chunking.FullChunkInterval = n
	return b
}

// WithCompressionThreshold sets the minimum encoded payload size, in bytes,
// above which chunk payloads are snappy-compressed. 0 is replaced by the
// default; a negative value disables compression.
func (b *ConfigBuilder) WithCompressionThreshold(bytes int) *ConfigBuilder {
	b.cfg.Chunking.CompressionThresholdBytes = bytes
	return b
}

// Retention settings

// WithArchive sets the backend squash/purge archive deleted chunks and
// branches to before removing them, and enables archive-before-delete.
func (b *ConfigBuilder) WithArchive(backend ArchiveBackend) *ConfigBuilder {
	b.cfg.Archive = backend
	b.cfg.Retention.ArchiveBeforeDelete = backend != nil
	return b
}

// Security settings

// WithEncryption enables AES-256-GCM payload encryption at rest, deriving
// the key from keyPassword via PBKDF2.
func (b *ConfigBuilder) WithEncryption(keyPassword string) *ConfigBuilder {
	b.cfg.Encryption = &EncryptionConfig{
		Enabled:     true,
		KeyPassword: keyPassword,
	}
	return b
}

// WithEncryptionKey enables AES-256-GCM payload encryption at rest using a
// raw 32-byte key instead of a password.
func (b *ConfigBuilder) WithEncryptionKey(key []byte) *ConfigBuilder {
	b.cfg.Encryption = &EncryptionConfig{
		Enabled: true,
		Key:     key,
	}
	return b
}

// Change feed

// WithChangeFeed sets the publisher notified after every committed chunk
// append and branch switch.
func (b *ConfigBuilder) WithChangeFeed(pub ChangeFeedPublisher) *ConfigBuilder {
	b.cfg.ChangeFeed = pub
	return b
}

// Identity, logging, metrics

// WithIdentifiers overrides the default UUIDv7 [IdentifierFactory].
func (b *ConfigBuilder) WithIdentifiers(f IdentifierFactory) *ConfigBuilder {
	b.cfg.Identifiers = f
	return b
}

// WithLogger sets the structured logger used by Initialize and Save.
// Corrupt-chronicle conditions are returned as errors and are not logged.
func (b *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	b.cfg.Logger = logger
	return b
}

// WithMetrics sets the recorder for engine operation counters and
// histograms.
func (b *ConfigBuilder) WithMetrics(m *Metrics) *ConfigBuilder {
	b.cfg.Metrics = m
	return b
}

// Build validates the configuration and returns it, filling any remaining
// zero-valued fields with defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	b.cfg.normalize()
	if err := b.cfg.Validate(); err != nil {
		return Config{}, err
	}
	return b.cfg, nil
}

// MustBuild is like [ConfigBuilder.Build] but panics on validation errors.
func (b *ConfigBuilder) MustBuild() Config {
	cfg, err := b.Build()
	if err != nil {
		panic("chronicle: invalid config: " + err.Error())
	}
	return cfg
}
