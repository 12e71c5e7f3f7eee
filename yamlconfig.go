package chronicle

import (
	"os"

	"gopkg.in/yaml.v3"
)

// yamlConfig is the on-disk shape LoadConfig reads. It mirrors the subset
// of Config that is meaningfully expressible outside of Go code: backend
// collaborators (Collection, ArchiveBackend, Identifiers, Logger,
// Metrics) are wired up by the caller after loading, not from YAML.
type yamlConfig struct {
	CollectionName string   `yaml:"collectionName"`
	IndexedFields  []string `yaml:"indexedFields"`
	UniqueFields   []string `yaml:"uniqueFields"`
	Chunking       struct {
		FullChunkInterval         int `yaml:"fullChunkInterval"`
		CompressionThresholdBytes int `yaml:"compressionThresholdBytes"`
	} `yaml:"chunking"`
	Retention struct {
		ArchiveBeforeDelete bool `yaml:"archiveBeforeDelete"`
	} `yaml:"retention"`
	Encryption *struct {
		Enabled     bool   `yaml:"enabled"`
		KeyPassword string `yaml:"keyPassword"`
	} `yaml:"encryption"`
}

// LoadConfig reads a Config from a YAML file, filling in defaults for
// anything the file omits. Collaborators that cannot be expressed in YAML
// (Archive, ChangeFeed, Identifiers, Logger, Metrics) are left at their
// Config defaults; set them on the returned Config before passing it to
// New. The collections themselves are New's own arguments.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig()
	cfg.CollectionName = y.CollectionName
	cfg.IndexedFields = y.IndexedFields
	cfg.UniqueFields = y.UniqueFields
	if y.Chunking.FullChunkInterval > 0 {
		cfg.Chunking.FullChunkInterval = y.Chunking.FullChunkInterval
	}
	if y.Chunking.CompressionThresholdBytes > 0 {
		cfg.Chunking.CompressionThresholdBytes = y.Chunking.CompressionThresholdBytes
	}
	cfg.Retention.ArchiveBeforeDelete = y.Retention.ArchiveBeforeDelete
	if y.Encryption != nil {
		cfg.Encryption = &EncryptionConfig{
			Enabled:     y.Encryption.Enabled,
			KeyPassword: y.Encryption.KeyPassword,
		}
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
