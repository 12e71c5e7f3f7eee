// Package chronicle turns a conventional document collection into an
// append-only chronicle of every change to every document, with Git-like
// branching, point-in-time reads, revert/squash operations, and recoverable
// soft deletion.
//
// Chronicle is a library, not a database: it is layered on top of a host
// document store that already offers collections, indexed queries, upserts,
// and atomic single-document updates (see [Collection]). Chronicle owns the
// chunk, branch, metadata, and key-index collections it creates alongside
// the host's own "live" collection; it never touches the live collection
// itself.
//
// # Basic usage
//
//	cfg := chronicle.NewConfigBuilder("widgets").WithUniqueFields("sku").MustBuild()
//	ch := chronicle.New(memcollection.New(), memcollection.New(), memcollection.New(), memcollection.New(), cfg)
//	if err := ch.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := ch.Save(ctx, docID, map[string]any{"email": "a@b.com"})
//
// # Core concepts
//
//   - A chunk is an immutable record of one full snapshot or one delta of a
//     document on a specific (docId, epoch, branchId) lineage.
//   - A branch is a named, parented timeline of a single document.
//   - An epoch segregates successive incarnations of a reused document
//     identity after a purge or squash.
//   - Rehydration reconstructs a document's state at a chosen coordinate by
//     folding deltas onto the most recent preceding full chunk.
//
// # Features
//
// Core:
//   - Append-only chunk store with periodic full-chunk compaction cadence
//   - Git-like branch/epoch graph with parent/serial divergence points
//   - Point-in-time reads by serial or by timestamp, single-branch or
//     searching across all branches
//   - Revert, squash, and purge for history management
//   - Soft delete / undelete with unique-key release and reacquisition
//   - History-aware unique key enforcement, scoped per branch
//
// Integrations:
//   - In-memory, SQLite, and Firestore Collection implementations
//   - Optional cold-storage archival (S3) before destructive operations
//   - Optional AES-256-GCM payload encryption at rest
//   - Optional websocket change-feed for reactive live-mirror resync
//   - Prometheus metrics and zap structured logging
//
// # Configuration
//
// Use [Config] to customize behavior, or [DefaultConfig] for sensible
// defaults:
//
//	cfg := chronicle.DefaultConfig()
//	cfg.Chunking.FullChunkInterval = 20
//	cfg.UniqueFields = []string{"email"}
package chronicle
