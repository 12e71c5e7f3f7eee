package chronicle

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Chronicle is the operation engine (C6): the public entry point that
// wires the chunk store (C2), rehydrator (C3), key index (C4), and
// branch/epoch manager (C5) together over a single host Collection.
//
// A Chronicle is safe for concurrent use. It holds no in-process cache;
// all state lives in the collections it was configured against.
type Chronicle struct {
	cfg Config

	chunks   *chunkStore
	rehydr   *rehydrator
	keys     *keyIndex
	branches *branchManager
	codec    *payloadCodec
	retryer  *Retryer

	log     *zap.Logger
	metrics *Metrics

	mu          sync.Mutex
	subscribers map[chan ChangeEvent]struct{}
}

// New constructs a Chronicle against the given collections. The chunk,
// branch, metadata, and key collections are all derived Collections the
// caller must create (e.g. one table/collection per name returned by
// Config's derived names) and pass in; New does not touch the host's live
// mirror collection at all, per §1's external-collaborator boundary.
func New(chunks, branches, metadata, keys Collection, cfg Config) *Chronicle {
	cfg.normalize()

	var encryptor *Encryptor
	var encCfg EncryptionConfig
	if cfg.Encryption != nil && cfg.Encryption.Enabled {
		encCfg = *cfg.Encryption
		enc, err := NewEncryptor(encCfg)
		if err == nil {
			encryptor = enc
		}
	}
	codec := newPayloadCodec(cfg.Chunking.CompressionThresholdBytes, encryptor, encCfg)

	cs := newChunkStore(chunks, cfg.Identifiers, codec)
	rehydr := newRehydrator(cs)
	rehydr.metrics = cfg.Metrics
	return &Chronicle{
		cfg:         cfg,
		chunks:      cs,
		rehydr:      rehydr,
		keys:        newKeyIndex(keys, cfg.UniqueFields),
		branches:    newBranchManager(branches, metadata, cfg.Identifiers),
		codec:       codec,
		retryer:     NewRetryer(RetryConfig{MaxAttempts: 5, RetryIf: isConflict}),
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		subscribers: make(map[chan ChangeEvent]struct{}),
	}
}

// Initialize ensures the indexes the core relies on exist on the
// collections it was constructed with: the key index's compound and
// partial-unique indexes (§4.4), and partial indexes mirroring the
// configured IndexedFields onto the chunk store's latest-chunk rows
// (§4.2).
func (c *Chronicle) Initialize(ctx context.Context) error {
	if err := c.keys.ensureIndexes(ctx); err != nil {
		return err
	}
	if err := c.chunks.coll.CreateIndex(ctx, IndexSpec{
		Keys: SortSpec{"docId": 1, "epoch": 1, "branchId": 1, "serial": -1},
		Name: "chunk_primary_lookup",
	}); err != nil {
		return err
	}
	if err := c.chunks.coll.CreateIndex(ctx, IndexSpec{
		Keys:    SortSpec{"docId": 1, "epoch": 1, "branchId": 1},
		Partial: map[string]any{"isLatest": true},
		Name:    "chunk_latest_partial",
	}); err != nil {
		return err
	}
	if err := c.chunks.coll.CreateIndex(ctx, IndexSpec{
		Keys: SortSpec{"branchId": 1, "cTime": -1},
		Name: "chunk_branch_ctime",
	}); err != nil {
		return err
	}
	if err := c.chunks.coll.CreateIndex(ctx, IndexSpec{
		Keys:    SortSpec{"cTime": -1},
		Partial: map[string]any{"isLatest": true, "isDeleted": true},
		Name:    "chunk_deleted_partial",
	}); err != nil {
		return err
	}
	for _, f := range c.cfg.IndexedFields {
		if err := c.chunks.coll.CreateIndex(ctx, IndexSpec{
			Keys:    SortSpec{"payload." + f: 1, "branchId": 1},
			Partial: map[string]any{"isLatest": true, "isDeleted": false},
			Name:    "chunk_payload_" + f,
		}); err != nil {
			return err
		}
	}
	c.log.Info("chronicle initialized", zap.String("collection", c.cfg.CollectionName))
	return nil
}

// Subscribe returns a channel of ChangeEvents published after every
// committed chunk append and branch switch, and an unsubscribe function
// that must be called when the caller is done listening.
func (c *Chronicle) Subscribe() (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent, 32)
	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()
	return ch, func() {
		c.mu.Lock()
		delete(c.subscribers, ch)
		c.mu.Unlock()
		close(ch)
	}
}

// publish fans a ChangeEvent out to local subscribers and the optional
// configured ChangeFeed publisher.
func (c *Chronicle) publish(ctx context.Context, ev ChangeEvent) {
	c.mu.Lock()
	for ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	c.mu.Unlock()
	if c.cfg.ChangeFeed != nil {
		c.cfg.ChangeFeed.Publish(ctx, ev)
	}
}

// isConflict reports whether an error from a conditional chunk-store
// write should be retried as a losing race on serial monotonicity (§5
// point 1), rather than treated as a terminal failure.
func isConflict(err error) bool {
	if errors.Is(err, ErrUniqueConstraintViolation) {
		return false
	}
	return IsRetryable(err)
}
