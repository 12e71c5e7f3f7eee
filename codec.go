package chronicle

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"sync"
)

// blobKey marks a payload that was serialized to bytes (because
// compression or encryption applied) rather than stored as a plain
// attribute map. Collections that support nested documents natively
// still just see one more field.
const blobKey = "__chronicle_blob"

// payloadCodec encodes a chunk's payload attribute map before it crosses
// the Collection boundary, and decodes it on the way back. Compression
// and encryption are both optional and composed in a fixed order:
// marshal -> compress (if over threshold) -> encrypt (if configured).
type payloadCodec struct {
	threshold int
	encryptor *Encryptor
	encCfg    EncryptionConfig

	mu     sync.Mutex
	bySalt map[string]*Encryptor
}

func newPayloadCodec(threshold int, enc *Encryptor, encCfg EncryptionConfig) *payloadCodec {
	return &payloadCodec{threshold: threshold, encryptor: enc, encCfg: encCfg}
}

// encode returns the map to store in a chunk document's "payload" field.
// When neither compression nor encryption applies, payload is stored
// as-is so hosts browsing the chunk collection directly still see a
// readable attribute map.
func (c *payloadCodec) encode(payload map[string]any) (map[string]any, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payloadForWire(payload))
	if err != nil {
		return nil, err
	}
	compressed := false
	if c.threshold > 0 && len(raw) >= c.threshold {
		raw = compress(raw)
		compressed = true
	}
	encrypted := false
	if c.encryptor != nil {
		raw, err = c.encryptor.Encrypt(raw)
		if err != nil {
			return nil, err
		}
		encrypted = true
	}
	if !compressed && !encrypted {
		return payload, nil
	}
	return map[string]any{
		blobKey:     true,
		"data":      raw,
		"compressed": compressed,
		"encrypted":  encrypted,
		"salt":       saltOf(c.encryptor),
	}, nil
}

// decode reverses encode. v is whatever the Collection returned for the
// payload field: either a plain map (the no-blob fast path) or a blob
// wrapper map.
func (c *payloadCodec) decode(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return map[string]any{}, nil
	}
	if blob, ok := m[blobKey].(bool); !ok || !blob {
		return cloneMap(m), nil
	}
	raw, err := asBytes(m["data"])
	if err != nil {
		return nil, err
	}
	if encrypted, _ := m["encrypted"].(bool); encrypted {
		dec, err := c.encryptorForSalt(m["salt"])
		if err != nil {
			return nil, err
		}
		if dec == nil {
			return nil, ErrNotConnected
		}
		raw, err = dec.Decrypt(raw)
		if err != nil {
			return nil, err
		}
	}
	if compressed, _ := m["compressed"].(bool); compressed {
		raw, err = decompress(raw)
		if err != nil {
			return nil, err
		}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return payloadFromWire(out), nil
}

// payloadForWire converts in-memory sentinel values (the tombstone) into
// a JSON-representable form before marshaling.
func payloadForWire(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == tombstone {
			out[k] = map[string]any{"__tombstone": true}
			continue
		}
		out[k] = v
	}
	return out
}

// payloadFromWire reverses payloadForWire after a JSON round trip.
func payloadFromWire(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if m, ok := v.(map[string]any); ok {
			if t, ok := m["__tombstone"].(bool); ok && t && len(m) == 1 {
				out[k] = tombstone
				continue
			}
		}
		out[k] = v
	}
	return out
}

func asBytes(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	default:
		return nil, ErrCorrupt
	}
}

func saltOf(enc *Encryptor) []byte {
	if enc == nil {
		return nil
	}
	return enc.Salt()
}

// encryptorForSalt returns the *Encryptor to decrypt a payload that was
// encrypted with salt. A payload can carry a different salt than the
// codec's own encryptor when it was written by an earlier *Encryptor
// instance derived from the same KeyPassword (e.g. before a process
// restart) — in that case the key must be re-derived with the persisted
// salt rather than the codec's current one.
func (c *payloadCodec) encryptorForSalt(salt any) (*Encryptor, error) {
	if c.encryptor == nil {
		return nil, nil
	}
	raw, err := asBytes(salt)
	if err != nil || len(raw) == 0 || bytes.Equal(raw, c.encryptor.Salt()) {
		return c.encryptor, nil
	}

	key := base64.StdEncoding.EncodeToString(raw)
	c.mu.Lock()
	defer c.mu.Unlock()
	if dec, ok := c.bySalt[key]; ok {
		return dec, nil
	}
	dec, err := NewEncryptorWithSalt(c.encCfg, raw)
	if err != nil {
		return nil, err
	}
	if c.bySalt == nil {
		c.bySalt = make(map[string]*Encryptor)
	}
	c.bySalt[key] = dec
	return dec, nil
}
