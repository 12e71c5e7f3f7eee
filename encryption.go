package chronicle

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// EncryptionNonceSize is the nonce size for AES-GCM.
	EncryptionNonceSize = 12
	// EncryptionSaltSize is the salt size for key derivation.
	EncryptionSaltSize = 32
	// EncryptionKeySize is the AES-256 key size.
	EncryptionKeySize = 32
	// PBKDF2Iterations is the number of iterations for key derivation.
	PBKDF2Iterations = 100000
)

// EncryptionConfig configures payload encryption at rest.
type EncryptionConfig struct {
	// Enabled turns on encryption for chunk payloads.
	Enabled bool
	// Key is the encryption key (must be 32 bytes for AES-256). If empty,
	// KeyPassword is used to derive a key.
	Key []byte
	// KeyPassword is used to derive the encryption key via PBKDF2.
	KeyPassword string
	// Salt pins the PBKDF2 salt instead of generating a random one. Leave
	// empty to have NewEncryptor generate one; codec.decode uses
	// NewEncryptorWithSalt to re-derive a matching key from a salt
	// persisted alongside an already-encrypted payload.
	Salt []byte
}

// Encryptor provides AES-GCM encryption/decryption for chunk payloads.
type Encryptor struct {
	gcm  cipher.AEAD
	salt []byte
}

// NewEncryptor creates an encryptor from a raw key or password, per cfg.
// Returns (nil, nil) if encryption is disabled. If cfg.Salt is empty, a
// fresh random salt is generated; callers that need to reproduce the same
// password-derived key later (e.g. to decrypt a payload encrypted by a
// different *Encryptor instance) should use NewEncryptorWithSalt with the
// salt that was persisted alongside that payload.
func NewEncryptor(cfg EncryptionConfig) (*Encryptor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	salt := cfg.Salt
	if len(salt) == 0 {
		salt = make([]byte, EncryptionSaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
	}
	return newEncryptor(cfg, salt)
}

// NewEncryptorWithSalt builds an encryptor using an explicit salt rather
// than generating one, so a password-derived key can be reproduced across
// process restarts or separate *Encryptor instances sharing one
// KeyPassword. codec.decode calls this with the salt persisted at encode
// time to re-derive the key that originally encrypted a payload.
func NewEncryptorWithSalt(cfg EncryptionConfig, salt []byte) (*Encryptor, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(salt) == 0 {
		return nil, errors.New("encryption: salt required")
	}
	return newEncryptor(cfg, salt)
}

func newEncryptor(cfg EncryptionConfig, salt []byte) (*Encryptor, error) {
	var key []byte
	if len(cfg.Key) > 0 {
		if len(cfg.Key) != EncryptionKeySize {
			return nil, errors.New("encryption key must be 32 bytes for AES-256")
		}
		key = cfg.Key
	} else if cfg.KeyPassword != "" {
		key = pbkdf2.Key([]byte(cfg.KeyPassword), salt, PBKDF2Iterations, EncryptionKeySize, sha256.New)
	} else {
		return nil, errors.New("encryption enabled but no key or password provided")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Encryptor{gcm: gcm, salt: salt}, nil
}

// Salt returns the salt used for key derivation, for a codec to carry
// alongside each encrypted chunk payload.
func (e *Encryptor) Salt() []byte {
	return e.salt
}

// Encrypt encrypts plaintext and returns ciphertext with a prepended nonce.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, EncryptionNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return e.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext (with a prepended nonce) and returns plaintext.
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < EncryptionNonceSize {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:EncryptionNonceSize]
	ciphertext = ciphertext[EncryptionNonceSize:]

	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
