package cipher

// #region imports
import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// #endregion

// #region master-key

// KeySize is the symmetric master key length in bytes.
const KeySize = chacha20poly1305.KeySize

// ErrKeySize is returned when a key of the wrong length is supplied.
var ErrKeySize = errors.New("cipher: key must be 32 bytes")

// NewMasterKey generates a random 256-bit log master key.
func NewMasterKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("keygen: %w", err)
	}
	return key, nil
}

// KeyFingerprint returns the hex SHA-256 of a key. Stored alongside the
// registry so an unwrap can be verified without trial decryption.
func KeyFingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])
}

// #endregion master-key

// #region seal-open

// Seal encrypts plaintext with XChaCha20-Poly1305 under key, binding aad.
// Output layout: nonce || ciphertext. A fresh random nonce per call.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("aead init: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts a Seal blob. Authentication failure is an error, never a
// partial plaintext.
func Open(key, blob, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("aead init: %w", err)
	}
	if len(blob) < aead.NonceSize() {
		return nil, errors.New("cipher: blob shorter than nonce")
	}
	nonce, ct := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return plain, nil
}

// #endregion seal-open
