package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// DecryptionError marks a blob that could not be authenticated and
// decrypted: truncated ciphertext, wrong key, or tampered bytes. The store
// never serves partially-decrypted data.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decrypt store: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// keySalt is fixed and application-specific. The scrypt parameters make
// key derivation deliberately slow; derivation happens once at store
// construction, never per request.
const keySalt = "veriface-embedding-store-v1"

const (
	scryptN = 32768
	scryptR = 8
	scryptP = 1
	keyLen  = 32
)

// deriveKey stretches the configured secret into an AES-256 key.
func deriveKey(secret string) ([]byte, error) {
	key, err := scrypt.Key([]byte(secret), []byte(keySalt), scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// sealBlob encrypts plaintext with AES-256-GCM under a fresh random nonce.
// The blob layout is nonce || ciphertext+tag.
func sealBlob(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// openBlob authenticates and decrypts a sealed blob. Any failure is a
// DecryptionError; there is no best-effort path.
func openBlob(key, blob []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &DecryptionError{Err: err}
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &DecryptionError{Err: err}
	}

	if len(blob) < gcm.NonceSize() {
		return nil, &DecryptionError{Err: fmt.Errorf("ciphertext too short: %d bytes", len(blob))}
	}

	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &DecryptionError{Err: err}
	}

	return plaintext, nil
}
