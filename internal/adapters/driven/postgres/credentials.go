package postgres

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/storeperf/internal/core/domain"
)

const (
	// credentialVersion prefixes every sealed blob so the format can change
	credentialVersion = 0x01

	// nonceSize is the AES-GCM nonce size
	nonceSize = 12

	// keySize is the required key size for AES-256
	keySize = 32
)

var (
	// ErrInvalidKeySize is returned when the encryption key is not 32 bytes.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")

	// ErrInvalidBlobSize is returned when the sealed blob is too small.
	ErrInvalidBlobSize = errors.New("sealed credentials are too small")

	// ErrUnsupportedVersion is returned when the blob version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported credentials blob version")

	// ErrDecryptionFailed is returned for a wrong key, a blob moved to
	// another store, or corrupted data.
	ErrDecryptionFailed = errors.New("failed to open sealed credentials")
)

// CredentialCipher seals store API credentials with AES-256-GCM.
// Blob format: version(1) || nonce(12) || ciphertext(N). The store ID is
// bound as additional data, so a blob only opens for the row it was sealed for.
type CredentialCipher struct {
	gcm cipher.AEAD
}

// ParseKey decodes a 64 character hex key.
func ParseKey(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	return key, nil
}

// NewCredentialCipher creates a cipher with the given 32-byte key.
func NewCredentialCipher(key []byte) (*CredentialCipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &CredentialCipher{gcm: gcm}, nil
}

// Seal encrypts creds for storeID.
func (c *CredentialCipher) Seal(storeID string, creds domain.StoreCredentials) ([]byte, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("marshal credentials: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := c.gcm.Seal(nil, nonce, plaintext, []byte(storeID))

	blob := make([]byte, 1+nonceSize+len(ciphertext))
	blob[0] = credentialVersion
	copy(blob[1:1+nonceSize], nonce)
	copy(blob[1+nonceSize:], ciphertext)

	return blob, nil
}

// Open decrypts a blob sealed for storeID.
func (c *CredentialCipher) Open(storeID string, blob []byte) (domain.StoreCredentials, error) {
	var creds domain.StoreCredentials

	if len(blob) < 1+nonceSize+c.gcm.Overhead() {
		return creds, ErrInvalidBlobSize
	}
	if blob[0] != credentialVersion {
		return creds, fmt.Errorf("%w: got version %d", ErrUnsupportedVersion, blob[0])
	}

	nonce := blob[1 : 1+nonceSize]
	plaintext, err := c.gcm.Open(nil, nonce, blob[1+nonceSize:], []byte(storeID))
	if err != nil {
		return creds, ErrDecryptionFailed
	}

	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return creds, fmt.Errorf("unmarshal credentials: %w", err)
	}
	return creds, nil
}
