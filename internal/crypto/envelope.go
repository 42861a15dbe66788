// Package crypto implements the secret-at-rest encryption envelope used
// to store gateway API keys (spec section 6.5):
//
//	v1:{base64(iv-12B)}:{base64(ciphertext+tag)}
//
// AES-256-GCM, key derived from the process secret via PBKDF2-SHA256 with
// 100,000 iterations and a constant salt.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/wa-agent/backend/internal/ports"
)

const (
	envelopeVersion = "v1"
	pbkdf2Salt      = "wa-agent-salt"
	pbkdf2Iters     = 100_000
	keyLenBytes     = 32 // AES-256
	nonceLenBytes   = 12
)

// Envelope implements ports.Crypto with a process-wide derived key.
type Envelope struct {
	key []byte
}

var _ ports.Crypto = (*Envelope)(nil)

// New derives the AES-256 key from processSecret and constructs an
// Envelope. processSecret is the ENCRYPTION_KEY configuration value.
func New(processSecret string) (*Envelope, error) {
	if processSecret == "" {
		return nil, errors.New("encryption key must not be empty")
	}
	key := pbkdf2.Key([]byte(processSecret), []byte(pbkdf2Salt), pbkdf2Iters, keyLenBytes, sha256.New)
	return &Envelope{key: key}, nil
}

// Encrypt seals plaintext into the v1 envelope format.
func (e *Envelope) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm: %w", err)
	}

	nonce := make([]byte, nonceLenBytes)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	return fmt.Sprintf("%s:%s:%s",
		envelopeVersion,
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(ciphertext),
	), nil
}

// Decrypt opens a v1 envelope back into plaintext.
func (e *Envelope) Decrypt(envelope string) (string, error) {
	parts := strings.SplitN(envelope, ":", 3)
	if len(parts) != 3 || parts[0] != envelopeVersion {
		return "", errors.New("unrecognized envelope format")
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("gcm: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return "", errors.New("invalid nonce length")
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
