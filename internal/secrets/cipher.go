package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

// Supported algorithms.
const (
	AlgorithmAESGCM            = "aes-256-gcm"
	AlgorithmXChaCha20Poly1305 = "xchacha20-poly1305"
)

// KeySize is the length of the symmetric key in bytes.
const KeySize = 32

// additionalData binds ciphertexts to their purpose.
var additionalData = []byte("github-token")

// Envelope is the on-disk (and mirrored) form of an encrypted secret. All byte
// fields are hex encoded.
type Envelope struct {
	Algorithm  string    `json:"algorithm"`
	Nonce      string    `json:"nonce"`
	Ciphertext string    `json:"ciphertext"`
	Tag        string    `json:"tag"`
	CreatedAt  time.Time `json:"createdAt"`
}

func newAEAD(algorithm string, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	switch algorithm {
	case AlgorithmAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case AlgorithmXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}
}

// Encrypt seals plaintext with a fresh random nonce.
func Encrypt(algorithm string, key, plaintext []byte) (*Envelope, error) {
	aead, err := newAEAD(algorithm, key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, additionalData)
	split := len(sealed) - aead.Overhead()

	return &Envelope{
		Algorithm:  algorithm,
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(sealed[:split]),
		Tag:        hex.EncodeToString(sealed[split:]),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Decrypt opens an envelope. Any tampering yields ErrIntegrity.
func Decrypt(key []byte, env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, errors.New("nil envelope")
	}
	aead, err := newAEAD(env.Algorithm, key)
	if err != nil {
		return nil, err
	}

	nonce, err := hex.DecodeString(env.Nonce)
	if err != nil || len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: malformed nonce", ErrIntegrity)
	}
	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed ciphertext", ErrIntegrity)
	}
	tag, err := hex.DecodeString(env.Tag)
	if err != nil || len(tag) != aead.Overhead() {
		return nil, fmt.Errorf("%w: malformed tag", ErrIntegrity)
	}

	plaintext, err := aead.Open(nil, nonce, append(ciphertext, tag...), additionalData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	return plaintext, nil
}

// NewKey returns a random key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}
