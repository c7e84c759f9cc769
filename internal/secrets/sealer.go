// Package secrets encrypts connector credentials at rest. Account records
// persisted by the registry carry provider credentials that must never be
// written in the clear; the sealer wraps them with PBKDF2-derived
// AES-256-GCM so the registry files stay safe to back up.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the sealed-blob JSON schema version.
	currentVersion = 1
)

// sealedJSON is the serialized form of a sealed credential.
type sealedJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// Sealer encrypts and decrypts small secrets with a passphrase-derived key.
type Sealer struct {
	passphrase string
}

// NewSealer creates a Sealer. The passphrase must not be empty.
func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("secrets: passphrase must not be empty")
	}
	return &Sealer{passphrase: passphrase}, nil
}

// Seal encrypts the plaintext and returns a self-describing JSON blob.
func (s *Sealer) Seal(plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("secrets: generating salt: %w", err)
	}

	gcm, err := s.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	blob, err := json.Marshal(sealedJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return "", fmt.Errorf("secrets: marshal sealed blob: %w", err)
	}
	return string(blob), nil
}

// Open decrypts a blob produced by Seal.
func (s *Sealer) Open(blob string) (string, error) {
	var sealed sealedJSON
	if err := json.Unmarshal([]byte(blob), &sealed); err != nil {
		return "", fmt.Errorf("secrets: parse sealed blob: %w", err)
	}
	if sealed.Version != currentVersion {
		return "", fmt.Errorf("secrets: unsupported blob version %d", sealed.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(sealed.Salt)
	if err != nil {
		return "", fmt.Errorf("secrets: decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
	if err != nil {
		return "", fmt.Errorf("secrets: decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("secrets: decode ciphertext: %w", err)
	}

	gcm, err := s.aead(salt)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", errors.New("secrets: nonce length mismatch")
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt: %w", err)
	}
	return string(plaintext), nil
}

func (s *Sealer) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(s.passphrase), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: new gcm: %w", err)
	}
	return gcm, nil
}
