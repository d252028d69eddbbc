package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrDecryption indicates malformed, truncated or tampered ciphertext. No
// partial plaintext is ever returned alongside it.
var ErrDecryption = errors.New("secret: decryption failed")

const (
	kdfTime    uint32 = 3
	kdfMemory  uint32 = 64 * 1024
	kdfThreads uint8  = 2
	kdfKeyLen  uint32 = 32
)

// Cipher encrypts and decrypts short secret strings with AES-256-GCM. The key
// is derived once at construction and reused for every call.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives an AES-256 key from (secret, salt) with argon2id and
// prepares the AEAD. Salt strength is validated by config at startup.
func NewCipher(secret, salt string) (*Cipher, error) {
	if secret == "" || salt == "" {
		return nil, fmt.Errorf("secret and salt are required")
	}
	key := argon2.IDKey([]byte(secret), []byte(salt), kdfTime, kdfMemory, kdfThreads, kdfKeyLen)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals one plaintext value. The output is
// base64url(iv) "." base64url(tag) "." base64url(ciphertext); Decrypt depends
// on exactly this layout.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if c == nil || c.aead == nil {
		return "", fmt.Errorf("cipher is not configured")
	}

	// GCM requires a unique nonce per encryption under the same key.
	iv := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("read iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	tagOffset := len(sealed) - c.aead.Overhead()
	data, tag := sealed[:tagOffset], sealed[tagOffset:]

	enc := base64.RawURLEncoding
	return enc.EncodeToString(iv) + "." + enc.EncodeToString(tag) + "." + enc.EncodeToString(data), nil
}

// Decrypt opens a value produced by Encrypt. Any parse or authentication
// failure yields ErrDecryption.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if c == nil || c.aead == nil {
		return "", fmt.Errorf("cipher is not configured")
	}

	parts := strings.Split(ciphertext, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: want iv.tag.data", ErrDecryption)
	}

	enc := base64.RawURLEncoding
	iv, err := enc.DecodeString(parts[0])
	if err != nil || len(iv) != c.aead.NonceSize() {
		return "", fmt.Errorf("%w: bad iv", ErrDecryption)
	}
	tag, err := enc.DecodeString(parts[1])
	if err != nil || len(tag) != c.aead.Overhead() {
		return "", fmt.Errorf("%w: bad tag", ErrDecryption)
	}
	data, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad data", ErrDecryption)
	}

	plaintext, err := c.aead.Open(nil, iv, append(data, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plaintext), nil
}
