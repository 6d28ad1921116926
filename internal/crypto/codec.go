// Package crypto implements the payload codec used on both sides of the
// relay: AES-256-CBC with a PBKDF2-derived key, PKCS#7 padding, and a fresh
// random IV prepended to every ciphertext.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Codec errors.
var (
	// ErrInvalidKeyMaterial is returned when the codec is constructed with an
	// empty passphrase or salt.
	ErrInvalidKeyMaterial = errors.New("invalid key material")

	// ErrEncryptionFailed is returned when encryption cannot complete, e.g.
	// the platform entropy source fails.
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrDecryptionFailed wraps every decryption failure: empty or
	// non-base64 input, truncated ciphertext, and wrong-key padding errors.
	ErrDecryptionFailed = errors.New("decryption failed")
)

const (
	// pbkdf2Iterations matches the key derivation cost on the peer side;
	// both parties must derive the identical key from the shared material.
	pbkdf2Iterations = 65536

	// keyLength is 32 bytes for AES-256.
	keyLength = 32
)

// Codec encrypts and decrypts relay payloads. The key is derived once at
// construction; the codec itself is stateless and safe for concurrent use.
type Codec struct {
	key []byte
}

// NewCodec derives the AES key from the configured passphrase and salt using
// PBKDF2-HMAC-SHA256. Both inputs are required; neither is retained.
func NewCodec(passphrase, salt string) (*Codec, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: empty passphrase", ErrInvalidKeyMaterial)
	}
	if salt == "" {
		return nil, fmt.Errorf("%w: empty salt", ErrInvalidKeyMaterial)
	}

	key := pbkdf2.Key([]byte(passphrase), []byte(salt), pbkdf2Iterations, keyLength, sha256.New)
	return &Codec{key: key}, nil
}

// String keeps the derived key out of accidental %v/%+v log output.
func (c *Codec) String() string {
	return "crypto.Codec(aes-256-cbc)"
}

// Encrypt encrypts plaintext and returns base64(IV || ciphertext). A fresh
// random IV is drawn per call, so encrypting the same plaintext twice yields
// different outputs.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("%w: reading random IV: %v", ErrEncryptionFailed, err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, len(iv)+len(ciphertext))
	out = append(out, iv...)
	out = append(out, ciphertext...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. All malformed inputs and key mismatches surface
// as ErrDecryptionFailed with a cause suffix; no partial plaintext is ever
// returned.
func (c *Codec) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", fmt.Errorf("%w: empty input", ErrDecryptionFailed)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: input is not valid base64", ErrDecryptionFailed)
	}

	if len(raw) < aes.BlockSize {
		return "", fmt.Errorf("%w: input shorter than one initialization vector", ErrDecryptionFailed)
	}

	iv := raw[:aes.BlockSize]
	ciphertext := raw[aes.BlockSize:]

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length is not a multiple of the block size", ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		// Wrong key or salt lands here: CBC decryption with a mismatched key
		// produces garbage padding.
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(unpadded), nil
}

// pkcs7Pad appends 1..blockSize bytes, each holding the pad length.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

// pkcs7Unpad strips the padding, validating every pad byte.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}

	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize {
		return nil, errors.New("invalid padding length")
	}

	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding byte")
		}
	}

	return data[:len(data)-padLen], nil
}
