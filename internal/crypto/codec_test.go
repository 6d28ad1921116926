package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()

	codec, err := NewCodec("test-passphrase", "test-salt")
	require.NoError(t, err)
	return codec
}

func TestNewCodec(t *testing.T) {
	t.Run("rejects empty passphrase", func(t *testing.T) {
		_, err := NewCodec("", "salt")
		assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
	})

	t.Run("rejects empty salt", func(t *testing.T) {
		_, err := NewCodec("passphrase", "")
		assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
	})

	t.Run("string form hides key material", func(t *testing.T) {
		codec := newTestCodec(t)
		assert.NotContains(t, codec.String(), "test-passphrase")
	})
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "empty", plaintext: ""},
		{name: "single byte", plaintext: "a"},
		{name: "short text", plaintext: "hello"},
		{name: "exactly one block", plaintext: "0123456789abcdef"},
		{name: "multi block", plaintext: strings.Repeat("relay payload ", 1000)},
		{name: "unicode", plaintext: "患者主訴: 頭痛と発熱 — führt zu Diagnose 🧪"},
		{name: "json payload", plaintext: `{"patientText":"chest pain radiating to left arm","age":58}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := codec.Encrypt(tt.plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, tt.plaintext, encrypted)

			decrypted, err := codec.Decrypt(encrypted)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, decrypted)
		})
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	codec := newTestCodec(t)

	first, err := codec.Encrypt("same plaintext")
	require.NoError(t, err)
	second, err := codec.Encrypt("same plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	// Both still round-trip to the identical plaintext.
	p1, err := codec.Decrypt(first)
	require.NoError(t, err)
	p2, err := codec.Decrypt(second)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestEncryptOutputShape(t *testing.T) {
	codec := newTestCodec(t)

	encrypted, err := codec.Encrypt("hello")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encrypted)
	require.NoError(t, err)

	// IV plus at least one ciphertext block, block-aligned.
	assert.GreaterOrEqual(t, len(raw), 32)
	assert.Equal(t, 0, len(raw)%16)
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	codec := newTestCodec(t)

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty input", input: ""},
		{name: "not base64", input: "%%%not-base64%%%"},
		{name: "five byte ciphertext", input: base64.StdEncoding.EncodeToString([]byte("12345"))},
		{name: "iv only, no ciphertext", input: base64.StdEncoding.EncodeToString(make([]byte, 16))},
		{name: "not block aligned", input: base64.StdEncoding.EncodeToString(make([]byte, 17))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decrypt(tt.input)
			assert.ErrorIs(t, err, ErrDecryptionFailed)
		})
	}
}

func TestDecryptWithWrongKeyMaterial(t *testing.T) {
	codec := newTestCodec(t)

	encrypted, err := codec.Encrypt("confidential analysis request")
	require.NoError(t, err)

	t.Run("wrong passphrase", func(t *testing.T) {
		other, err := NewCodec("different-passphrase", "test-salt")
		require.NoError(t, err)

		plaintext, err := other.Decrypt(encrypted)
		if err == nil {
			// A mismatched key can decrypt into accidentally valid padding;
			// the output is still never the original plaintext.
			assert.NotEqual(t, "confidential analysis request", plaintext)
		} else {
			assert.ErrorIs(t, err, ErrDecryptionFailed)
		}
	})

	t.Run("wrong salt", func(t *testing.T) {
		other, err := NewCodec("test-passphrase", "different-salt")
		require.NoError(t, err)

		plaintext, err := other.Decrypt(encrypted)
		if err == nil {
			assert.NotEqual(t, "confidential analysis request", plaintext)
		} else {
			assert.ErrorIs(t, err, ErrDecryptionFailed)
		}
	})

	t.Run("matching material decrypts", func(t *testing.T) {
		twin, err := NewCodec("test-passphrase", "test-salt")
		require.NoError(t, err)

		plaintext, err := twin.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, "confidential analysis request", plaintext)
	})
}

func TestCodecIsConcurrencySafe(t *testing.T) {
	codec := newTestCodec(t)

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			encrypted, err := codec.Encrypt("parallel payload")
			if err != nil {
				done <- err
				return
			}
			decrypted, err := codec.Decrypt(encrypted)
			if err != nil {
				done <- err
				return
			}
			if decrypted != "parallel payload" {
				done <- assert.AnError
				return
			}
			done <- nil
		}()
	}

	for i := 0; i < 20; i++ {
		assert.NoError(t, <-done)
	}
}
