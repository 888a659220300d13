package secret

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	return key
}

func TestNewCipher(t *testing.T) {
	testCases := []struct {
		name    string
		keyLen  int
		wantErr error
	}{
		{name: "valid 32 byte key", keyLen: 32},
		{name: "short key", keyLen: 16, wantErr: ErrBadKeyLength},
		{name: "long key", keyLen: 64, wantErr: ErrBadKeyLength},
		{name: "empty key", keyLen: 0, wantErr: ErrBadKeyLength},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewCipher(make([]byte, tc.keyLen))

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, c)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, c)
			}
		})
	}
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	testCases := []struct {
		name      string
		plaintext string
	}{
		{name: "simple value", plaintext: "abc123"},
		{name: "empty string", plaintext: ""},
		{name: "utf-8", plaintext: "数据库密码 πß✓"},
		{name: "newlines and equals", plaintext: "a=b\nc=d"},
		{name: "long value", plaintext: string(make([]byte, 4096))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := c.Encrypt(tc.plaintext)
			require.NoError(t, err)
			assert.NotEmpty(t, token)

			plain, err := c.Decrypt(token)
			require.NoError(t, err)
			assert.Equal(t, tc.plaintext, plain)
		})
	}
}

func TestCipherNonceFreshness(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	// the same plaintext must never produce the same token twice
	t1, err := c.Encrypt("same value")
	require.NoError(t, err)
	t2, err := c.Encrypt("same value")
	require.NoError(t, err)

	assert.NotEqual(t, t1, t2)

	p1, err := c.Decrypt(t1)
	require.NoError(t, err)
	p2, err := c.Decrypt(t2)
	require.NoError(t, err)

	assert.Equal(t, "same value", p1)
	assert.Equal(t, "same value", p2)
}

func TestCipherTokenLayout(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	token, err := c.Encrypt("layout")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)

	// nonce(12) + tag(16) + ciphertext
	assert.Len(t, raw, nonceLen+tagLen+len("layout"))
}

func TestCipherTamperDetection(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	token, err := c.Encrypt("do not touch")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)

	// flipping any single byte must fail authentication, never return a
	// wrong-but-plausible plaintext
	for i := range raw {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01

		_, err := c.Decrypt(base64.StdEncoding.EncodeToString(tampered))
		assert.ErrorIs(t, err, ErrDecryptFailed, "byte %d", i)
	}
}

func TestCipherDecryptMalformed(t *testing.T) {
	c, err := NewCipher(testKey(t))
	require.NoError(t, err)

	testCases := []struct {
		name  string
		token string
	}{
		{name: "not base64", token: "%%%not-base64%%%"},
		{name: "empty token", token: ""},
		{name: "too short", token: base64.StdEncoding.EncodeToString([]byte("short"))},
		{name: "nonce and tag only", token: base64.StdEncoding.EncodeToString(make([]byte, nonceLen+tagLen-1))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			plain, err := c.Decrypt(tc.token)
			require.ErrorIs(t, err, ErrDecryptFailed)
			assert.Empty(t, plain)
		})
	}
}

func TestCipherWrongKey(t *testing.T) {
	c1, err := NewCipher(testKey(t))
	require.NoError(t, err)
	c2, err := NewCipher(testKey(t))
	require.NoError(t, err)

	token, err := c1.Encrypt("secret")
	require.NoError(t, err)

	_, err = c2.Decrypt(token)
	require.ErrorIs(t, err, ErrDecryptFailed)
}
