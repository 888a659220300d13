package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
)

const (
	nonceLen = 12
	tagLen   = 16
)

// Cipher encrypts and decrypts individual setting values with AES-256-GCM.
// Token layout is base64(nonce ∥ tag ∥ ciphertext); the tag sits between
// nonce and ciphertext so tokens written by earlier deployments of the
// console stay decryptable.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, ErrBadKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "create aes cipher")
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "create gcm")
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce. Encrypting the same
// plaintext twice yields two different tokens.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "generate nonce")
	}

	// Seal returns ciphertext ∥ tag; rearrange to nonce ∥ tag ∥ ciphertext.
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]

	token := make([]byte, 0, nonceLen+tagLen+len(ct))
	token = append(token, nonce...)
	token = append(token, tag...)
	token = append(token, ct...)

	return base64.StdEncoding.EncodeToString(token), nil
}

// Decrypt opens a token produced by Encrypt. Any failure (bad base64, short
// input, authentication mismatch) yields ErrDecryptFailed; it never panics,
// as it sits on the read path of every listing.
func (c *Cipher) Decrypt(token string) (string, error) {
	buf, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", ErrDecryptFailed
	}

	if len(buf) < nonceLen+tagLen {
		return "", ErrDecryptFailed
	}

	nonce := buf[:nonceLen]
	tag := buf[nonceLen : nonceLen+tagLen]
	ct := buf[nonceLen+tagLen:]

	sealed := make([]byte, 0, len(ct)+tagLen)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}

	return string(plain), nil
}
