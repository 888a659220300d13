package secret

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// KeyEnv is the environment variable carrying the key as 64 hex characters.
	KeyEnv = "ENV_SECRET_KEY"

	keyLen = 32
)

// Custodian resolves the symmetric encryption key. Resolution order: KeyEnv
// (hex), then the key file (raw bytes), then generate-and-persist. The result
// is cached for the process lifetime. A key file that exists but is invalid
// is a hard error, never a trigger to regenerate: regenerating would make
// every stored ciphertext undecryptable.
type Custodian struct {
	keyFile string

	once sync.Once
	key  []byte
	err  error
}

// NewCustodian creates a Custodian persisting generated keys at keyFile.
func NewCustodian(keyFile string) *Custodian {
	return &Custodian{keyFile: keyFile}
}

// ResolveKey returns the 32-byte encryption key, resolving it on first call.
func (c *Custodian) ResolveKey() ([]byte, error) {
	c.once.Do(func() {
		c.key, c.err = c.resolve()
	})

	return c.key, c.err
}

func (c *Custodian) resolve() ([]byte, error) {
	if hexKey := os.Getenv(KeyEnv); hexKey != "" {
		key, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, errors.Wrap(err, "decode "+KeyEnv)
		}

		if len(key) != keyLen {
			return nil, ErrBadKeyLength
		}

		return key, nil
	}

	raw, err := os.ReadFile(c.keyFile)
	if err == nil {
		if len(raw) != keyLen {
			return nil, errors.Wrap(ErrBadKeyLength, "key file "+c.keyFile)
		}

		return raw, nil
	}

	if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "read key file")
	}

	// no key anywhere: generate once and persist before use
	key := make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "generate encryption key")
	}

	// 0600: the key file must never be world readable
	if err := os.WriteFile(c.keyFile, key, 0o600); err != nil {
		return nil, errors.Wrap(err, "persist encryption key")
	}

	log.Info().Str("file", c.keyFile).Msg("generated new encryption key")

	return key, nil
}
