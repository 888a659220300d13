package secret

import (
	"errors"
)

var (
	// ErrBadKeyLength is returned when supplied key material is not exactly 32 bytes.
	ErrBadKeyLength = errors.New("encryption key must be 32 bytes")
	// ErrDecryptFailed is returned for any malformed, truncated or tampered token.
	// Callers mask it externally but must keep it distinguishable from a
	// legitimately empty value.
	ErrDecryptFailed = errors.New("failed to decrypt value")
)
