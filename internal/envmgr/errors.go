package envmgr

import "errors"

var (
	// ErrKeyInvalid is returned when a setting key is empty or contains
	// characters outside [A-Za-z0-9_].
	ErrKeyInvalid = errors.New("setting key must match [A-Za-z0-9_]+")

	// ErrKeyLost is returned by Reconcile when key material is present but
	// every stored ciphertext fails authentication. This indicates the
	// encryption key was lost or replaced; it must never be repaired by
	// silently re-encrypting with the current key.
	ErrKeyLost = errors.New("all stored values fail decryption, encryption key lost or corrupt")
)
