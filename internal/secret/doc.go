// Package secret owns the symmetric key material and the authenticated
// encryption of runtime configuration values. The Custodian resolves the
// 32-byte key exactly once per process; the Cipher turns plaintext values
// into self-contained base64 tokens safe for a text column.
package secret
