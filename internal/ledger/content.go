package ledger

import "io"

// ContentStore holds uploaded document blobs addressed by content hash.
// All operations stream through io.Reader/io.Writer so large files never
// need to be held in memory. The ledger core never reads blob contents; it
// records only the hash.
type ContentStore interface {
	// PutContent stores content identified by its checksum.
	// Idempotent: storing the same checksum multiple times is safe.
	// size is the number of bytes that will be read from r.
	PutContent(checksum string, r io.Reader, size int64) error

	// GetContent retrieves content by checksum and writes it to w.
	GetContent(checksum string, w io.Writer) error

	// ValidateSetup verifies that the store is accessible and configured.
	ValidateSetup() error
}

// Encryptor encrypts document content before it reaches the ContentStore and
// unlocks decryption for download sessions.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `socratic keys init`.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	// Uses the public key only — no passphrase required.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase and returns a
	// DecryptionContext valid for the session.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist at configured paths.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for the duration
// of a download session. Created by Encryptor.Unlock.
type DecryptionContext interface {
	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
