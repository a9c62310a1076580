package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"socratic-go/internal/content"
	"socratic-go/internal/encryption"
	"socratic-go/internal/ledger"
	"socratic-go/internal/payment"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() ledger.Encryptor {
	return encryption.NewTestEncryptor()
}

// NewTestContentStore creates a new in-memory content store for testing.
func NewTestContentStore() ledger.ContentStore {
	return content.NewMemoryStore()
}

// NewTestRail creates an in-memory payment rail that records transfers.
func NewTestRail() *payment.MemoryRail {
	return payment.NewMemoryRail()
}

// FailingRail is a payment rail whose Transfer always returns Err.
type FailingRail struct {
	Err error
}

func (r *FailingRail) Transfer(_ context.Context, _, _ string, _ uint64) error {
	return r.Err
}

// SHA256Hex returns the SHA-256 checksum of data as a lowercase hex string.
// Matches the content hash format used by uploads.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
