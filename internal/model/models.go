package model

import "time"

// Account is the per-participant ledger entry. Exactly one exists per owner
// identity, created on first use and never deleted.
type Account struct {
	Owner             string // Verified caller identity (opaque to the ledger)
	TokenBalance      uint64 // Spendable credits; never negative, never wraps
	DocumentsUploaded uint64 // Running counter; next expected document index
	QueriesMade       uint64 // Running counter; next expected query index
	ReputationScore   uint64 // Reserved; written once at creation, never updated
	CreatedAt         time.Time
}

// DocumentRecord is created once per (Owner, Index) when a document upload
// commits. Only AccessLevel is mutable after creation.
type DocumentRecord struct {
	Owner           string
	Index           uint64 // Position in the owner's upload sequence
	ContentHash     string // Content address (SHA-256) of the uploaded file
	UploadTimestamp time.Time
	TokenCost       uint64
	AccessLevel     uint8
	DownloadCount   uint64 // Reserved; not mutated by any transition
	IsActive        bool
}

// QueryRecord is created once per (User, Index) when a chat query commits.
// Immutable after creation.
type QueryRecord struct {
	User        string
	Index       uint64
	QueryText   string
	Timestamp   time.Time
	TokensSpent uint64
}

// QuizRecord is keyed by (Creator, CreatedAt) where CreatedAt is the
// caller-supplied timestamp, so creation is idempotent per timestamp.
type QuizRecord struct {
	Creator      string
	DocumentHash string // Content hash of the source document
	CreatedAt    time.Time
	TokensSpent  uint64
	IsPublic     bool
}

// StakeRecord is keyed by (User, StakedAt). Created on stake; on unstake the
// amount returns to the balance and IsActive flips to false. Records are
// never deleted.
type StakeRecord struct {
	User     string
	Amount   uint64
	StakedAt time.Time
	IsActive bool
}

// ActivityEntry is an immutable audit row appended in the same transaction as
// every committed state transition.
type ActivityEntry struct {
	ID         string // UUID
	Owner      string
	Transition string // e.g. "upload_document"
	Detail     string // Human-readable parameters
	CreatedAt  time.Time
}
