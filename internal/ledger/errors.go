package ledger

import "errors"

// Validation errors. Every transition rejects with exactly one of these (or a
// wrapped storage error) before any state is touched; a rejected transition
// has no observable effect.
var (
	ErrInsufficientTokens      = errors.New("insufficient tokens to perform this action")
	ErrNotDocumentOwner        = errors.New("caller is not the owner of this document")
	ErrInsufficientStakeAmount = errors.New("stake amount is below the minimum")
	ErrStakeCooldownActive     = errors.New("stake cooldown period is still active")
	ErrInvalidDocumentIndex    = errors.New("invalid document index")
	ErrInvalidQueryIndex       = errors.New("invalid query index")
	ErrNotStakeOwner           = errors.New("caller is not the owner of this stake record")
	ErrArithmeticOverflow      = errors.New("arithmetic overflow")
)

// Storage-level errors surfaced by transitions that reference entities which
// do not exist (or exist in a spent state).
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrDocumentNotFound = errors.New("document record not found")
	ErrStakeNotFound    = errors.New("stake record not found")
	ErrStakeNotActive   = errors.New("stake record is already spent")
	ErrRecordExists     = errors.New("record already exists at this key")
)
