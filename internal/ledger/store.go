package ledger

import (
	"time"

	"socratic-go/internal/model"
)

// Store provides keyed storage for accounts and the four record kinds.
//
// Find methods return (nil, nil) when no entity exists at the key. The
// Spend*/Refund* methods commit a balance mutation together with its record
// mutation and an activity entry in a single transaction: either everything
// below the call commits or nothing does. The caller (TokenService) is
// responsible for validation and for serializing calls that touch the same
// account.
type Store interface {
	// Account operations

	// FindAccount returns the account for owner, or nil if none exists.
	FindAccount(owner string) (*model.Account, error)

	// CreateAccountIfAbsent inserts the account and its activity entry
	// unless an account already exists for the same owner, in which case the
	// existing account is returned unchanged (created=false) and the entry
	// is discarded. Idempotent: replaying initialization never resets state.
	CreateAccountIfAbsent(account *model.Account, entry *model.ActivityEntry) (acct *model.Account, created bool, err error)

	// UpdateAccount persists the account's mutable fields and appends the
	// activity entry in the same transaction.
	UpdateAccount(account *model.Account, entry *model.ActivityEntry) error

	// Document operations

	FindDocument(owner string, index uint64) (*model.DocumentRecord, error)
	ListDocuments(owner string) ([]*model.DocumentRecord, error)

	// SpendAndCreateDocument persists the debited account, inserts the
	// document record, and appends the activity entry atomically.
	SpendAndCreateDocument(account *model.Account, doc *model.DocumentRecord, entry *model.ActivityEntry) error

	// SpendAndUpdateDocumentAccess persists the debited account and the
	// document's new access level atomically.
	SpendAndUpdateDocumentAccess(account *model.Account, doc *model.DocumentRecord, entry *model.ActivityEntry) error

	// Query operations

	FindQuery(user string, index uint64) (*model.QueryRecord, error)
	ListQueries(user string) ([]*model.QueryRecord, error)
	SpendAndCreateQuery(account *model.Account, query *model.QueryRecord, entry *model.ActivityEntry) error

	// Quiz operations

	FindQuiz(creator string, createdAt time.Time) (*model.QuizRecord, error)
	ListQuizzes(creator string) ([]*model.QuizRecord, error)
	SpendAndCreateQuiz(account *model.Account, quiz *model.QuizRecord, entry *model.ActivityEntry) error

	// Stake operations

	FindStake(user string, stakedAt time.Time) (*model.StakeRecord, error)
	ListStakes(user string) ([]*model.StakeRecord, error)

	// SpendAndCreateStake inserts the stake record and persists the debited
	// account atomically. Returns ErrRecordExists (and mutates nothing) if a
	// stake already exists at (user, stakedAt).
	SpendAndCreateStake(account *model.Account, stake *model.StakeRecord, entry *model.ActivityEntry) error

	// RefundAndDeactivateStake persists the credited account and flips the
	// stake record to inactive atomically.
	RefundAndDeactivateStake(account *model.Account, stake *model.StakeRecord, entry *model.ActivityEntry) error

	// Activity operations

	// ListActivity returns the owner's activity entries, newest first.
	ListActivity(owner string) ([]*model.ActivityEntry, error)

	// Close closes the underlying storage.
	Close() error
}
