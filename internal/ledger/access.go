package ledger

import "socratic-go/internal/model"

// Authorization predicates. The caller identity is supplied already verified
// by the external identity provider; the ledger only compares it against the
// owner recorded on the entity.

// IsAccountOwner reports whether caller owns the account.
func IsAccountOwner(caller string, account *model.Account) bool {
	return account != nil && account.Owner == caller
}

// IsDocumentOwner reports whether caller owns the document record.
func IsDocumentOwner(caller string, doc *model.DocumentRecord) bool {
	return doc != nil && doc.Owner == caller
}

// IsStakeOwner reports whether caller owns the stake record.
func IsStakeOwner(caller string, stake *model.StakeRecord) bool {
	return stake != nil && stake.User == caller
}
