package ledger

import (
	"context"
	"fmt"
	"time"

	"socratic-go/internal/model"
)

// TokenService is the transaction processor: for each transition kind it
// validates preconditions against the store, the fee schedule and the access
// predicates, then applies the mutation atomically through a single store
// call. A rejected transition leaves every entity unchanged.
//
// Validations run in the order the transition defines them, so the first
// failing condition determines the reported error.
type TokenService struct {
	store    Store
	rail     PaymentRail
	fees     FeeSchedule
	treasury string
	clock    Clock
	idgen    IDGenerator
	logger   Logger
	locks    *ownerLocks
}

// NewTokenService creates a TokenService with the provided dependencies.
// treasury is the external identity that receives currency on purchases.
func NewTokenService(store Store, rail PaymentRail, fees FeeSchedule, treasury string, clock Clock, idgen IDGenerator, logger Logger) *TokenService {
	return &TokenService{
		store:    store,
		rail:     rail,
		fees:     fees,
		treasury: treasury,
		clock:    clock,
		idgen:    idgen,
		logger:   logger,
		locks:    newOwnerLocks(),
	}
}

// Fees returns the fee schedule the service was constructed with.
func (s *TokenService) Fees() FeeSchedule { return s.fees }

// Clock returns the clock the service was constructed with, so callers that
// default a timestamp use the same time source as the transitions.
func (s *TokenService) Clock() Clock { return s.clock }

// entry builds an activity row for a committed transition.
func (s *TokenService) entry(owner, transition, detail string) *model.ActivityEntry {
	return &model.ActivityEntry{
		ID:         s.idgen.New(),
		Owner:      owner,
		Transition: transition,
		Detail:     detail,
		CreatedAt:  s.clock.Now(),
	}
}

// account loads the caller's account, translating absence into
// ErrAccountNotFound.
func (s *TokenService) account(owner string) (*model.Account, error) {
	acct, err := s.store.FindAccount(owner)
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	return acct, nil
}

// InitializeUser creates the caller's account with a zero balance and zero
// counters. Idempotent: if the account already exists it is returned
// untouched — balance and counters are never reset on replay.
func (s *TokenService) InitializeUser(caller string) (*model.Account, error) {
	release := s.locks.Acquire(caller)
	defer release()

	acct := &model.Account{
		Owner:     caller,
		CreatedAt: s.clock.Now(),
	}

	acct, created, err := s.store.CreateAccountIfAbsent(acct, s.entry(caller, "initialize_user", "account created"))
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}

	if created {
		s.logger.Info("account initialized", "owner", caller)
	}
	return acct, nil
}

// UploadDocument debits the upload fee and creates the document record at the
// caller's next document index. index must equal the account's current
// documents_uploaded counter; out-of-order or replayed indexes are rejected
// before any billing happens.
func (s *TokenService) UploadDocument(caller string, index uint64, contentHash string, accessLevel uint8) (*model.Account, *model.DocumentRecord, error) {
	release := s.locks.Acquire(caller)
	defer release()

	acct, err := s.account(caller)
	if err != nil {
		return nil, nil, err
	}

	if index != acct.DocumentsUploaded {
		return nil, nil, ErrInvalidDocumentIndex
	}
	if acct.TokenBalance < s.fees.UploadDocumentCost {
		return nil, nil, ErrInsufficientTokens
	}

	newBalance, err := checkedSub(acct.TokenBalance, s.fees.UploadDocumentCost)
	if err != nil {
		return nil, nil, err
	}
	newCount, err := checkedAdd(acct.DocumentsUploaded, 1)
	if err != nil {
		return nil, nil, err
	}

	acct.TokenBalance = newBalance
	acct.DocumentsUploaded = newCount

	doc := &model.DocumentRecord{
		Owner:           caller,
		Index:           index,
		ContentHash:     contentHash,
		UploadTimestamp: s.clock.Now(),
		TokenCost:       s.fees.UploadDocumentCost,
		AccessLevel:     accessLevel,
		IsActive:        true,
	}

	entry := s.entry(caller, "upload_document", fmt.Sprintf("index=%d hash=%s cost=%d", index, contentHash, doc.TokenCost))
	if err := s.store.SpendAndCreateDocument(acct, doc, entry); err != nil {
		return nil, nil, fmt.Errorf("committing document upload: %w", err)
	}

	s.logger.Info("document uploaded", "owner", caller, "index", index, "hash", contentHash)
	return acct, doc, nil
}

// ChatQuery debits the query fee and creates the query record at the caller's
// next query index.
func (s *TokenService) ChatQuery(caller string, index uint64, queryText string) (*model.Account, *model.QueryRecord, error) {
	release := s.locks.Acquire(caller)
	defer release()

	acct, err := s.account(caller)
	if err != nil {
		return nil, nil, err
	}

	if index != acct.QueriesMade {
		return nil, nil, ErrInvalidQueryIndex
	}
	if acct.TokenBalance < s.fees.ChatQueryCost {
		return nil, nil, ErrInsufficientTokens
	}

	newBalance, err := checkedSub(acct.TokenBalance, s.fees.ChatQueryCost)
	if err != nil {
		return nil, nil, err
	}
	newCount, err := checkedAdd(acct.QueriesMade, 1)
	if err != nil {
		return nil, nil, err
	}

	acct.TokenBalance = newBalance
	acct.QueriesMade = newCount

	query := &model.QueryRecord{
		User:        caller,
		Index:       index,
		QueryText:   queryText,
		Timestamp:   s.clock.Now(),
		TokensSpent: s.fees.ChatQueryCost,
	}

	entry := s.entry(caller, "chat_query", fmt.Sprintf("index=%d cost=%d", index, query.TokensSpent))
	if err := s.store.SpendAndCreateQuery(acct, query, entry); err != nil {
		return nil, nil, fmt.Errorf("committing chat query: %w", err)
	}

	s.logger.Info("query recorded", "owner", caller, "index", index)
	return acct, query, nil
}

// PurchaseTokens transfers currency to the treasury over the payment rail and
// mints credits at the configured exchange rate. Both the multiplication and
// the balance addition are overflow-checked before the rail is invoked, so a
// purchase that cannot be applied never moves money.
func (s *TokenService) PurchaseTokens(ctx context.Context, caller string, amountCurrency uint64) (*model.Account, error) {
	release := s.locks.Acquire(caller)
	defer release()

	acct, err := s.account(caller)
	if err != nil {
		return nil, err
	}

	minted, err := checkedMul(amountCurrency, s.fees.TokenExchangeRate)
	if err != nil {
		return nil, err
	}
	newBalance, err := checkedAdd(acct.TokenBalance, minted)
	if err != nil {
		return nil, err
	}

	if err := s.rail.Transfer(ctx, caller, s.treasury, amountCurrency); err != nil {
		return nil, fmt.Errorf("payment rail transfer: %w", err)
	}

	acct.TokenBalance = newBalance

	entry := s.entry(caller, "purchase_tokens", fmt.Sprintf("currency=%d minted=%d", amountCurrency, minted))
	if err := s.store.UpdateAccount(acct, entry); err != nil {
		return nil, fmt.Errorf("committing token purchase: %w", err)
	}

	s.logger.Info("tokens purchased", "owner", caller, "minted", minted)
	return acct, nil
}

// ShareDocument debits the share fee from the caller and updates the access
// level of the document at (owner, index). Only the recorded document owner
// may change its access level.
func (s *TokenService) ShareDocument(caller string, owner string, index uint64, newAccessLevel uint8) (*model.Account, *model.DocumentRecord, error) {
	release := s.locks.Acquire(caller, owner)
	defer release()

	doc, err := s.store.FindDocument(owner, index)
	if err != nil {
		return nil, nil, fmt.Errorf("loading document: %w", err)
	}
	if doc == nil {
		return nil, nil, ErrDocumentNotFound
	}
	if !IsDocumentOwner(caller, doc) {
		return nil, nil, ErrNotDocumentOwner
	}

	acct, err := s.account(caller)
	if err != nil {
		return nil, nil, err
	}
	if acct.TokenBalance < s.fees.ShareDocumentCost {
		return nil, nil, ErrInsufficientTokens
	}

	newBalance, err := checkedSub(acct.TokenBalance, s.fees.ShareDocumentCost)
	if err != nil {
		return nil, nil, err
	}

	acct.TokenBalance = newBalance
	doc.AccessLevel = newAccessLevel

	entry := s.entry(caller, "share_document", fmt.Sprintf("index=%d access_level=%d", index, newAccessLevel))
	if err := s.store.SpendAndUpdateDocumentAccess(acct, doc, entry); err != nil {
		return nil, nil, fmt.Errorf("committing document share: %w", err)
	}

	s.logger.Info("document access updated", "owner", caller, "index", index, "access_level", newAccessLevel)
	return acct, doc, nil
}

// GenerateQuiz debits the quiz fee and creates a quiz record keyed by the
// caller-supplied timestamp. Replaying the same (caller, timestamp) returns
// the existing record without charging again.
func (s *TokenService) GenerateQuiz(caller string, documentHash string, timestamp time.Time) (*model.Account, *model.QuizRecord, error) {
	release := s.locks.Acquire(caller)
	defer release()

	acct, err := s.account(caller)
	if err != nil {
		return nil, nil, err
	}

	existing, err := s.store.FindQuiz(caller, timestamp)
	if err != nil {
		return nil, nil, fmt.Errorf("loading quiz record: %w", err)
	}
	if existing != nil {
		return acct, existing, nil
	}

	if acct.TokenBalance < s.fees.QuizGenerationCost {
		return nil, nil, ErrInsufficientTokens
	}

	newBalance, err := checkedSub(acct.TokenBalance, s.fees.QuizGenerationCost)
	if err != nil {
		return nil, nil, err
	}

	acct.TokenBalance = newBalance

	quiz := &model.QuizRecord{
		Creator:      caller,
		DocumentHash: documentHash,
		CreatedAt:    timestamp,
		TokensSpent:  s.fees.QuizGenerationCost,
		IsPublic:     false,
	}

	entry := s.entry(caller, "generate_quiz", fmt.Sprintf("hash=%s cost=%d", documentHash, quiz.TokensSpent))
	if err := s.store.SpendAndCreateQuiz(acct, quiz, entry); err != nil {
		return nil, nil, fmt.Errorf("committing quiz generation: %w", err)
	}

	s.logger.Info("quiz generated", "owner", caller, "hash", documentHash)
	return acct, quiz, nil
}

// StakeTokens locks amount credits in a new stake record keyed by the
// caller-supplied timestamp. The amount must meet the minimum stake and fit
// the caller's balance.
func (s *TokenService) StakeTokens(caller string, amount uint64, timestamp time.Time) (*model.Account, *model.StakeRecord, error) {
	release := s.locks.Acquire(caller)
	defer release()

	acct, err := s.account(caller)
	if err != nil {
		return nil, nil, err
	}

	if amount < s.fees.MinimumStakeAmount {
		return nil, nil, ErrInsufficientStakeAmount
	}
	if acct.TokenBalance < amount {
		return nil, nil, ErrInsufficientTokens
	}

	newBalance, err := checkedSub(acct.TokenBalance, amount)
	if err != nil {
		return nil, nil, err
	}

	acct.TokenBalance = newBalance

	stake := &model.StakeRecord{
		User:     caller,
		Amount:   amount,
		StakedAt: timestamp,
		IsActive: true,
	}

	entry := s.entry(caller, "stake_tokens", fmt.Sprintf("amount=%d", amount))
	if err := s.store.SpendAndCreateStake(acct, stake, entry); err != nil {
		return nil, nil, fmt.Errorf("committing stake: %w", err)
	}

	s.logger.Info("tokens staked", "owner", caller, "amount", amount)
	return acct, stake, nil
}

// UnstakeTokens returns a matured stake's amount to the caller's balance and
// marks the stake record spent. The stake is addressed by its owner and
// timestamp; only the recorded owner may unstake, and only after the cooldown
// has elapsed. A spent stake cannot be unstaked again.
func (s *TokenService) UnstakeTokens(caller string, stakeUser string, stakedAt time.Time) (*model.Account, *model.StakeRecord, error) {
	release := s.locks.Acquire(caller, stakeUser)
	defer release()

	stake, err := s.store.FindStake(stakeUser, stakedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("loading stake record: %w", err)
	}
	if stake == nil {
		return nil, nil, ErrStakeNotFound
	}
	if !IsStakeOwner(caller, stake) {
		return nil, nil, ErrNotStakeOwner
	}

	if s.clock.Now().Before(stake.StakedAt.Add(s.fees.StakeCooldown)) {
		return nil, nil, ErrStakeCooldownActive
	}
	if !stake.IsActive {
		return nil, nil, ErrStakeNotActive
	}

	acct, err := s.account(caller)
	if err != nil {
		return nil, nil, err
	}

	newBalance, err := checkedAdd(acct.TokenBalance, stake.Amount)
	if err != nil {
		return nil, nil, err
	}

	acct.TokenBalance = newBalance
	stake.IsActive = false

	entry := s.entry(caller, "unstake_tokens", fmt.Sprintf("amount=%d", stake.Amount))
	if err := s.store.RefundAndDeactivateStake(acct, stake, entry); err != nil {
		return nil, nil, fmt.Errorf("committing unstake: %w", err)
	}

	s.logger.Info("tokens unstaked", "owner", caller, "amount", stake.Amount)
	return acct, stake, nil
}

// Read operations. These take no fees and mutate nothing.

// GetAccount returns the account snapshot for owner.
func (s *TokenService) GetAccount(owner string) (*model.Account, error) {
	return s.account(owner)
}

// GetDocument returns the document record at (owner, index).
func (s *TokenService) GetDocument(owner string, index uint64) (*model.DocumentRecord, error) {
	doc, err := s.store.FindDocument(owner, index)
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// ListDocuments returns all of owner's document records in index order.
func (s *TokenService) ListDocuments(owner string) ([]*model.DocumentRecord, error) {
	return s.store.ListDocuments(owner)
}

// ListQueries returns all of owner's query records in index order.
func (s *TokenService) ListQueries(owner string) ([]*model.QueryRecord, error) {
	return s.store.ListQueries(owner)
}

// ListQuizzes returns all of owner's quiz records, oldest first.
func (s *TokenService) ListQuizzes(owner string) ([]*model.QuizRecord, error) {
	return s.store.ListQuizzes(owner)
}

// ListStakes returns all of owner's stake records, oldest first.
func (s *TokenService) ListStakes(owner string) ([]*model.StakeRecord, error) {
	return s.store.ListStakes(owner)
}

// ListActivity returns owner's activity entries, newest first.
func (s *TokenService) ListActivity(owner string) ([]*model.ActivityEntry, error) {
	return s.store.ListActivity(owner)
}
