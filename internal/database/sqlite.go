package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"socratic-go/internal/ledger"
	"socratic-go/internal/model"
)

// SQLiteStore implements the ledger.Store interface using SQLite.
// Compound operations (a balance mutation plus its record mutation plus an
// activity entry) run inside a single transaction.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ ledger.Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed store.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs
// the store relies on. Exported for tools and tests that need a properly
// configured connection. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite ships with foreign keys off for backward compatibility.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// DB exposes the underlying connection for migration tooling.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// isConstraintErr reports whether err is a SQLite uniqueness/constraint
// violation, i.e. an insert collided with an existing key.
func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

// Account operations

const accountColumns = "owner, token_balance, documents_uploaded, queries_made, reputation_score, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var a model.Account
	var balance, docs, queries, reputation, createdAt int64
	if err := row.Scan(&a.Owner, &balance, &docs, &queries, &reputation, &createdAt); err != nil {
		return nil, err
	}
	a.TokenBalance = uint64(balance)
	a.DocumentsUploaded = uint64(docs)
	a.QueriesMade = uint64(queries)
	a.ReputationScore = uint64(reputation)
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &a, nil
}

func (s *SQLiteStore) FindAccount(owner string) (*model.Account, error) {
	row := s.db.QueryRow("SELECT "+accountColumns+" FROM accounts WHERE owner = ?", owner)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding account: %w", err)
	}
	return acct, nil
}

func (s *SQLiteStore) CreateAccountIfAbsent(account *model.Account, entry *model.ActivityEntry) (*model.Account, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT OR IGNORE INTO accounts ("+accountColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		account.Owner,
		int64(account.TokenBalance),
		int64(account.DocumentsUploaded),
		int64(account.QueriesMade),
		int64(account.ReputationScore),
		account.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting account: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("checking insert result: %w", err)
	}

	if inserted == 0 {
		// Already exists: return the stored account untouched.
		row := tx.QueryRow("SELECT "+accountColumns+" FROM accounts WHERE owner = ?", account.Owner)
		existing, err := scanAccount(row)
		if err != nil {
			return nil, false, fmt.Errorf("loading existing account: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("committing transaction: %w", err)
		}
		return existing, false, nil
	}

	if err := insertActivityTx(tx, entry); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing transaction: %w", err)
	}

	created := *account
	created.CreatedAt = time.Unix(account.CreatedAt.Unix(), 0).UTC()
	return &created, true, nil
}

func (s *SQLiteStore) UpdateAccount(account *model.Account, entry *model.ActivityEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateAccountTx(tx, account); err != nil {
		return err
	}
	if err := insertActivityTx(tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func updateAccountTx(tx *sql.Tx, account *model.Account) error {
	res, err := tx.Exec(
		"UPDATE accounts SET token_balance = ?, documents_uploaded = ?, queries_made = ?, reputation_score = ? WHERE owner = ?",
		int64(account.TokenBalance),
		int64(account.DocumentsUploaded),
		int64(account.QueriesMade),
		int64(account.ReputationScore),
		account.Owner,
	)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func insertActivityTx(tx *sql.Tx, entry *model.ActivityEntry) error {
	_, err := tx.Exec(
		"INSERT INTO activity (id, owner, transition, detail, created_at) VALUES (?, ?, ?, ?, ?)",
		entry.ID, entry.Owner, entry.Transition, entry.Detail, entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("inserting activity entry: %w", err)
	}
	return nil
}

// Document operations

const documentColumns = "owner, idx, content_hash, upload_timestamp, token_cost, access_level, download_count, is_active"

func scanDocument(row rowScanner) (*model.DocumentRecord, error) {
	var d model.DocumentRecord
	var index, uploadedAt, cost, level, downloads int64
	if err := row.Scan(&d.Owner, &index, &d.ContentHash, &uploadedAt, &cost, &level, &downloads, &d.IsActive); err != nil {
		return nil, err
	}
	d.Index = uint64(index)
	d.UploadTimestamp = time.Unix(uploadedAt, 0).UTC()
	d.TokenCost = uint64(cost)
	d.AccessLevel = uint8(level)
	d.DownloadCount = uint64(downloads)
	return &d, nil
}

func (s *SQLiteStore) FindDocument(owner string, index uint64) (*model.DocumentRecord, error) {
	row := s.db.QueryRow("SELECT "+documentColumns+" FROM documents WHERE owner = ? AND idx = ?", owner, int64(index))
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) ListDocuments(owner string) ([]*model.DocumentRecord, error) {
	rows, err := s.db.Query("SELECT "+documentColumns+" FROM documents WHERE owner = ? ORDER BY idx", owner)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*model.DocumentRecord
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return docs, nil
}

func (s *SQLiteStore) SpendAndCreateDocument(account *model.Account, doc *model.DocumentRecord, entry *model.ActivityEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateAccountTx(tx, account); err != nil {
		return err
	}

	_, err = tx.Exec(
		"INSERT INTO documents ("+documentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		doc.Owner,
		int64(doc.Index),
		doc.ContentHash,
		doc.UploadTimestamp.Unix(),
		int64(doc.TokenCost),
		int64(doc.AccessLevel),
		int64(doc.DownloadCount),
		doc.IsActive,
	)
	if err != nil {
		if isConstraintErr(err) {
			return ledger.ErrRecordExists
		}
		return fmt.Errorf("inserting document: %w", err)
	}

	if err := insertActivityTx(tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SpendAndUpdateDocumentAccess(account *model.Account, doc *model.DocumentRecord, entry *model.ActivityEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateAccountTx(tx, account); err != nil {
		return err
	}

	res, err := tx.Exec(
		"UPDATE documents SET access_level = ? WHERE owner = ? AND idx = ?",
		int64(doc.AccessLevel), doc.Owner, int64(doc.Index),
	)
	if err != nil {
		return fmt.Errorf("updating document access level: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ledger.ErrDocumentNotFound
	}

	if err := insertActivityTx(tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Query operations

const queryColumns = "user, idx, query_text, timestamp, tokens_spent"

func scanQuery(row rowScanner) (*model.QueryRecord, error) {
	var q model.QueryRecord
	var index, ts, spent int64
	if err := row.Scan(&q.User, &index, &q.QueryText, &ts, &spent); err != nil {
		return nil, err
	}
	q.Index = uint64(index)
	q.Timestamp = time.Unix(ts, 0).UTC()
	q.TokensSpent = uint64(spent)
	return &q, nil
}

func (s *SQLiteStore) FindQuery(user string, index uint64) (*model.QueryRecord, error) {
	row := s.db.QueryRow("SELECT "+queryColumns+" FROM queries WHERE user = ? AND idx = ?", user, int64(index))
	query, err := scanQuery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding query: %w", err)
	}
	return query, nil
}

func (s *SQLiteStore) ListQueries(user string) ([]*model.QueryRecord, error) {
	rows, err := s.db.Query("SELECT "+queryColumns+" FROM queries WHERE user = ? ORDER BY idx", user)
	if err != nil {
		return nil, fmt.Errorf("listing queries: %w", err)
	}
	defer rows.Close()

	var queries []*model.QueryRecord
	for rows.Next() {
		query, err := scanQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning query: %w", err)
		}
		queries = append(queries, query)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing queries: %w", err)
	}
	return queries, nil
}

func (s *SQLiteStore) SpendAndCreateQuery(account *model.Account, query *model.QueryRecord, entry *model.ActivityEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateAccountTx(tx, account); err != nil {
		return err
	}

	_, err = tx.Exec(
		"INSERT INTO queries ("+queryColumns+") VALUES (?, ?, ?, ?, ?)",
		query.User,
		int64(query.Index),
		query.QueryText,
		query.Timestamp.Unix(),
		int64(query.TokensSpent),
	)
	if err != nil {
		if isConstraintErr(err) {
			return ledger.ErrRecordExists
		}
		return fmt.Errorf("inserting query: %w", err)
	}

	if err := insertActivityTx(tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Quiz operations

const quizColumns = "creator, created_at, document_hash, tokens_spent, is_public"

func scanQuiz(row rowScanner) (*model.QuizRecord, error) {
	var q model.QuizRecord
	var createdAt, spent int64
	if err := row.Scan(&q.Creator, &createdAt, &q.DocumentHash, &spent, &q.IsPublic); err != nil {
		return nil, err
	}
	q.CreatedAt = time.Unix(createdAt, 0).UTC()
	q.TokensSpent = uint64(spent)
	return &q, nil
}

func (s *SQLiteStore) FindQuiz(creator string, createdAt time.Time) (*model.QuizRecord, error) {
	row := s.db.QueryRow("SELECT "+quizColumns+" FROM quizzes WHERE creator = ? AND created_at = ?", creator, createdAt.Unix())
	quiz, err := scanQuiz(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding quiz: %w", err)
	}
	return quiz, nil
}

func (s *SQLiteStore) ListQuizzes(creator string) ([]*model.QuizRecord, error) {
	rows, err := s.db.Query("SELECT "+quizColumns+" FROM quizzes WHERE creator = ? ORDER BY created_at", creator)
	if err != nil {
		return nil, fmt.Errorf("listing quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []*model.QuizRecord
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing quizzes: %w", err)
	}
	return quizzes, nil
}

func (s *SQLiteStore) SpendAndCreateQuiz(account *model.Account, quiz *model.QuizRecord, entry *model.ActivityEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateAccountTx(tx, account); err != nil {
		return err
	}

	_, err = tx.Exec(
		"INSERT INTO quizzes ("+quizColumns+") VALUES (?, ?, ?, ?, ?)",
		quiz.Creator,
		quiz.CreatedAt.Unix(),
		quiz.DocumentHash,
		int64(quiz.TokensSpent),
		quiz.IsPublic,
	)
	if err != nil {
		if isConstraintErr(err) {
			return ledger.ErrRecordExists
		}
		return fmt.Errorf("inserting quiz: %w", err)
	}

	if err := insertActivityTx(tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Stake operations

const stakeColumns = "user, staked_at, amount, is_active"

func scanStake(row rowScanner) (*model.StakeRecord, error) {
	var st model.StakeRecord
	var stakedAt, amount int64
	if err := row.Scan(&st.User, &stakedAt, &amount, &st.IsActive); err != nil {
		return nil, err
	}
	st.StakedAt = time.Unix(stakedAt, 0).UTC()
	st.Amount = uint64(amount)
	return &st, nil
}

func (s *SQLiteStore) FindStake(user string, stakedAt time.Time) (*model.StakeRecord, error) {
	row := s.db.QueryRow("SELECT "+stakeColumns+" FROM stakes WHERE user = ? AND staked_at = ?", user, stakedAt.Unix())
	stake, err := scanStake(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding stake: %w", err)
	}
	return stake, nil
}

func (s *SQLiteStore) ListStakes(user string) ([]*model.StakeRecord, error) {
	rows, err := s.db.Query("SELECT "+stakeColumns+" FROM stakes WHERE user = ? ORDER BY staked_at", user)
	if err != nil {
		return nil, fmt.Errorf("listing stakes: %w", err)
	}
	defer rows.Close()

	var stakes []*model.StakeRecord
	for rows.Next() {
		stake, err := scanStake(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning stake: %w", err)
		}
		stakes = append(stakes, stake)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing stakes: %w", err)
	}
	return stakes, nil
}

func (s *SQLiteStore) SpendAndCreateStake(account *model.Account, stake *model.StakeRecord, entry *model.ActivityEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO stakes ("+stakeColumns+") VALUES (?, ?, ?, ?)",
		stake.User,
		stake.StakedAt.Unix(),
		int64(stake.Amount),
		stake.IsActive,
	)
	if err != nil {
		if isConstraintErr(err) {
			return ledger.ErrRecordExists
		}
		return fmt.Errorf("inserting stake: %w", err)
	}

	if err := updateAccountTx(tx, account); err != nil {
		return err
	}
	if err := insertActivityTx(tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RefundAndDeactivateStake(account *model.Account, stake *model.StakeRecord, entry *model.ActivityEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := updateAccountTx(tx, account); err != nil {
		return err
	}

	res, err := tx.Exec(
		"UPDATE stakes SET is_active = 0 WHERE user = ? AND staked_at = ? AND is_active = 1",
		stake.User, stake.StakedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("deactivating stake: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ledger.ErrStakeNotActive
	}

	if err := insertActivityTx(tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Activity operations

func (s *SQLiteStore) ListActivity(owner string) ([]*model.ActivityEntry, error) {
	rows, err := s.db.Query(
		"SELECT id, owner, transition, detail, created_at FROM activity WHERE owner = ? ORDER BY created_at DESC, id DESC",
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close()

	var entries []*model.ActivityEntry
	for rows.Next() {
		var e model.ActivityEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Owner, &e.Transition, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	return entries, nil
}
