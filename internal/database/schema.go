package database

// Schema is the current database schema, kept in sync with the migration
// files. Tests apply it directly to in-memory databases instead of running
// the migration machinery.
const Schema = `
CREATE TABLE accounts (
    owner              TEXT PRIMARY KEY,
    token_balance      INTEGER NOT NULL DEFAULT 0,
    documents_uploaded INTEGER NOT NULL DEFAULT 0,
    queries_made       INTEGER NOT NULL DEFAULT 0,
    reputation_score   INTEGER NOT NULL DEFAULT 0,
    created_at         INTEGER NOT NULL
);

CREATE TABLE documents (
    owner            TEXT    NOT NULL REFERENCES accounts(owner),
    idx              INTEGER NOT NULL,
    content_hash     TEXT    NOT NULL,
    upload_timestamp INTEGER NOT NULL,
    token_cost       INTEGER NOT NULL,
    access_level     INTEGER NOT NULL,
    download_count   INTEGER NOT NULL DEFAULT 0,
    is_active        INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (owner, idx)
);

CREATE TABLE queries (
    user         TEXT    NOT NULL REFERENCES accounts(owner),
    idx          INTEGER NOT NULL,
    query_text   TEXT    NOT NULL,
    timestamp    INTEGER NOT NULL,
    tokens_spent INTEGER NOT NULL,
    PRIMARY KEY (user, idx)
);

CREATE TABLE quizzes (
    creator       TEXT    NOT NULL REFERENCES accounts(owner),
    created_at    INTEGER NOT NULL,
    document_hash TEXT    NOT NULL,
    tokens_spent  INTEGER NOT NULL,
    is_public     INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (creator, created_at)
);

CREATE TABLE stakes (
    user      TEXT    NOT NULL REFERENCES accounts(owner),
    staked_at INTEGER NOT NULL,
    amount    INTEGER NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (user, staked_at)
);

CREATE TABLE activity (
    id         TEXT PRIMARY KEY,
    owner      TEXT    NOT NULL,
    transition TEXT    NOT NULL,
    detail     TEXT    NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX idx_activity_owner ON activity(owner, created_at);
`
