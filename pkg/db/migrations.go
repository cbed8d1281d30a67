package db

// migrationsSQL is the full schema. Statements are idempotent so InitDB
// can run on every startup.
const migrationsSQL = `
CREATE TABLE IF NOT EXISTS languages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    code TEXT NOT NULL DEFAULT '',
    word_pattern TEXT NOT NULL,
    sentence_pattern TEXT NOT NULL,
    exceptions TEXT NOT NULL DEFAULT '',
    remove_spaces INTEGER NOT NULL DEFAULT 0,
    right_to_left INTEGER NOT NULL DEFAULT 0,
    placement TEXT NOT NULL DEFAULT 'after',
    text_size INTEGER NOT NULL DEFAULT 100
);

CREATE TABLE IF NOT EXISTS texts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    language_id INTEGER NOT NULL,
    title TEXT NOT NULL,
    source_url TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    annotations TEXT NOT NULL DEFAULT '',
    degraded INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sentences (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    text_id INTEGER NOT NULL,
    sentence_index INTEGER NOT NULL,
    content TEXT NOT NULL,
    UNIQUE(text_id, sentence_index)
);

CREATE TABLE IF NOT EXISTS tokens (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sentence_id INTEGER NOT NULL,
    token_index INTEGER NOT NULL,
    word_order INTEGER NOT NULL DEFAULT 0,
    content TEXT NOT NULL,
    is_word INTEGER NOT NULL DEFAULT 0,
    UNIQUE(sentence_id, token_index)
);

CREATE INDEX IF NOT EXISTS idx_tokens_sentence ON tokens(sentence_id, token_index);

CREATE TABLE IF NOT EXISTS terms (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    language_id INTEGER NOT NULL,
    key TEXT NOT NULL,
    text TEXT NOT NULL,
    span INTEGER NOT NULL DEFAULT 1,
    status INTEGER NOT NULL DEFAULT 0,
    translation TEXT NOT NULL DEFAULT '',
    transliteration TEXT NOT NULL DEFAULT '',
    UNIQUE(language_id, key)
);

CREATE INDEX IF NOT EXISTS idx_terms_key ON terms(language_id, key);

CREATE TABLE IF NOT EXISTS tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS term_tags (
    term_id INTEGER NOT NULL,
    tag_id INTEGER NOT NULL,
    UNIQUE(term_id, tag_id)
);
`
