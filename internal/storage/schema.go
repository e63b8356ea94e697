package storage

// Instants are stored as unix nanoseconds so that due comparisons work in
// SQL regardless of the zone they were produced in. Calendar dates are
// stored as YYYY-MM-DD text.
const schema = `
-- The 'sources' table tracks the origin of the cards, either a local directory or a git repository.
-- Each source is one collection; 'name' is the collection name.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    name TEXT NOT NULL,
    last_scanned DATETIME
);

-- The 'cards' table stores the content of each flashcard, keyed by its content hash.
CREATE TABLE IF NOT EXISTS cards (
    hash TEXT PRIMARY KEY,
    question TEXT NOT NULL,
    answer TEXT NOT NULL DEFAULT '',
    context TEXT NOT NULL DEFAULT '',
    source_id INTEGER NOT NULL,
    created_at INTEGER NOT NULL,

    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS learners (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    created_at INTEGER NOT NULL
);

-- One row per (learner, card). 'version' is bumped on every write and
-- checked by the next one.
CREATE TABLE IF NOT EXISTS review_states (
    learner_id TEXT NOT NULL,
    card_hash TEXT NOT NULL,
    ease_factor REAL NOT NULL,
    interval_days INTEGER NOT NULL,
    repetitions INTEGER NOT NULL,
    next_review_at INTEGER NOT NULL,
    last_reviewed_at INTEGER,
    last_quality INTEGER,
    version INTEGER NOT NULL DEFAULT 1,

    PRIMARY KEY (learner_id, card_hash),
    FOREIGN KEY(card_hash) REFERENCES cards(hash) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_review_states_due ON review_states (learner_id, next_review_at);

-- Append-only review log. Rows are inserted, never updated.
CREATE TABLE IF NOT EXISTS review_history (
    learner_id TEXT NOT NULL,
    card_hash TEXT NOT NULL,
    seq INTEGER NOT NULL,
    reviewed_at INTEGER NOT NULL,
    quality INTEGER NOT NULL,
    interval_days INTEGER NOT NULL,

    PRIMARY KEY (learner_id, card_hash, seq),
    FOREIGN KEY(learner_id, card_hash) REFERENCES review_states(learner_id, card_hash) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS streaks (
    learner_id TEXT PRIMARY KEY,
    current_streak INTEGER NOT NULL,
    longest_streak INTEGER NOT NULL,
    last_study_date TEXT,
    version INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS study_dates (
    learner_id TEXT NOT NULL,
    study_date TEXT NOT NULL,

    PRIMARY KEY (learner_id, study_date),
    FOREIGN KEY(learner_id) REFERENCES streaks(learner_id) ON DELETE CASCADE
);
`
