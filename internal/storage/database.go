package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/conorfennell/knolrep/internal/domain"
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers inside the process and keeps
	// in-memory databases alive for the lifetime of the DB.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applyPragmas(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

func applyPragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// inTx runs fn in a transaction, committing only if fn succeeds.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Source represents a card source, either a local path or a Git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	Name        string
	LastScanned sql.NullTime
}

const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// SourceType guesses whether path is a git remote or a local directory.
func SourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") || strings.HasPrefix(path, "https://") {
		return SourceGit
	}
	return SourceLocal
}

// CollectionName derives a collection name from a source path or URL.
func CollectionName(path string) string {
	p := strings.TrimRight(path, "/")
	if i := strings.LastIndexAny(p, "/:"); i >= 0 {
		p = p[i+1:]
	}
	p = strings.TrimSuffix(p, ".git")
	if p == "" || p == "." {
		if abs, err := filepath.Abs(path); err == nil {
			return filepath.Base(abs)
		}
	}
	return p
}

// InsertSource inserts a new source and returns its ID.
func (db *DB) InsertSource(ctx context.Context, path, sourceType, name string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sources (path, type, name)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO NOTHING
	`, path, sourceType, name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("source %s: %w", path, ErrExists)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source from the database by its path.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*Source, error) {
	var s Source
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, path, type, name, last_scanned
		FROM sources WHERE path = ?
	`, path)

	err := row.Scan(&s.ID, &s.Path, &s.Type, &s.Name, &s.LastScanned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("source %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources(ctx context.Context) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, type, name, last_scanned
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.Type, &s.Name, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, at, sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source. Its cards, and every review state and
// history entry for those cards, go with it.
func (db *DB) DeleteSource(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("source %d: %w", id, ErrNotFound)
	}
	return nil
}

// InsertCard stores a card read from a source. A card whose hash is
// already stored, from any source, is left alone and reported as not
// inserted.
func (db *DB) InsertCard(ctx context.Context, card domain.Card, sourceID int64, at time.Time) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO cards (hash, question, answer, context, source_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`,
		card.Hash,
		card.Question,
		card.Answer,
		card.Context,
		sourceID,
		at.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check insert of card %s: %w", card.Hash, err)
	}
	return n == 1, nil
}

// MoveCard hands a card over to another source. Its review states and
// history stay attached.
func (db *DB) MoveCard(ctx context.Context, hash string, sourceID int64) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE cards SET source_id = ? WHERE hash = ?
	`, sourceID, hash)
	if err != nil {
		return fmt.Errorf("failed to move card %s to source %d: %w", hash, sourceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("card %s: %w", hash, ErrNotFound)
	}
	return nil
}

const cardColumns = `c.hash, c.question, c.answer, c.context, s.name`

func scanCard(row interface{ Scan(...any) error }) (domain.Card, error) {
	var c domain.Card
	err := row.Scan(&c.Hash, &c.Question, &c.Answer, &c.Context, &c.Collection)
	return c, err
}

// FindCardByHash retrieves a card by its full hash.
func (db *DB) FindCardByHash(ctx context.Context, hash string) (domain.Card, error) {
	card, err := scanCard(db.conn.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards c JOIN sources s ON s.id = c.source_id
		WHERE c.hash = ?
	`, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, fmt.Errorf("card %s: %w", hash, ErrNotFound)
		}
		return domain.Card{}, fmt.Errorf("failed to find card by hash %s: %w", hash, err)
	}
	return card, nil
}

// FindCards looks up several cards in one query, keyed by hash. Hashes
// that are not stored are absent from the result.
func (db *DB) FindCards(ctx context.Context, hashes []string) (map[string]domain.Card, error) {
	cards := make(map[string]domain.Card, len(hashes))
	if len(hashes) == 0 {
		return cards, nil
	}
	args := make([]any, len(hashes))
	for i, h := range hashes {
		args[i] = h
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards c JOIN sources s ON s.id = c.source_id
		WHERE c.hash IN (?`+strings.Repeat(", ?", len(hashes)-1)+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find cards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards[card.Hash] = card
	}
	return cards, rows.Err()
}

// ResolveCardHash expands a unique hash prefix to the full hash.
func (db *DB) ResolveCardHash(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("empty card hash: %w", ErrNotFound)
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT hash FROM cards WHERE hash >= ? AND hash < ? LIMIT 2
	`, prefix, prefix+"\xff")
	if err != nil {
		return "", fmt.Errorf("failed to resolve card hash %s: %w", prefix, err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return "", fmt.Errorf("failed to scan card hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(hashes) {
	case 0:
		return "", fmt.Errorf("card %s: %w", prefix, ErrNotFound)
	case 1:
		return hashes[0], nil
	default:
		return "", fmt.Errorf("card hash prefix %s: %w", prefix, ErrAmbiguous)
	}
}

// GetCardHashesBySourceID returns the hashes of every card read from a source.
func (db *DB) GetCardHashesBySourceID(ctx context.Context, sourceID int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT hash FROM cards WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan card row for source ID %d: %w", sourceID, err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// DeleteCardByHash removes a card and, by cascade, its review states.
func (db *DB) DeleteCardByHash(ctx context.Context, hash string) error {
	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM cards
		WHERE hash = ?
	`, hash)
	if err != nil {
		return fmt.Errorf("failed to delete card with hash %s: %w", hash, err)
	}
	return nil
}

// CreateLearner registers a learner under a fresh random id.
func (db *DB) CreateLearner(ctx context.Context, name string, at time.Time) (domain.Learner, error) {
	l := domain.Learner{ID: uuid.NewString(), Name: name}
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO learners (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, l.ID, l.Name, at.UnixNano())
	if err != nil {
		return domain.Learner{}, fmt.Errorf("failed to insert learner %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Learner{}, fmt.Errorf("learner %s: %w", name, ErrExists)
	}
	return l, nil
}

// FindLearner looks a learner up by id or by name.
func (db *DB) FindLearner(ctx context.Context, idOrName string) (domain.Learner, error) {
	var l domain.Learner
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, name FROM learners WHERE id = ? OR name = ?
	`, idOrName, idOrName).Scan(&l.ID, &l.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Learner{}, fmt.Errorf("learner %s: %w", idOrName, ErrNotFound)
		}
		return domain.Learner{}, fmt.Errorf("failed to find learner %s: %w", idOrName, err)
	}
	return l, nil
}

// LearnerID returns the id of the learner registered under idOrName.
// Unregistered values are used as ids unchanged: learners are opaque and
// registering them is optional.
func (db *DB) LearnerID(ctx context.Context, idOrName string) (string, error) {
	l, err := db.FindLearner(ctx, idOrName)
	switch {
	case errors.Is(err, ErrNotFound):
		return idOrName, nil
	case err != nil:
		return "", err
	}
	return l.ID, nil
}

// GetAllLearners lists registered learners by name.
func (db *DB) GetAllLearners(ctx context.Context) ([]domain.Learner, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name FROM learners ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to get learners: %w", err)
	}
	defer rows.Close()

	var learners []domain.Learner
	for rows.Next() {
		var l domain.Learner
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, fmt.Errorf("failed to scan learner row: %w", err)
		}
		learners = append(learners, l)
	}
	return learners, rows.Err()
}
