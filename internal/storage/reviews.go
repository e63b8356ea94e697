package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knolrep/internal/domain"
	"github.com/conorfennell/knolrep/internal/sm2"
)

// maxUpdateAttempts bounds the optimistic read-modify-write retries.
const maxUpdateAttempts = 5

func nanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullNanos(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

// CreateState stores the initial review state of a card for a learner.
// It fails with ErrExists if the pair already has one.
func (db *DB) CreateState(ctx context.Context, key domain.StateKey, st sm2.ReviewState) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		var lastQuality sql.NullInt64
		if st.Reviewed() {
			lastQuality = sql.NullInt64{Int64: int64(st.LastQuality), Valid: true}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO review_states (learner_id, card_hash, ease_factor, interval_days, repetitions,
				next_review_at, last_reviewed_at, last_quality)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(learner_id, card_hash) DO NOTHING
		`,
			key.LearnerID,
			key.CardHash,
			st.EaseFactor,
			st.Interval,
			st.Repetitions,
			nanos(st.NextReviewAt),
			nullNanos(st.LastReviewedAt),
			lastQuality,
		)
		if err != nil {
			return fmt.Errorf("failed to create review state %s/%s: %w", key.LearnerID, key.CardHash, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("review state %s/%s: %w", key.LearnerID, key.CardHash, ErrExists)
		}
		return appendHistory(ctx, tx, key, 0, st.History.Since(0))
	})
}

// LoadState reads the review state for key, history included.
func (db *DB) LoadState(ctx context.Context, key domain.StateKey) (sm2.ReviewState, error) {
	st, _, err := loadState(ctx, db.conn, key)
	return st, err
}

// UpdateState runs fn on the current state and writes its result in one
// atomic step. If another writer gets in first, the whole read-modify-write
// is retried.
func (db *DB) UpdateState(ctx context.Context, key domain.StateKey, fn func(sm2.ReviewState) (sm2.ReviewState, error)) (sm2.ReviewState, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var updated sm2.ReviewState
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			var err error
			updated, err = updateStateTx(ctx, tx, key, fn)
			return err
		})
		if errors.Is(err, ErrConflict) {
			continue
		}
		return updated, err
	}
	return sm2.ReviewState{}, fmt.Errorf("review state %s/%s: %w", key.LearnerID, key.CardHash, ErrConflict)
}

func updateStateTx(ctx context.Context, tx *sql.Tx, key domain.StateKey, fn func(sm2.ReviewState) (sm2.ReviewState, error)) (sm2.ReviewState, error) {
	current, version, err := loadState(ctx, tx, key)
	if err != nil {
		return sm2.ReviewState{}, err
	}

	next, err := fn(current)
	if err != nil {
		return sm2.ReviewState{}, err
	}
	if !next.History.Extends(current.History) {
		return sm2.ReviewState{}, fmt.Errorf("review state %s/%s: %w", key.LearnerID, key.CardHash, ErrHistoryRewritten)
	}

	var lastQuality sql.NullInt64
	if next.Reviewed() {
		lastQuality = sql.NullInt64{Int64: int64(next.LastQuality), Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE review_states
		SET ease_factor = ?, interval_days = ?, repetitions = ?, next_review_at = ?,
			last_reviewed_at = ?, last_quality = ?, version = version + 1
		WHERE learner_id = ? AND card_hash = ? AND version = ?
	`,
		next.EaseFactor,
		next.Interval,
		next.Repetitions,
		nanos(next.NextReviewAt),
		nullNanos(next.LastReviewedAt),
		lastQuality,
		key.LearnerID,
		key.CardHash,
		version,
	)
	if err != nil {
		return sm2.ReviewState{}, fmt.Errorf("failed to update review state %s/%s: %w", key.LearnerID, key.CardHash, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return sm2.ReviewState{}, fmt.Errorf("failed to check update of review state %s/%s: %w", key.LearnerID, key.CardHash, err)
	} else if n == 0 {
		return sm2.ReviewState{}, ErrConflict
	}

	from := current.History.Len()
	if err := appendHistory(ctx, tx, key, from, next.History.Since(from)); err != nil {
		return sm2.ReviewState{}, err
	}
	return next, nil
}

func appendHistory(ctx context.Context, q queryer, key domain.StateKey, from int, entries []sm2.LogEntry) error {
	for i, e := range entries {
		_, err := q.ExecContext(ctx, `
			INSERT INTO review_history (learner_id, card_hash, seq, reviewed_at, quality, interval_days)
			VALUES (?, ?, ?, ?, ?, ?)
		`, key.LearnerID, key.CardHash, from+i, nanos(e.At), int(e.Quality), e.Interval)
		if err != nil {
			return fmt.Errorf("failed to append review history %s/%s: %w", key.LearnerID, key.CardHash, err)
		}
	}
	return nil
}

type stateRow struct {
	ease           float64
	interval       int
	repetitions    int
	nextReviewAt   int64
	lastReviewedAt sql.NullInt64
	lastQuality    sql.NullInt64
}

func (r stateRow) state(h sm2.History) sm2.ReviewState {
	st := sm2.ReviewState{
		Memory: sm2.Memory{
			EaseFactor:  r.ease,
			Interval:    r.interval,
			Repetitions: r.repetitions,
		},
		NextReviewAt: fromNanos(r.nextReviewAt),
		History:      h,
	}
	if r.lastReviewedAt.Valid {
		st.LastReviewedAt = fromNanos(r.lastReviewedAt.Int64)
	}
	if r.lastQuality.Valid {
		st.LastQuality = sm2.Quality(r.lastQuality.Int64)
	}
	return st
}

func loadState(ctx context.Context, q queryer, key domain.StateKey) (sm2.ReviewState, int64, error) {
	var (
		r       stateRow
		version int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT ease_factor, interval_days, repetitions, next_review_at, last_reviewed_at, last_quality, version
		FROM review_states WHERE learner_id = ? AND card_hash = ?
	`, key.LearnerID, key.CardHash).Scan(
		&r.ease,
		&r.interval,
		&r.repetitions,
		&r.nextReviewAt,
		&r.lastReviewedAt,
		&r.lastQuality,
		&version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sm2.ReviewState{}, 0, fmt.Errorf("review state %s/%s: %w", key.LearnerID, key.CardHash, ErrNotFound)
		}
		return sm2.ReviewState{}, 0, fmt.Errorf("failed to load review state %s/%s: %w", key.LearnerID, key.CardHash, err)
	}

	histories, err := loadHistories(ctx, q, key.LearnerID, key.CardHash)
	if err != nil {
		return sm2.ReviewState{}, 0, err
	}
	return r.state(histories[key.CardHash]), version, nil
}

// loadHistories returns review logs for a learner, keyed by card hash. An
// empty cardHash loads every card.
func loadHistories(ctx context.Context, q queryer, learnerID, cardHash string) (map[string]sm2.History, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT card_hash, reviewed_at, quality, interval_days
		FROM review_history
		WHERE learner_id = ? AND (? = '' OR card_hash = ?)
		ORDER BY card_hash, seq
	`, learnerID, cardHash, cardHash)
	if err != nil {
		return nil, fmt.Errorf("failed to load review history for %s: %w", learnerID, err)
	}
	defer rows.Close()

	entries := make(map[string][]sm2.LogEntry)
	for rows.Next() {
		var (
			hash string
			at   int64
			e    sm2.LogEntry
		)
		if err := rows.Scan(&hash, &at, &e.Quality, &e.Interval); err != nil {
			return nil, fmt.Errorf("failed to scan review history row: %w", err)
		}
		e.At = fromNanos(at)
		entries[hash] = append(entries[hash], e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	histories := make(map[string]sm2.History, len(entries))
	for hash, es := range entries {
		histories[hash] = sm2.NewHistory(es...)
	}
	return histories, nil
}

// ListStates returns every review state of a learner with the collection
// of its card.
func (db *DB) ListStates(ctx context.Context, learnerID string) ([]sm2.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT rs.card_hash, s.name, rs.ease_factor, rs.interval_days, rs.repetitions,
			rs.next_review_at, rs.last_reviewed_at, rs.last_quality
		FROM review_states rs
		JOIN cards c ON c.hash = rs.card_hash
		JOIN sources s ON s.id = c.source_id
		WHERE rs.learner_id = ?
	`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list review states for %s: %w", learnerID, err)
	}
	defer rows.Close()

	type listed struct {
		id, collection string
		row            stateRow
	}
	var all []listed
	for rows.Next() {
		var l listed
		if err := rows.Scan(
			&l.id,
			&l.collection,
			&l.row.ease,
			&l.row.interval,
			&l.row.repetitions,
			&l.row.nextReviewAt,
			&l.row.lastReviewedAt,
			&l.row.lastQuality,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review state row: %w", err)
		}
		all = append(all, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	histories, err := loadHistories(ctx, db.conn, learnerID, "")
	if err != nil {
		return nil, err
	}

	cards := make([]sm2.Card, len(all))
	for i, l := range all {
		cards[i] = sm2.Card{ID: l.id, Collection: l.collection, State: l.row.state(histories[l.id])}
	}
	return cards, nil
}
