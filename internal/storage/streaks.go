package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/conorfennell/knolrep/internal/clock"
	"github.com/conorfennell/knolrep/internal/streak"
)

// LoadStreak returns a learner's streak. A learner who has never studied
// has an empty record, which is not an error.
func (db *DB) LoadStreak(ctx context.Context, learnerID string) (streak.Record, error) {
	r, _, err := loadStreak(ctx, db.conn, learnerID)
	return r, err
}

// UpdateStreak applies fn to a learner's streak atomically, retrying when a
// concurrent writer wins.
func (db *DB) UpdateStreak(ctx context.Context, learnerID string, fn func(streak.Record) streak.Record) (streak.Record, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var updated streak.Record
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			var err error
			updated, err = updateStreakTx(ctx, tx, learnerID, fn)
			return err
		})
		if errors.Is(err, ErrConflict) {
			continue
		}
		return updated, err
	}
	return streak.Record{}, fmt.Errorf("streak %s: %w", learnerID, ErrConflict)
}

func updateStreakTx(ctx context.Context, tx *sql.Tx, learnerID string, fn func(streak.Record) streak.Record) (streak.Record, error) {
	current, version, err := loadStreak(ctx, tx, learnerID)
	if err != nil {
		return streak.Record{}, err
	}
	next := fn(current)

	var res sql.Result
	if version == 0 {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO streaks (learner_id, current_streak, longest_streak, last_study_date)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(learner_id) DO NOTHING
		`, learnerID, next.Current, next.Longest, nullDate(next.LastStudyDate))
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE streaks
			SET current_streak = ?, longest_streak = ?, last_study_date = ?, version = version + 1
			WHERE learner_id = ? AND version = ?
		`, next.Current, next.Longest, nullDate(next.LastStudyDate), learnerID, version)
	}
	if err != nil {
		return streak.Record{}, fmt.Errorf("failed to write streak for %s: %w", learnerID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return streak.Record{}, ErrConflict
	}

	for d := range next.StudyDates {
		if current.StudyDates.Has(d) {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO study_dates (learner_id, study_date) VALUES (?, ?)
		`, learnerID, d.String()); err != nil {
			return streak.Record{}, fmt.Errorf("failed to record study date %s for %s: %w", d, learnerID, err)
		}
	}
	return next, nil
}

func nullDate(d clock.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func loadStreak(ctx context.Context, q queryer, learnerID string) (streak.Record, int64, error) {
	var (
		r       streak.Record
		last    sql.NullString
		version int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT current_streak, longest_streak, last_study_date, version
		FROM streaks WHERE learner_id = ?
	`, learnerID).Scan(&r.Current, &r.Longest, &last, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return streak.Record{}, 0, nil
		}
		return streak.Record{}, 0, fmt.Errorf("failed to load streak for %s: %w", learnerID, err)
	}
	if last.Valid {
		if r.LastStudyDate, err = clock.ParseDate(last.String); err != nil {
			return streak.Record{}, 0, err
		}
	}

	rows, err := q.QueryContext(ctx, `
		SELECT study_date FROM study_dates WHERE learner_id = ?
	`, learnerID)
	if err != nil {
		return streak.Record{}, 0, fmt.Errorf("failed to load study dates for %s: %w", learnerID, err)
	}
	defer rows.Close()

	r.StudyDates = make(streak.DateSet)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return streak.Record{}, 0, fmt.Errorf("failed to scan study date: %w", err)
		}
		d, err := clock.ParseDate(s)
		if err != nil {
			return streak.Record{}, 0, err
		}
		r.StudyDates[d] = struct{}{}
	}
	return r, version, rows.Err()
}
