package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ibeckermayer/xwatch/internal/stats"
)

// MaxErrorEntries is how many fatal-error records the log keeps
const MaxErrorEntries = 100

// AppendError records a fatal error with the stats snapshot at failure time.
// Entries beyond MaxErrorEntries are pruned, oldest first.
func (s *Store) AppendError(ctx context.Context, entry ErrorEntry) error {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	snapshot, err := json.Marshal(entry.Stats)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO error_log (occurred_at, run_id, context, message, stats)
		VALUES (?, ?, ?, ?, ?)
	`, entry.OccurredAt, entry.RunID, entry.Context, entry.Message, string(snapshot)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM error_log WHERE id NOT IN (
			SELECT id FROM error_log ORDER BY id DESC LIMIT ?
		)
	`, MaxErrorEntries); err != nil {
		return err
	}
	return tx.Commit()
}

// RecentErrors returns up to limit error entries, newest first
func (s *Store) RecentErrors(ctx context.Context, limit int) ([]ErrorEntry, error) {
	if limit <= 0 || limit > MaxErrorEntries {
		limit = MaxErrorEntries
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, occurred_at, run_id, context, message, stats
		FROM error_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ErrorEntry
	for rows.Next() {
		var e ErrorEntry
		var snapshot string
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.RunID, &e.Context, &e.Message, &snapshot); err != nil {
			return nil, err
		}
		if snapshot != "" {
			var st stats.Snapshot
			if err := json.Unmarshal([]byte(snapshot), &st); err == nil {
				e.Stats = st
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
