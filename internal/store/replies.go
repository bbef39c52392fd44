package store

import (
	"context"
	"time"
)

// RecordReply stores the reply decision for an item. A later record for
// the same item replaces the earlier one.
func (s *Store) RecordReply(ctx context.Context, r ReplyRecord) error {
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replies (item_id, text, outcome, run_id, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			text = excluded.text,
			outcome = excluded.outcome,
			run_id = excluded.run_id,
			recorded_at = excluded.recorded_at
	`, r.ItemID, r.Text, r.Outcome, r.RunID, r.RecordedAt)
	return err
}

// RepliedIDs returns the set of item ids a reply was posted to
func (s *Store) RepliedIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_id FROM replies WHERE outcome = ?`, OutcomePosted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// Replies returns all reply records, newest first
func (s *Store) Replies(ctx context.Context) ([]ReplyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, text, outcome, run_id, recorded_at
		FROM replies
		ORDER BY recorded_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReplyRecord
	for rows.Next() {
		var r ReplyRecord
		if err := rows.Scan(&r.ItemID, &r.Text, &r.Outcome, &r.RunID, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
