package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ibeckermayer/xwatch/internal/types"
)

// Append inserts items, ignoring ids already archived
func (s *Store) Append(ctx context.Context, items []types.CollectedItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO items (id, text, author, created_at, likes, reshares, replies,
			permanent_url, has_existing_reply, source, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.ID, it.Text, it.Author, it.CreatedAt, it.Likes, it.Reshares,
			it.Replies, it.PermanentURL, it.HasExistingReply, string(it.Source), now); err != nil {
			return fmt.Errorf("archive item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

// Items returns archived items, newest first. limit <= 0 returns all.
func (s *Store) Items(ctx context.Context, limit int) ([]types.CollectedItem, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, author, created_at, likes, reshares, replies,
			permanent_url, has_existing_reply, source
		FROM items
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []types.CollectedItem
	for rows.Next() {
		var it types.CollectedItem
		var source string
		if err := rows.Scan(&it.ID, &it.Text, &it.Author, &it.CreatedAt, &it.Likes, &it.Reshares,
			&it.Replies, &it.PermanentURL, &it.HasExistingReply, &source); err != nil {
			return nil, err
		}
		it.Source = types.Source(source)
		items = append(items, it)
	}
	return items, rows.Err()
}

// Count returns the number of archived items
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n)
	return n, err
}
