package store

import (
	"context"
	"time"
)

// SaveExchange records a prompt/response pair
func (s *Store) SaveExchange(ctx context.Context, ex LLMExchange) error {
	if ex.Timestamp.IsZero() {
		ex.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_exchanges (occurred_at, item_id, provider, model, prompt, response, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ex.Timestamp, ex.ItemID, ex.Provider, ex.Model, ex.Prompt, ex.Response, ex.Error)
	return err
}

// Exchanges returns the most recent exchanges, newest first
func (s *Store) Exchanges(ctx context.Context, limit int) ([]LLMExchange, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, item_id, provider, model, prompt, response, error
		FROM llm_exchanges
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LLMExchange
	for rows.Next() {
		var ex LLMExchange
		if err := rows.Scan(&ex.Timestamp, &ex.ItemID, &ex.Provider, &ex.Model, &ex.Prompt, &ex.Response, &ex.Error); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}
