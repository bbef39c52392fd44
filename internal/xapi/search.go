package xapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ibeckermayer/xwatch/internal/types"
)

// Cursor walks search results lazily. Pages are fetched on demand, so
// abandoning a Cursor costs no further requests.
type Cursor interface {
	Next(ctx context.Context) bool
	Record() types.SearchRecord
	Err() error
}

type searchPage struct {
	Items      []types.SearchRecord `json:"items"`
	NextCursor string               `json:"next_cursor"`
}

// Iterator is the Cursor returned by Search
type Iterator struct {
	client *Client
	query  string
	mode   SearchMode
	limit  int

	buf     []types.SearchRecord
	cur     types.SearchRecord
	cursor  string
	yielded int
	started bool
	done    bool
	err     error
}

// Search returns a cursor over up to limit results for query
func (c *Client) Search(query string, limit int, mode SearchMode) Cursor {
	if mode == "" {
		mode = ModeLatest
	}
	return &Iterator{client: c, query: query, mode: mode, limit: limit}
}

// Next advances to the next record, fetching a page when the buffer is empty
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil || (it.limit > 0 && it.yielded >= it.limit) {
		return false
	}
	for len(it.buf) == 0 {
		if it.done {
			return false
		}
		if err := it.fetch(ctx); err != nil {
			it.err = err
			return false
		}
	}
	it.cur, it.buf = it.buf[0], it.buf[1:]
	it.yielded++
	return true
}

// Record returns the record Next advanced to
func (it *Iterator) Record() types.SearchRecord { return it.cur }

// Err returns the error that stopped iteration, if any
func (it *Iterator) Err() error { return it.err }

// Reset rewinds the iterator to the first page
func (it *Iterator) Reset() {
	it.buf, it.cursor, it.yielded = nil, "", 0
	it.started, it.done, it.err = false, false, nil
	it.cur = types.SearchRecord{}
}

func (it *Iterator) fetch(ctx context.Context) error {
	if it.started && it.cursor == "" {
		it.done = true
		return nil
	}
	q := url.Values{}
	q.Set("q", it.query)
	q.Set("mode", string(it.mode))
	count := pageSize
	if it.limit > 0 && it.limit-it.yielded < count {
		count = it.limit - it.yielded
	}
	q.Set("count", strconv.Itoa(count))
	if it.cursor != "" {
		q.Set("cursor", it.cursor)
	}

	resp, err := it.client.do(ctx, "search", http.MethodGet, "/search", q, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &types.SessionError{Op: "search", Status: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return statusError("search", resp)
	}
	var page searchPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return &types.CollectionError{Op: "search", Err: fmt.Errorf("decode page: %w", err)}
	}

	it.started = true
	it.buf = page.Items
	it.cursor = page.NextCursor
	if page.NextCursor == "" || len(page.Items) == 0 {
		it.done = true
	}
	return nil
}
