package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/xwatch/internal/stats"
	"github.com/ibeckermayer/xwatch/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func item(id string, created int64) types.CollectedItem {
	return types.CollectedItem{
		ID:        id,
		Text:      "text " + id,
		Author:    "alice",
		CreatedAt: created,
		Likes:     1,
		Source:    types.SourceSearch,
	}
}

func TestAppendIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Append(ctx, []types.CollectedItem{item("1", 100), item("2", 200)}))
	require.NoError(t, s.Append(ctx, []types.CollectedItem{item("2", 200), item("3", 300)}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	items, err := s.Items(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "3", items[0].ID, "newest first")
	assert.Equal(t, types.SourceSearch, items[0].Source)
}

func TestAppendEmptyIsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Append(context.Background(), nil))
}

func TestErrorLogIsCapped(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < MaxErrorEntries+5; i++ {
		require.NoError(t, s.AppendError(ctx, ErrorEntry{
			RunID:   "run",
			Context: "monitor",
			Message: fmt.Sprintf("failure %d", i),
			Stats:   stats.Snapshot{Total: i},
		}))
	}

	entries, err := s.RecentErrors(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, MaxErrorEntries)
	assert.Equal(t, fmt.Sprintf("failure %d", MaxErrorEntries+4), entries[0].Message)
	assert.Equal(t, MaxErrorEntries+4, entries[0].Stats.Total)
	assert.Equal(t, "failure 5", entries[len(entries)-1].Message)
}

func TestRepliedIDsOnlyCountsPosted(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.RecordReply(ctx, ReplyRecord{ItemID: "1", Text: "hi", Outcome: OutcomePosted, RunID: "r"}))
	require.NoError(t, s.RecordReply(ctx, ReplyRecord{ItemID: "2", Outcome: OutcomeDeclined, RunID: "r"}))
	require.NoError(t, s.RecordReply(ctx, ReplyRecord{ItemID: "2", Text: "later", Outcome: OutcomePosted, RunID: "r"}))

	ids, err := s.RepliedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"1": true, "2": true}, ids)

	all, err := s.Replies(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSaveExchange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveExchange(ctx, LLMExchange{
		ItemID:   "1",
		Provider: "anthropic",
		Model:    "claude-sonnet-4-5",
		Prompt:   "prompt",
		Response: "reply",
	}))

	got, err := s.Exchanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "reply", got[0].Response)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestExportJSON(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Append(ctx, []types.CollectedItem{item("1", 100)}))

	path, err := s.ExportJSON(ctx, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ".json", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var exp Export
	require.NoError(t, json.Unmarshal(data, &exp))
	require.Len(t, exp.Items, 1)
	assert.Equal(t, "1", exp.Items[0].ID)
	assert.NotNil(t, exp.Replies)
	assert.Empty(t, exp.Errors)
}

func TestNewCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "xwatch.db")
	s, err := New(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
