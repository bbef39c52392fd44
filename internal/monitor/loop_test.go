package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ibeckermayer/xwatch/internal/auth"
	"github.com/ibeckermayer/xwatch/internal/backoff"
	"github.com/ibeckermayer/xwatch/internal/backoff/backofftest"
	"github.com/ibeckermayer/xwatch/internal/collector"
	"github.com/ibeckermayer/xwatch/internal/dedup"
	"github.com/ibeckermayer/xwatch/internal/page/pagetest"
	"github.com/ibeckermayer/xwatch/internal/stats"
	"github.com/ibeckermayer/xwatch/internal/store"
	"github.com/ibeckermayer/xwatch/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type step struct {
	items []types.CollectedItem
	err   error
}

// scripted returns its steps in order, repeating the last one
type scripted struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (s *scripted) next() ([]types.CollectedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.steps) == 0 {
		return nil, nil
	}
	i := min(s.calls-1, len(s.steps)-1)
	return s.steps[i].items, s.steps[i].err
}

type fakeSearch struct{ scripted }

func (f *fakeSearch) Collect(context.Context, collector.Query) ([]types.CollectedItem, error) {
	return f.next()
}

type fakeTimeline struct{ scripted }

func (f *fakeTimeline) Collect(context.Context) ([]types.CollectedItem, error) {
	return f.next()
}

type fakeResponder struct {
	mu       sync.Mutex
	compose  bool
	post     bool
	postErr  error
	composed []string
	posted   []string
}

func (r *fakeResponder) Compose(_ context.Context, item types.CollectedItem) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.composed = append(r.composed, item.ID)
	return "reply to " + item.ID, r.compose
}

func (r *fakeResponder) Post(_ context.Context, item types.CollectedItem, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posted = append(r.posted, item.ID)
	return r.post, r.postErr
}

type fakeRecoverer struct {
	causes []error
	err    error
}

func (r *fakeRecoverer) Recover(_ context.Context, cause error) error {
	r.causes = append(r.causes, cause)
	return r.err
}

type memLedger struct {
	preloaded map[string]bool
	records   []store.ReplyRecord
}

func (m *memLedger) RecordReply(_ context.Context, r store.ReplyRecord) error {
	m.records = append(m.records, r)
	return nil
}

func (m *memLedger) RepliedIDs(context.Context) (map[string]bool, error) {
	return m.preloaded, nil
}

func (m *memLedger) outcomes() map[string]string {
	out := map[string]string{}
	for _, r := range m.records {
		out[r.ItemID] = r.Outcome
	}
	return out
}

type memErrorLog struct{ entries []store.ErrorEntry }

func (m *memErrorLog) AppendError(_ context.Context, e store.ErrorEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type memArchive struct{ ids []string }

func (a *memArchive) Append(_ context.Context, items []types.CollectedItem) error {
	for _, it := range items {
		a.ids = append(a.ids, it.ID)
	}
	return nil
}

type harness struct {
	search    *fakeSearch
	timeline  *fakeTimeline
	responder *fakeResponder
	recoverer *fakeRecoverer
	ledger    *memLedger
	errs      *memErrorLog
	archive   *memArchive
	sleeper   *backofftest.Sleeper
	stats     *stats.Collection
}

func newHarness() *harness {
	return &harness{
		search:    &fakeSearch{},
		timeline:  &fakeTimeline{},
		responder: &fakeResponder{compose: true, post: true},
		recoverer: &fakeRecoverer{},
		ledger:    &memLedger{},
		errs:      &memErrorLog{},
		archive:   &memArchive{},
		sleeper:   &backofftest.Sleeper{},
		stats:     stats.New(time.Now()),
	}
}

func (h *harness) loop(cycles int, limit int) *Loop {
	return New(Deps{
		Search:    h.search,
		Timeline:  h.timeline,
		Responder: h.responder,
		Recoverer: h.recoverer,
		Dedup:     dedup.New(h.stats, limit),
		Bridge:    dedup.NewBridge(h.archive, zerolog.Nop()),
		Ledger:    h.ledger,
		ErrorLog:  h.errs,
		Sleeper:   h.sleeper,
		Humanizer: backoff.NewHumanizer(7),
		Stats:     h.stats,
		Log:       zerolog.Nop(),
	}, Options{
		Query:         collector.Query{Keywords: []string{"golang"}},
		Own:           "me",
		RunID:         "run-1",
		CyclePause:    backoff.Range{Min: 5 * time.Second, Max: 8 * time.Second},
		RecoveryPause: backoff.Range{Min: 30 * time.Second, Max: 60 * time.Second},
		MaxCycles:     cycles,
		Seed:          1,
	})
}

func post(id, author string) types.CollectedItem {
	return types.CollectedItem{ID: id, Author: author, Text: "golang " + id, CreatedAt: 1_700_000_000_000}
}

func TestCycleRepliesToEligibleItem(t *testing.T) {
	h := newHarness()
	h.search.steps = []step{{items: []types.CollectedItem{post("1", "me")}}}
	replied := post("2", "bob")
	replied.HasExistingReply = true
	h.timeline.steps = []step{{items: []types.CollectedItem{replied, post("3", "carol")}}}

	l := h.loop(1, 0)
	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, []string{"3"}, h.responder.posted)
	assert.Equal(t, map[string]string{"3": store.OutcomePosted}, h.ledger.outcomes())
	assert.ElementsMatch(t, []string{"1", "2", "3"}, h.archive.ids)
	assert.Equal(t, Searching, l.State())
	assert.Equal(t, 1, l.Cycles())
}

func TestNoEligibleItemsSkipsResponding(t *testing.T) {
	h := newHarness()
	h.timeline.steps = []step{{items: []types.CollectedItem{post("1", "ME")}}}

	require.NoError(t, h.loop(2, 0).Run(context.Background()))

	assert.Empty(t, h.responder.composed)
	require.Equal(t, 2, h.sleeper.Calls())
	for _, d := range h.sleeper.Slept {
		assert.GreaterOrEqual(t, d, 5*time.Second)
		assert.LessOrEqual(t, d, 8*time.Second)
	}
}

func TestSearchCollectionErrorIsSoft(t *testing.T) {
	h := newHarness()
	h.search.steps = []step{{
		items: []types.CollectedItem{post("1", "bob")},
		err:   &types.CollectionError{Op: "search", RateLimited: true, Err: errors.New("429")},
	}}

	require.NoError(t, h.loop(1, 0).Run(context.Background()))

	assert.Equal(t, 1, h.timeline.calls)
	assert.Empty(t, h.recoverer.causes)
	assert.Equal(t, []string{"1"}, h.responder.posted, "partial results stay eligible")
}

func TestPageErrorRoutesThroughRecovery(t *testing.T) {
	h := newHarness()
	pageErr := &types.PageError{Action: "wait", Selector: "article", Err: context.DeadlineExceeded}
	h.timeline.steps = []step{{err: pageErr}, {}}

	l := h.loop(2, 0)
	require.NoError(t, l.Run(context.Background()))

	require.Len(t, h.recoverer.causes, 1)
	assert.ErrorIs(t, h.recoverer.causes[0], context.DeadlineExceeded)
	assert.Equal(t, 2, h.timeline.calls)

	require.NotEmpty(t, h.sleeper.Slept)
	assert.GreaterOrEqual(t, h.sleeper.Slept[0], 30*time.Second, "pause after recovery")
	assert.Empty(t, h.errs.entries)
}

func TestRecoveryFailureIsFatalAndLogged(t *testing.T) {
	h := newHarness()
	h.search.steps = []step{{items: []types.CollectedItem{post("1", "bob")}}}
	h.timeline.steps = []step{{err: &types.PageError{Action: "navigate", Err: errors.New("tab crashed")}}}
	h.recoverer.err = errors.New("login page never loaded")

	err := h.loop(0, 0).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tab crashed")
	assert.Contains(t, err.Error(), "login page never loaded")

	require.Len(t, h.recoverer.causes, 1, "recovery is attempted once")
	require.Len(t, h.errs.entries, 1)
	entry := h.errs.entries[0]
	assert.Equal(t, "run-1", entry.RunID)
	assert.Equal(t, Recovering.String(), entry.Context)
	assert.Equal(t, 1, entry.Stats.Total)
}

func TestExpiredSessionDuringSearchReauthenticates(t *testing.T) {
	h := newHarness()
	h.search.steps = []step{
		{err: &types.SessionError{Op: "search", Status: 401}},
		{items: []types.CollectedItem{post("1", "bob")}},
	}
	sessions := &fakeSessions{}
	driver := pagetest.New()
	rec := NewSessionRecovery(sessions, driver, &countingLogin{}, "", zerolog.Nop())
	require.NoError(t, rec.Start(context.Background()))
	first := rec.Session()

	l := h.loop(2, 0)
	l.Recoverer = rec
	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, []*auth.Session{first}, sessions.invalidated)
	assert.Equal(t, 2, sessions.acquired, "session acquired again before the next search")
	assert.Equal(t, 1, driver.Count("Reset"))
	assert.Equal(t, 2, h.search.calls)
	assert.Equal(t, 1, h.timeline.calls, "the failed cycle goes straight to recovery")
	assert.Equal(t, []string{"1"}, h.responder.posted)
	assert.Empty(t, h.errs.entries)
}

func TestAuthErrorIsFatalWithoutRecovery(t *testing.T) {
	h := newHarness()
	h.search.steps = []step{{err: &types.AuthError{Account: "me", Attempts: 5, Err: errors.New("nope")}}}

	err := h.loop(0, 0).Run(context.Background())
	var ae *types.AuthError
	require.True(t, errors.As(err, &ae))
	assert.Empty(t, h.recoverer.causes)
	require.Len(t, h.errs.entries, 1)
	assert.Equal(t, Searching.String(), h.errs.entries[0].Context)
}

func TestPostFailureIsRecordedAndRecovered(t *testing.T) {
	h := newHarness()
	h.timeline.steps = []step{{items: []types.CollectedItem{post("1", "bob")}}}
	h.responder.postErr = &types.PageError{Action: "press key", Err: errors.New("detached")}
	h.responder.post = false

	l := h.loop(1, 0)
	require.NoError(t, l.Run(context.Background()))

	assert.Equal(t, map[string]string{"1": store.OutcomeFailed}, h.ledger.outcomes())
	assert.Len(t, h.recoverer.causes, 1)
}

func TestCancellationStopsCleanly(t *testing.T) {
	h := newHarness()
	h.timeline.steps = []step{{items: []types.CollectedItem{post("1", "bob")}}}
	ctx, cancel := context.WithCancel(context.Background())
	h.sleeper.OnCall = func(int) { cancel() }

	require.NoError(t, h.loop(0, 0).Run(ctx))
	assert.Empty(t, h.errs.entries)
}

func TestDeclinedItemStaysEligible(t *testing.T) {
	h := newHarness()
	h.timeline.steps = []step{{items: []types.CollectedItem{post("1", "bob")}}}
	h.responder.post = false

	require.NoError(t, h.loop(3, 0).Run(context.Background()))
	assert.Equal(t, []string{"1", "1", "1"}, h.responder.posted)
	assert.Equal(t, store.OutcomeDeclined, h.ledger.outcomes()["1"])
}

func TestPostedItemIsNeverReselected(t *testing.T) {
	h := newHarness()
	h.timeline.steps = []step{{items: []types.CollectedItem{post("1", "bob")}}}

	require.NoError(t, h.loop(3, 0).Run(context.Background()))
	assert.Equal(t, []string{"1"}, h.responder.posted)
}

func TestPreviouslyRepliedItemsAreSkipped(t *testing.T) {
	h := newHarness()
	h.ledger.preloaded = map[string]bool{"1": true}
	h.timeline.steps = []step{{items: []types.CollectedItem{post("1", "bob"), post("2", "bob")}}}

	require.NoError(t, h.loop(1, 0).Run(context.Background()))
	assert.Equal(t, []string{"2"}, h.responder.posted)
}

func TestSelectionCoversAllEligibleItems(t *testing.T) {
	h := newHarness()
	h.responder.compose = false
	var items []types.CollectedItem
	for i := 1; i <= 3; i++ {
		items = append(items, post(fmt.Sprint(i), "bob"))
	}
	h.timeline.steps = []step{{items: items}}

	require.NoError(t, h.loop(90, 0).Run(context.Background()))

	counts := map[string]int{}
	for _, id := range h.responder.composed {
		counts[id]++
	}
	require.Len(t, counts, 3)
	for id, n := range counts {
		assert.Greater(t, n, 10, "item %s picked too rarely", id)
	}
	assert.Empty(t, h.responder.posted)
}

func TestArchiveReceivesEachIDOnce(t *testing.T) {
	h := newHarness()
	h.responder.compose = false
	h.search.steps = []step{
		{items: []types.CollectedItem{post("1", "a"), post("2", "a")}},
		{items: []types.CollectedItem{post("2", "a"), post("3", "a")}},
	}
	h.timeline.steps = []step{{items: []types.CollectedItem{post("3", "a"), post("4", "a")}}}

	require.NoError(t, h.loop(3, 0).Run(context.Background()))
	assert.Equal(t, []string{"1", "2", "3", "4"}, h.archive.ids)
	assert.Equal(t, 4, h.stats.Snapshot(time.Now()).Total)
}

func TestRunCapStopsKeywordSearch(t *testing.T) {
	h := newHarness()
	h.responder.compose = false
	h.search.steps = []step{{items: []types.CollectedItem{post("1", "a"), post("2", "a"), post("3", "a")}}}

	require.NoError(t, h.loop(3, 2).Run(context.Background()))
	assert.Equal(t, 1, h.search.calls)
	assert.Equal(t, 3, h.timeline.calls)
	assert.Equal(t, 2, h.stats.Snapshot(time.Now()).Total)
	assert.Len(t, h.archive.ids, 2)
}

func TestEligible(t *testing.T) {
	withReply := post("3", "carol")
	withReply.HasExistingReply = true
	items := []types.CollectedItem{
		post("1", "@Me"),
		post("2", "bob"),
		withReply,
		post("4", "dave"),
	}

	got := Eligible(items, map[string]bool{"4": true}, "me")
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "SEARCHING", Searching.String())
	assert.Equal(t, "READING_TIMELINE", ReadingTimeline.String())
	assert.Equal(t, "RESPONDING", Responding.String())
	assert.Equal(t, "RECOVERING", Recovering.String())
}
