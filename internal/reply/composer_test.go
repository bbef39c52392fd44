package reply

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/xwatch/internal/backoff"
	"github.com/ibeckermayer/xwatch/internal/backoff/backofftest"
	"github.com/ibeckermayer/xwatch/internal/page"
	"github.com/ibeckermayer/xwatch/internal/page/pagetest"
	"github.com/ibeckermayer/xwatch/internal/respond"
	"github.com/ibeckermayer/xwatch/internal/stats"
	"github.com/ibeckermayer/xwatch/internal/types"
)

// scriptedConfirmer answers gates in order, declining once answers run out
type scriptedConfirmer struct {
	mu      sync.Mutex
	answers []bool
	prompts []string
}

func (s *scriptedConfirmer) Confirm(_ context.Context, prompt string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.answers) == 0 {
		return false, nil
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

var target = types.CollectedItem{
	ID:           "42",
	Author:       "alice",
	Text:         "is go good?",
	CreatedAt:    1_700_000_000_000,
	PermanentURL: "https://x.com/alice/status/42",
}

type fixture struct {
	driver  *pagetest.Driver
	sleeper *backofftest.Sleeper
	confirm *scriptedConfirmer
	stats   *stats.Collection
	out     *bytes.Buffer
	c       *Composer
}

func newFixture(policy respond.Policy, answers ...bool) *fixture {
	f := &fixture{
		driver:  pagetest.New(),
		sleeper: &backofftest.Sleeper{},
		confirm: &scriptedConfirmer{answers: answers},
		stats:   stats.New(time.Now()),
		out:     &bytes.Buffer{},
	}
	if policy == nil {
		policy = respond.PolicyFunc(func(context.Context, types.CollectedItem) (string, error) {
			return "yes", nil
		})
	}
	f.c = NewComposer(policy, f.driver, f.confirm, DefaultPlan(), f.sleeper,
		backoff.NewHumanizer(1), f.out, f.stats, zerolog.Nop())
	return f
}

func TestComposeSkipsPolicyErrors(t *testing.T) {
	policy := respond.PolicyFunc(func(_ context.Context, item types.CollectedItem) (string, error) {
		return "", &types.PolicyError{ItemID: item.ID, Reason: "request failed", Err: errors.New("boom")}
	})
	f := newFixture(policy)

	text, ok := f.c.Compose(context.Background(), target)
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestComposeSkipsPlaceholder(t *testing.T) {
	policy := respond.PolicyFunc(func(context.Context, types.CollectedItem) (string, error) {
		return "🤖 unavailable", nil
	})
	_, ok := newFixture(policy).c.Compose(context.Background(), target)
	assert.False(t, ok)
}

func TestComposeReturnsText(t *testing.T) {
	text, ok := newFixture(nil).c.Compose(context.Background(), target)
	assert.True(t, ok)
	assert.Equal(t, "yes", text)
}

func TestPostRunsFullPlan(t *testing.T) {
	f := newFixture(nil, true, true)

	posted, err := f.c.Post(context.Background(), target, "go is fine")
	require.NoError(t, err)
	assert.True(t, posted)

	assert.Equal(t, "go is fine", f.driver.Typed())
	assert.Equal(t, len("go is fine"), f.driver.Count("TypeText"), "one keystroke per character")
	assert.Equal(t, []string{"Open the reply box?", "Send this reply?"}, f.confirm.prompts)

	calls := f.driver.Calls()
	assert.Equal(t, pagetest.Call{Method: "Navigate", Arg: target.PermanentURL}, calls[0])
	assert.Equal(t, pagetest.Call{Method: "Detach", Arg: target.PermanentURL}, calls[len(calls)-1])

	var keys []string
	for _, c := range calls {
		if c.Method == "PressKey" {
			keys = append(keys, c.Arg)
		}
	}
	assert.Equal(t, []string{ReplyKey, page.KeySpace, page.KeyCtrlEnter}, keys)
	assert.Equal(t, 1, f.stats.Snapshot(time.Now()).Replies)
	assert.Contains(t, f.out.String(), "is go good?")
}

func TestPostPacesTyping(t *testing.T) {
	f := newFixture(nil, true, true)
	_, err := f.c.Post(context.Background(), target, "a b")
	require.NoError(t, err)

	// Pauses after "a", " ", "b" follow the navigate/gate/press/verify/focus pauses.
	var typing []time.Duration
	for _, d := range f.sleeper.Slept {
		if d < 2*time.Second {
			typing = append(typing, d)
		}
	}
	require.Len(t, typing, 2)
	for _, d := range typing {
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}

	var wordBreak int
	for _, d := range f.sleeper.Slept {
		if d >= time.Second && d <= 1500*time.Millisecond {
			wordBreak++
		}
	}
	assert.Equal(t, 1, wordBreak)
}

func TestPostDeclineAtFirstGateTouchesNothing(t *testing.T) {
	f := newFixture(nil, false)

	posted, err := f.c.Post(context.Background(), target, "hello")
	require.NoError(t, err)
	assert.False(t, posted)
	assert.Zero(t, f.driver.Count("PressKey"))
	assert.Zero(t, f.driver.Count("TypeText"))
	assert.Zero(t, f.stats.Snapshot(time.Now()).Replies)
}

func TestPostDeclineAtSendGateDoesNotSend(t *testing.T) {
	f := newFixture(nil, true, false)

	posted, err := f.c.Post(context.Background(), target, "hello")
	require.NoError(t, err)
	assert.False(t, posted)
	assert.Equal(t, "hello", f.driver.Typed())
	for _, c := range f.driver.Calls() {
		assert.NotEqual(t, page.KeyCtrlEnter, c.Arg)
	}
	assert.Zero(t, f.driver.Count("Detach"))
}

func TestPostVerifyRetriesThenFails(t *testing.T) {
	f := newFixture(nil, true, true)
	f.driver.Missing[page.ReplyTextarea] = true

	posted, err := f.c.Post(context.Background(), target, "hello")
	assert.False(t, posted)

	var pe *types.PageError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, page.ReplyTextarea, pe.Selector)
	assert.Equal(t, 3, f.driver.Count("WaitForSelector"))

	// one initial press plus two re-presses between attempts
	n := 0
	for _, c := range f.driver.Calls() {
		if c.Method == "PressKey" && c.Arg == ReplyKey {
			n++
		}
	}
	assert.Equal(t, 3, n)
	assert.Zero(t, f.driver.Count("TypeText"))
}

func TestPostNavigationFailureIsPageError(t *testing.T) {
	f := newFixture(nil, true, true)
	f.driver.Fail["Navigate"] = &types.PageError{Action: "navigate", Err: context.DeadlineExceeded}

	_, err := f.c.Post(context.Background(), target, "hello")
	var pe *types.PageError
	require.True(t, errors.As(err, &pe))
	assert.Empty(t, f.confirm.prompts)
}

func TestPostBuildsURLWhenMissing(t *testing.T) {
	f := newFixture(nil, false)
	item := target
	item.PermanentURL = ""

	_, err := f.c.Post(context.Background(), item, "x")
	require.NoError(t, err)
	assert.Equal(t, types.StatusURL("alice", "42"), f.driver.Calls()[0].Arg)
}

func TestPostStopsOnCancel(t *testing.T) {
	f := newFixture(nil, true, true)
	ctx, cancel := context.WithCancel(context.Background())
	f.sleeper.OnCall = func(int) { cancel() }

	posted, err := f.c.Post(ctx, target, "hello")
	assert.False(t, posted)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultPlanGatesPrecedeIrreversibleSteps(t *testing.T) {
	plan := DefaultPlan()
	gateSeen := 0
	for _, s := range plan.Steps {
		switch {
		case s.Kind == StepGate:
			gateSeen++
		case s.Kind == StepPressKey && s.Key == ReplyKey:
			assert.Equal(t, 1, gateSeen, "reply surface opens after the first gate")
		case s.Kind == StepPressKey && s.Key == page.KeyCtrlEnter:
			assert.Equal(t, 2, gateSeen, "send happens after the second gate")
		}
	}
	assert.Equal(t, 2, gateSeen)
}

func TestTerminalConfirmer(t *testing.T) {
	var out bytes.Buffer
	c := NewTerminalConfirmer(strings.NewReader("y\nno\nYES\n"), &out)
	ctx := context.Background()

	ok, err := c.Confirm(ctx, "first?")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Confirm(ctx, "second?")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Confirm(ctx, "third?")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Confirm(ctx, "eof?")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, out.String(), "first? [y/N]")
}

func TestTerminalConfirmerAfterCancelledPrompt(t *testing.T) {
	r, w := io.Pipe()
	var out bytes.Buffer
	c := NewTerminalConfirmer(r, &out)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err := c.Confirm(ctx, "abandoned?")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ok)

	go func() {
		io.WriteString(w, "y\n")
		io.WriteString(w, "n\n")
		w.Close()
	}()

	ok, err = c.Confirm(context.Background(), "open?")
	require.NoError(t, err)
	assert.True(t, ok, "the next line answers the next prompt")

	ok, err = c.Confirm(context.Background(), "send?")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Confirm(context.Background(), "after eof?")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Confirm(context.Background(), "still closed?")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeclineConfirmer(t *testing.T) {
	ok, err := Decline{}.Confirm(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}
