package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/xwatch/internal/auth"
	"github.com/ibeckermayer/xwatch/internal/page/pagetest"
)

type fakeSessions struct {
	acquired    int
	invalidated []*auth.Session
	err         error
}

func (f *fakeSessions) Acquire(context.Context) (*auth.Session, error) {
	f.acquired++
	if f.err != nil {
		return nil, f.err
	}
	cookies := []*network.Cookie{{Name: "auth_token", Value: "t"}, {Name: "ct0", Value: "c"}}
	return &auth.Session{Account: "me", Material: auth.NewMaterial(cookies, time.Now()), Valid: true}, nil
}

func (f *fakeSessions) Invalidate(s *auth.Session) {
	f.invalidated = append(f.invalidated, s)
}

type countingLogin struct {
	runs int
	err  error
}

func (c *countingLogin) Run(context.Context) error {
	c.runs++
	return c.err
}

func TestSessionRecoveryStartLoadsCookies(t *testing.T) {
	sessions := &fakeSessions{}
	driver := pagetest.New()
	login := &countingLogin{}
	r := NewSessionRecovery(sessions, driver, login, "", zerolog.Nop())

	require.NoError(t, r.Start(context.Background()))
	assert.Equal(t, 1, sessions.acquired)
	assert.Equal(t, 1, driver.Count("SetCookies"))
	assert.Equal(t, 1, login.runs)
	require.NotNil(t, r.Session())
	assert.True(t, r.Session().Valid)
}

func TestSessionRecoveryReplacesSession(t *testing.T) {
	sessions := &fakeSessions{}
	driver := pagetest.New()
	dir := t.TempDir()
	r := NewSessionRecovery(sessions, driver, &countingLogin{}, dir, zerolog.Nop())
	require.NoError(t, r.Start(context.Background()))
	first := r.Session()

	require.NoError(t, r.Recover(context.Background(), errors.New("timeout")))

	require.Equal(t, []*auth.Session{first}, sessions.invalidated)
	assert.Equal(t, 2, sessions.acquired)
	assert.Equal(t, 1, driver.Count("Reset"))
	assert.NotSame(t, first, r.Session())

	var shots []string
	for _, c := range driver.Calls() {
		if c.Method == "Screenshot" {
			shots = append(shots, c.Arg)
		}
	}
	require.Len(t, shots, 1)
	assert.Equal(t, dir, filepath.Dir(shots[0]))
	assert.True(t, strings.HasPrefix(filepath.Base(shots[0]), "recovery-"))
}

func TestSessionRecoveryFailsWhenLoginFails(t *testing.T) {
	sessions := &fakeSessions{}
	driver := pagetest.New()
	login := &countingLogin{}
	r := NewSessionRecovery(sessions, driver, login, t.TempDir(), zerolog.Nop())
	require.NoError(t, r.Start(context.Background()))

	login.err = errors.New("home link missing")
	err := r.Recover(context.Background(), errors.New("timeout"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "home link missing")
	assert.Equal(t, 2, driver.Count("Screenshot"))
}

func TestSessionRecoveryPropagatesAuthFailure(t *testing.T) {
	sessions := &fakeSessions{}
	driver := pagetest.New()
	r := NewSessionRecovery(sessions, driver, nil, "", zerolog.Nop())
	require.NoError(t, r.Start(context.Background()))

	sessions.err = errors.New("locked")
	require.Error(t, r.Recover(context.Background(), errors.New("401")))
	assert.Nil(t, r.Session())
	assert.Zero(t, driver.Count("Screenshot"))
}
