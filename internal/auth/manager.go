package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/rs/zerolog"

	"github.com/ibeckermayer/xwatch/internal/backoff"
	"github.com/ibeckermayer/xwatch/internal/stats"
	"github.com/ibeckermayer/xwatch/internal/types"
)

// Store persists session material per account
type Store interface {
	Load(ctx context.Context, account string) (*Material, error)
	Save(ctx context.Context, account string, m *Material) error
}

// Platform is the authenticated surface a session is verified against
type Platform interface {
	SetCookies(cookies []*network.Cookie)
	Cookies() []*network.Cookie
	IsAuthenticated(ctx context.Context) (bool, error)
	Login(ctx context.Context, creds types.Credentials) error
}

// Session is an authenticated context for one account. A session with
// Valid false must not be used for requests.
type Session struct {
	Account    string
	Material   *Material
	Valid      bool
	VerifiedAt time.Time
}

// ManagerOptions tunes login retries
type ManagerOptions struct {
	MaxRetries int
	RetryDelay time.Duration
	// LoginPause is the humanized wait before each login attempt.
	LoginPause backoff.Range
}

// Manager acquires, verifies and invalidates sessions
type Manager struct {
	store     Store
	platform  Platform
	creds     types.Credentials
	opts      ManagerOptions
	policy    backoff.Policy
	sleeper   backoff.Sleeper
	humanizer *backoff.Humanizer
	stats     *stats.Collection
	log       zerolog.Logger
	now       func() time.Time

	// accounts whose stored material must not be reused
	invalidated map[string]bool
}

// NewManager creates a session manager
func NewManager(store Store, platform Platform, creds types.Credentials, opts ManagerOptions,
	sleeper backoff.Sleeper, humanizer *backoff.Humanizer, st *stats.Collection, log zerolog.Logger) *Manager {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if st == nil {
		st = stats.New(time.Now())
	}
	policy := backoff.Policy{
		Base:   opts.RetryDelay,
		Factor: 2,
		Clamp:  15 * time.Minute,
		Jitter: 0.2,
		Seed:   uint64(time.Now().UnixNano()),
	}.WithStats(st)
	return &Manager{
		store:     store,
		platform:  platform,
		creds:     creds,
		opts:      opts,
		policy:    policy,
		sleeper:   sleeper,
		humanizer: humanizer,
		stats:     st,
		log:       log.With().Str("component", "auth").Logger(),
		now:       time.Now,

		invalidated: make(map[string]bool),
	}
}

// Acquire returns a verified session, logging in when persisted material is
// absent or rejected. Exhausted login attempts yield an *types.AuthError.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	account := m.creds.Handle()

	if m.invalidated[account] {
		return m.login(ctx, account)
	}

	material, err := m.store.Load(ctx, account)
	if err != nil {
		m.log.Warn().Err(err).Msg("failed to load stored session, logging in")
	}
	if material.Usable(m.now()) {
		s := &Session{Account: account, Material: material}
		if m.Verify(ctx, s) {
			m.log.Info().Str("account", account).Msg("reusing stored session")
			return s, nil
		}
		m.log.Info().Str("account", account).Msg("stored session rejected, logging in")
	}

	return m.login(ctx, account)
}

func (m *Manager) login(ctx context.Context, account string) (*Session, error) {
	var lastErr error
	for attempt := 1; attempt <= m.opts.MaxRetries; attempt++ {
		if err := m.sleeper.Sleep(ctx, m.humanizer.Draw(m.opts.LoginPause)); err != nil {
			return nil, err
		}

		m.log.Info().Str("account", account).Int("attempt", attempt).Msg("logging in")
		err := m.platform.Login(ctx, m.creds)
		if err == nil {
			ok, verr := m.platform.IsAuthenticated(ctx)
			if verr == nil && ok {
				return m.persist(ctx, account)
			}
			err = errors.Join(errors.New("login did not produce an authenticated session"), verr)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		m.log.Warn().Err(err).Int("attempt", attempt).Msg("login attempt failed")
		if attempt == m.opts.MaxRetries {
			break
		}
		m.stats.RecordRetry()
		if err := m.sleeper.Sleep(ctx, m.policy.NextDelay(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, &types.AuthError{Account: account, Attempts: m.opts.MaxRetries, Err: lastErr}
}

func (m *Manager) persist(ctx context.Context, account string) (*Session, error) {
	now := m.now()
	material := NewMaterial(m.platform.Cookies(), now)
	if err := m.store.Save(ctx, account, material); err != nil {
		m.log.Error().Err(err).Msg("failed to persist session")
		return nil, &types.AuthError{Account: account, Attempts: 1, Err: fmt.Errorf("failed to persist session: %w", err)}
	}
	delete(m.invalidated, account)
	m.log.Info().Str("account", account).Int("cookies", len(material.Cookies)).Msg("session persisted")
	return &Session{Account: account, Material: material, Valid: true, VerifiedAt: now}, nil
}

// Verify checks the session with a lightweight authenticated call and
// updates its Valid flag
func (m *Manager) Verify(ctx context.Context, s *Session) bool {
	if s == nil || s.Material == nil {
		return false
	}
	m.platform.SetCookies(s.Material.Cookies)
	ok, err := m.platform.IsAuthenticated(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("session verification failed")
	}
	s.Valid = err == nil && ok
	if s.Valid {
		s.VerifiedAt = m.now()
	}
	return s.Valid
}

// Invalidate marks the session unusable. The next Acquire logs in again.
func (m *Manager) Invalidate(s *Session) {
	if s == nil {
		return
	}
	s.Valid = false
	m.invalidated[s.Account] = true
	m.log.Info().Str("account", s.Account).Msg("session invalidated")
}
