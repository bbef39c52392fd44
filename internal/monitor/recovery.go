package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/xwatch/internal/auth"
	"github.com/ibeckermayer/xwatch/internal/page"
)

// Sessions acquires and invalidates the account session
type Sessions interface {
	Acquire(ctx context.Context) (*auth.Session, error)
	Invalidate(s *auth.Session)
}

// PageLogin signs the page in when its cookies are not accepted
type PageLogin interface {
	Run(ctx context.Context) error
}

// SessionRecovery re-establishes the session and page after a failure
type SessionRecovery struct {
	sessions      Sessions
	driver        page.Driver
	login         PageLogin
	screenshotDir string // empty disables error screenshots
	log           zerolog.Logger
	now           func() time.Time

	session *auth.Session
}

// NewSessionRecovery creates a recovery helper. login may be nil when the
// page only needs cookies.
func NewSessionRecovery(sessions Sessions, driver page.Driver, login PageLogin, screenshotDir string, log zerolog.Logger) *SessionRecovery {
	return &SessionRecovery{
		sessions:      sessions,
		driver:        driver,
		login:         login,
		screenshotDir: screenshotDir,
		log:           log.With().Str("component", "recovery").Logger(),
		now:           time.Now,
	}
}

// Session returns the current session, nil before Start
func (r *SessionRecovery) Session() *auth.Session {
	return r.session
}

// Start acquires the first session and loads it into the page
func (r *SessionRecovery) Start(ctx context.Context) error {
	return r.establish(ctx)
}

// Recover captures the failing page, discards the session and tab, and
// establishes a fresh session
func (r *SessionRecovery) Recover(ctx context.Context, cause error) error {
	r.log.Warn().Err(cause).Msg("recovering")
	r.screenshot(ctx, "recovery")

	r.sessions.Invalidate(r.session)
	r.session = nil

	if err := r.driver.Reset(ctx); err != nil {
		return fmt.Errorf("reset page: %w", err)
	}
	if err := r.establish(ctx); err != nil {
		r.screenshot(ctx, "recovery-failed")
		return err
	}
	r.log.Info().Msg("recovered")
	return nil
}

func (r *SessionRecovery) establish(ctx context.Context) error {
	s, err := r.sessions.Acquire(ctx)
	if err != nil {
		return err
	}
	r.session = s
	if err := r.driver.SetCookies(ctx, s.Material.Cookies); err != nil {
		return fmt.Errorf("load session into page: %w", err)
	}
	if r.login != nil {
		if err := r.login.Run(ctx); err != nil {
			return fmt.Errorf("page login: %w", err)
		}
	}
	return nil
}

func (r *SessionRecovery) screenshot(ctx context.Context, prefix string) {
	if r.screenshotDir == "" {
		return
	}
	if err := os.MkdirAll(r.screenshotDir, 0755); err != nil {
		r.log.Warn().Err(err).Msg("failed to create screenshot dir")
		return
	}
	name := fmt.Sprintf("%s-%s.png", prefix, r.now().Format("2006-01-02T15-04-05.000"))
	path := filepath.Join(r.screenshotDir, name)
	if err := r.driver.Screenshot(ctx, path); err != nil {
		r.log.Warn().Err(err).Msg("failed to capture error screenshot")
		return
	}
	r.log.Info().Str("path", path).Msg("saved error screenshot")
}
