// Package app wires configuration, storage, sessions and the collection
// pipeline into the operations the CLI exposes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ibeckermayer/xwatch/internal/auth"
	"github.com/ibeckermayer/xwatch/internal/backoff"
	"github.com/ibeckermayer/xwatch/internal/browser"
	"github.com/ibeckermayer/xwatch/internal/collector"
	"github.com/ibeckermayer/xwatch/internal/config"
	"github.com/ibeckermayer/xwatch/internal/dedup"
	"github.com/ibeckermayer/xwatch/internal/metrics"
	"github.com/ibeckermayer/xwatch/internal/monitor"
	"github.com/ibeckermayer/xwatch/internal/page"
	"github.com/ibeckermayer/xwatch/internal/reply"
	"github.com/ibeckermayer/xwatch/internal/report"
	"github.com/ibeckermayer/xwatch/internal/respond"
	"github.com/ibeckermayer/xwatch/internal/scheduler"
	"github.com/ibeckermayer/xwatch/internal/stats"
	"github.com/ibeckermayer/xwatch/internal/store"
	"github.com/ibeckermayer/xwatch/internal/types"
	"github.com/ibeckermayer/xwatch/internal/xapi"
)

// Paths are the on-disk locations the app uses
type Paths struct {
	Cache       string
	Sessions    string
	Database    string
	Screenshots string
	Exports     string
}

// DefaultPaths derives Paths from the user cache directory
func DefaultPaths() (Paths, error) {
	cache, err := config.CacheDir()
	if err != nil {
		return Paths{}, err
	}
	return PathsIn(cache), nil
}

// PathsIn lays Paths out under dir
func PathsIn(dir string) Paths {
	return Paths{
		Cache:       dir,
		Sessions:    filepath.Join(dir, "sessions"),
		Database:    filepath.Join(dir, "xwatch.db"),
		Screenshots: filepath.Join(dir, "errors"),
		Exports:     filepath.Join(dir, "exports"),
	}
}

// App holds the long-lived components of one run
type App struct {
	cfg   *config.Config
	paths Paths
	runID string
	log   zerolog.Logger

	stats     *stats.Collection
	store     *store.Store
	cookies   *auth.FileStore
	client    *xapi.Client
	sessions  *auth.Manager
	sleeper   backoff.Sleeper
	humanizer *backoff.Humanizer

	driver page.Driver // started on demand
}

// New opens storage and builds the session and query clients. The
// browser is not started until an operation needs it.
func New(cfg *config.Config, paths Paths, log zerolog.Logger) (*App, error) {
	runID := uuid.NewString()
	log = log.With().Str("run_id", runID).Logger()
	st := stats.New(time.Now())

	db, err := store.New(paths.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	client, err := xapi.New(xapi.Options{
		BaseURL:           cfg.Gateway.BaseURL,
		Timeout:           cfg.Gateway.Timeout.Duration,
		RequestsPerSecond: cfg.Limits.RequestsPerSecond,
		Burst:             cfg.Limits.Burst,
	}, st, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	seed := uint64(time.Now().UnixNano())
	sleeper := backoff.ContextSleeper{}
	humanizer := backoff.NewHumanizer(seed)
	cookies := auth.NewFileStore(paths.Sessions)

	sessions := auth.NewManager(cookies, client, credentials(cfg), auth.ManagerOptions{
		MaxRetries: cfg.Limits.MaxRetries,
		RetryDelay: cfg.Limits.RetryDelay.Duration,
		LoginPause: backoff.Range{Min: cfg.Limits.MinDelay.Duration, Max: cfg.Limits.MaxDelay.Duration},
	}, sleeper, humanizer, st, log)

	return &App{
		cfg:       cfg,
		paths:     paths,
		runID:     runID,
		log:       log,
		stats:     st,
		store:     db,
		cookies:   cookies,
		client:    client,
		sessions:  sessions,
		sleeper:   sleeper,
		humanizer: humanizer,
	}, nil
}

func credentials(cfg *config.Config) types.Credentials {
	return types.Credentials{
		Username: cfg.Account.Username,
		Password: cfg.Account.Password,
		Email:    cfg.Account.Email,
	}
}

// RunID identifies this process in logs and the error log
func (a *App) RunID() string { return a.runID }

// Stats returns the run's counters
func (a *App) Stats() *stats.Collection { return a.stats }

// Close releases the browser and the archive
func (a *App) Close() error {
	var errs []error
	if a.driver != nil {
		errs = append(errs, a.driver.Close())
		a.driver = nil
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// Login acquires a verified session and persists it
func (a *App) Login(ctx context.Context) (*auth.Session, error) {
	s, err := a.sessions.Acquire(ctx)
	if err != nil {
		return nil, a.fatal("login", err)
	}
	return s, nil
}

// ImportCookies stores cookies captured by an interactive browser login
func (a *App) ImportCookies(ctx context.Context, cookies []*network.Cookie) (*auth.Material, error) {
	m := auth.NewMaterial(cookies, time.Now())
	if !m.Usable(time.Now()) {
		return nil, errors.New("captured cookies do not contain an authenticated session")
	}
	if err := a.cookies.Save(ctx, credentials(a.cfg).Handle(), m); err != nil {
		return nil, err
	}
	return m, nil
}

// Export writes the archive to a JSON file and returns its path
func (a *App) Export(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		dir = a.paths.Exports
	}
	return a.store.ExportJSON(ctx, dir)
}

// Collect runs one keyword pass, primary with fallback, and archives the
// new items
func (a *App) Collect(ctx context.Context) (int, error) {
	p, err := a.pipeline(ctx, nil, nil)
	if err != nil {
		return 0, err
	}
	if err := p.recovery.Start(ctx); err != nil {
		return 0, a.fatal("collect", err)
	}

	items, err := p.search.Collect(ctx, p.query)
	if types.IsSessionExpired(err) {
		a.log.Warn().Err(err).Msg("session rejected, re-authenticating")
		if rerr := p.recovery.Recover(ctx, err); rerr != nil {
			return 0, a.fatal("collect", errors.Join(err, rerr))
		}
		items, err = p.search.Collect(ctx, p.query)
	}
	fresh := p.dedup.FilterNew(items)
	n, ferr := p.bridge.Forward(ctx, fresh)
	if ferr != nil {
		return 0, fmt.Errorf("failed to archive items: %w", ferr)
	}
	if err != nil && ctx.Err() == nil {
		a.log.Warn().Err(err).Int("archived", n).Msg("collection ended with an error")
		var ce *types.CollectionError
		if !errors.As(err, &ce) {
			return n, a.fatal("collect", err)
		}
	}
	return n, nil
}

// Run starts the monitoring loop with status reporting, scheduled exports
// and, when configured, the metrics endpoint. Confirmation prompts read in
// and write out. It returns nil on cancellation.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if addr := a.cfg.Telemetry.MetricsAddr; addr != "" {
		reg := prometheus.NewRegistry()
		metrics.MustRegister(reg)
		metrics.StartServer(ctx, a.log, addr, reg)
	}

	var confirmer reply.Confirmer = reply.NewTerminalConfirmer(in, out)
	if a.cfg.Loop.DryRun {
		a.log.Info().Msg("dry run: every confirmation is declined")
		confirmer = reply.Decline{}
	}

	p, err := a.pipeline(ctx, confirmer, out)
	if err != nil {
		return err
	}
	if err := p.recovery.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return a.fatal("startup", err)
	}

	loop := monitor.New(monitor.Deps{
		Search:    p.search,
		Timeline:  p.timeline,
		Responder: p.composer,
		Recoverer: p.recovery,
		Dedup:     p.dedup,
		Bridge:    p.bridge,
		Ledger:    a.store,
		ErrorLog:  a.store,
		Sleeper:   a.sleeper,
		Humanizer: a.humanizer,
		Stats:     a.stats,
		Log:       a.log,
	}, monitor.Options{
		Query:         p.query,
		Own:           credentials(a.cfg).Handle(),
		RunID:         a.runID,
		CyclePause:    backoff.Range{Min: a.cfg.Loop.CycleMinDelay.Duration, Max: a.cfg.Loop.CycleMaxDelay.Duration},
		RecoveryPause: backoff.Range{Min: a.cfg.Loop.RecoveryMinDelay.Duration, Max: a.cfg.Loop.RecoveryMaxDelay.Duration},
		Seed:          uint64(time.Now().UnixNano()),
	})

	sched, err := a.schedule(ctx, loop.State, out)
	if err != nil {
		return err
	}
	sched.Start()
	for _, j := range sched.ListJobs() {
		a.log.Info().Str("job", j.Name).Time("next_run", j.NextRun).Msg("job scheduled")
	}

	err = loop.Run(ctx)
	<-sched.Stop().Done()

	// final counters, written even when ctx is already cancelled
	if serr := sched.RunNow(context.WithoutCancel(ctx), "status", func(ctx context.Context) error {
		return a.writeStatus(ctx, loop.State().String(), out)
	}); serr != nil {
		a.log.Warn().Err(serr).Msg("failed to write final status")
	}
	return err
}

// schedule registers the status and export jobs
func (a *App) schedule(ctx context.Context, state func() monitor.State, out io.Writer) (*scheduler.Scheduler, error) {
	sched, err := scheduler.New("Local", time.Minute, a.log)
	if err != nil {
		return nil, err
	}

	if err := sched.AddEvery(ctx, "status", a.cfg.Loop.StatusInterval.Duration, a.statusJob(state, out)); err != nil {
		return nil, err
	}

	if spec := a.cfg.Loop.ExportSchedule; spec != "" {
		if err := sched.AddJob(ctx, "export", spec, func(ctx context.Context) error {
			path, err := a.Export(ctx, "")
			if err == nil {
				a.log.Info().Str("path", path).Msg("archive exported")
			}
			return err
		}); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// statusJob writes the status table unless a reply is in flight, when the
// preview and confirmation prompts share out
func (a *App) statusJob(state func() monitor.State, out io.Writer) scheduler.Job {
	return func(ctx context.Context) error {
		s := state()
		if s == monitor.Responding {
			return nil
		}
		return a.writeStatus(ctx, s.String(), out)
	}
}

func (a *App) writeStatus(ctx context.Context, state string, out io.Writer) error {
	errs, err := a.store.RecentErrors(ctx, 10)
	if err != nil {
		a.log.Debug().Err(err).Msg("failed to read error log")
	}
	return report.Write(out, report.Status{
		State:  state,
		Stats:  a.stats.Snapshot(time.Now()),
		Errors: errs,
		Now:    time.Now(),
	})
}

// Status renders the current counters and recent errors without a loop
func (a *App) Status(ctx context.Context, out io.Writer) error {
	return a.writeStatus(ctx, "IDLE", out)
}

// pipeline holds the per-run collection and reply components
type pipeline struct {
	query    collector.Query
	search   *collector.Escalator
	timeline *collector.Timeline
	composer *reply.Composer
	recovery *monitor.SessionRecovery
	dedup    *dedup.Deduplicator
	bridge   *dedup.Bridge
}

// pipeline starts the browser and builds the collection components.
// confirmer and out are only needed when replies will be posted.
func (a *App) pipeline(ctx context.Context, confirmer reply.Confirmer, out io.Writer) (*pipeline, error) {
	driver, err := a.startBrowser(ctx)
	if err != nil {
		return nil, err
	}

	cfg := a.cfg
	navTimeout := cfg.Browser.NavigationTimeout.Duration
	requestPause := backoff.Range{Min: cfg.Limits.MinDelay.Duration, Max: cfg.Limits.MaxDelay.Duration}
	seed := uint64(time.Now().UnixNano())

	query := collector.Query{
		Keywords: cfg.Search.Keywords,
		Exclude:  cfg.Search.ExcludeAccounts,
		Own:      credentials(cfg).Handle(),
	}

	timeouts := page.DefaultTimeouts()
	timeouts.Navigate = navTimeout
	login := &page.LoginFlow{
		Driver:    driver,
		Creds:     credentials(cfg),
		Timeouts:  timeouts,
		Sleeper:   a.sleeper,
		Humanizer: a.humanizer,
		Pause:     requestPause,
		Log:       a.log.With().Str("component", "page_login").Logger(),
	}

	fbOpts := collector.DefaultFallbackOptions()
	fbOpts.MaxItems = cfg.Search.MaxItems
	fbOpts.NavTimeout = navTimeout
	fbOpts.Pause = requestPause

	primary := collector.NewPrimary(a.client, a.stats, a.log)
	fallback := collector.NewFallback(driver, login, fbOpts, a.sleeper, a.humanizer, a.stats, a.log)
	search := collector.NewEscalator(primary, fallback, collector.EscalationOptions{
		RateLimitThreshold: cfg.Limits.RateLimitThreshold,
		MaxRetries:         cfg.Limits.MaxRetries,
		MaxItems:           cfg.Search.MaxItems,
		FallbackBudget:     cfg.Limits.FallbackDuration.Duration,
	}, backoff.RateLimit(seed), backoff.Transient(seed+1), a.sleeper, a.stats, a.log)

	timeline := collector.NewTimeline(driver, cfg.Search.TimelinePasses, requestPause, navTimeout,
		a.sleeper, a.humanizer, a.stats, a.log)

	var policy respond.Policy = respond.NewAnthropicPolicy(respond.AnthropicOptions{
		APIKey:    cfg.Response.APIKey,
		Model:     cfg.Response.Model,
		MaxTokens: cfg.Response.MaxTokens,
		Persona:   cfg.Response.Persona,
		Timeout:   cfg.Response.Timeout.Duration,
	}, a.store, a.log)
	if cfg.Response.APIKey == "" {
		a.log.Warn().Msg("no response api key configured, replies will be skipped")
		policy = respond.PolicyFunc(func(_ context.Context, item types.CollectedItem) (string, error) {
			return "", &types.PolicyError{ItemID: item.ID, Reason: "no api key configured"}
		})
	}
	if confirmer == nil {
		confirmer = reply.Decline{}
	}
	composer := reply.NewComposer(policy, driver, confirmer, reply.DefaultPlan(),
		a.sleeper, a.humanizer, out, a.stats, a.log)

	shotDir := ""
	if cfg.Browser.ScreenshotOnError {
		shotDir = a.paths.Screenshots
	}
	recovery := monitor.NewSessionRecovery(a.sessions, driver, login, shotDir, a.log)

	return &pipeline{
		query:    query,
		search:   search,
		timeline: timeline,
		composer: composer,
		recovery: recovery,
		dedup:    dedup.New(a.stats, cfg.Search.MaxItems),
		bridge:   dedup.NewBridge(a.store, a.log),
	}, nil
}

func (a *App) startBrowser(ctx context.Context) (page.Driver, error) {
	if a.driver != nil {
		return a.driver, nil
	}
	d, err := browser.New(ctx, browser.Options{
		Headless:  a.cfg.Browser.Headless,
		OwnHandle: credentials(a.cfg).Handle(),
	}, a.log)
	if err != nil {
		return nil, err
	}
	a.driver = d
	return d, nil
}

// fatal records err in the error log and returns it
func (a *App) fatal(op string, err error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	entry := store.ErrorEntry{
		RunID:   a.runID,
		Context: op,
		Message: err.Error(),
		Stats:   a.stats.Snapshot(time.Now()),
	}
	if lerr := a.store.AppendError(ctx, entry); lerr != nil {
		a.log.Error().Err(lerr).Msg("failed to persist fatal error")
	}
	return err
}
