package collector

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/xwatch/internal/backoff"
	"github.com/ibeckermayer/xwatch/internal/page"
	"github.com/ibeckermayer/xwatch/internal/stats"
	"github.com/ibeckermayer/xwatch/internal/types"
)

// FallbackOptions tunes page-automation collection
type FallbackOptions struct {
	// StablePasses is how many consecutive scrolls without a new id end
	// the collection.
	StablePasses int
	ScrollPixels int
	// Pause is the humanized wait after each scroll.
	Pause      backoff.Range
	MaxItems   int
	NavTimeout time.Duration
}

// DefaultFallbackOptions returns the standard fallback tuning
func DefaultFallbackOptions() FallbackOptions {
	return FallbackOptions{
		StablePasses: 3,
		ScrollPixels: 500,
		Pause:        backoff.Range{Min: time.Second, Max: 3 * time.Second},
		MaxItems:     1000,
		NavTimeout:   90 * time.Second,
	}
}

// Authenticator signs the page in before collection
type Authenticator interface {
	Run(ctx context.Context) error
}

// Fallback collects by scrolling the live search page
type Fallback struct {
	driver    page.Driver
	login     Authenticator
	opts      FallbackOptions
	sleeper   backoff.Sleeper
	humanizer *backoff.Humanizer
	stats     *stats.Collection
	log       zerolog.Logger
	now       func() time.Time
}

// NewFallback creates a fallback collector
func NewFallback(driver page.Driver, login Authenticator, opts FallbackOptions, sleeper backoff.Sleeper,
	humanizer *backoff.Humanizer, st *stats.Collection, log zerolog.Logger) *Fallback {
	if opts.StablePasses < 1 {
		opts.StablePasses = 3
	}
	return &Fallback{
		driver:    driver,
		login:     login,
		opts:      opts,
		sleeper:   sleeper,
		humanizer: humanizer,
		stats:     st,
		log:       log.With().Str("component", "fallback").Logger(),
		now:       time.Now,
	}
}

// Collect signs in, opens the live search for q and scrolls until
// StablePasses consecutive passes add no new id, MaxItems is reached or
// budget elapses. Items gathered before a page failure are returned with
// the error.
func (f *Fallback) Collect(ctx context.Context, q Query, budget time.Duration) ([]types.CollectedItem, error) {
	start := f.now()
	f.log.Info().Str("query", q.String()).Dur("budget", budget).Msg("starting fallback collection")

	if err := f.login.Run(ctx); err != nil {
		return nil, err
	}
	if err := f.driver.Navigate(ctx, q.SearchURL(), f.opts.NavTimeout); err != nil {
		return nil, err
	}
	if err := f.driver.WaitForSelector(ctx, page.TweetArticle, f.opts.NavTimeout); err != nil {
		return nil, err
	}

	items, err := scrollCollect(ctx, f.driver, scrollConfig{
		source:       types.SourceSearch,
		match:        q.Matches,
		stablePasses: f.opts.StablePasses,
		scrollPixels: f.opts.ScrollPixels,
		maxItems:     f.opts.MaxItems,
		pause:        func(ctx context.Context) error { return f.sleeper.Sleep(ctx, f.humanizer.Draw(f.opts.Pause)) },
		expired:      func() bool { return budget > 0 && f.now().Sub(start) >= budget },
		stats:        f.stats,
		log:          f.log,
	})
	f.stats.RecordFallback(len(items))
	f.log.Info().Int("items", len(items)).Dur("took", f.now().Sub(start)).Msg("fallback collection finished")
	return items, err
}

type scrollConfig struct {
	source       types.Source
	match        func(string) bool
	stablePasses int
	scrollPixels int
	maxItems     int
	// maxPasses bounds the number of extractions; zero means no bound.
	maxPasses int
	pause     func(context.Context) error
	expired   func() bool
	stats     *stats.Collection
	log       zerolog.Logger
}

// scrollCollect extracts, dedupes in memory and scrolls until the page
// stops producing new ids
func scrollCollect(ctx context.Context, d page.Driver, cfg scrollConfig) ([]types.CollectedItem, error) {
	var items []types.CollectedItem
	seen := make(map[string]bool)
	stable := 0

	for pass := 1; ; pass++ {
		records, err := d.ExtractVisibleItems(ctx)
		if err != nil {
			return items, err
		}

		fresh := 0
		for _, rec := range records {
			if seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true
			fresh++
			item, err := rec.Normalize(cfg.source)
			if err != nil {
				cfg.stats.RecordDropped()
				cfg.log.Debug().Err(err).Msg("dropping malformed item")
				continue
			}
			if cfg.match != nil && !cfg.match(item.Text) {
				continue
			}
			items = append(items, item)
			if cfg.maxItems > 0 && len(items) >= cfg.maxItems {
				return items, nil
			}
		}

		if fresh == 0 {
			stable++
		} else {
			stable = 0
		}
		if stable >= cfg.stablePasses {
			cfg.log.Debug().Int("pass", pass).Msg("no new items, stopping")
			return items, nil
		}
		if cfg.maxPasses > 0 && pass >= cfg.maxPasses {
			return items, nil
		}
		if cfg.expired != nil && cfg.expired() {
			cfg.log.Info().Int("pass", pass).Msg("time budget exhausted")
			return items, nil
		}

		if err := d.Scroll(ctx, cfg.scrollPixels); err != nil {
			return items, err
		}
		if err := cfg.pause(ctx); err != nil {
			return items, err
		}
	}
}
