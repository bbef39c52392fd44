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

// Timeline reads the followed-accounts timeline through the page
type Timeline struct {
	driver    page.Driver
	passes    int
	pause     backoff.Range
	timeout   time.Duration
	sleeper   backoff.Sleeper
	humanizer *backoff.Humanizer
	stats     *stats.Collection
	log       zerolog.Logger
}

// NewTimeline creates a timeline reader that scrolls at most passes times
func NewTimeline(driver page.Driver, passes int, pause backoff.Range, timeout time.Duration,
	sleeper backoff.Sleeper, humanizer *backoff.Humanizer, st *stats.Collection, log zerolog.Logger) *Timeline {
	if passes < 1 {
		passes = 1
	}
	return &Timeline{
		driver:    driver,
		passes:    passes,
		pause:     pause,
		timeout:   timeout,
		sleeper:   sleeper,
		humanizer: humanizer,
		stats:     st,
		log:       log.With().Str("component", "timeline").Logger(),
	}
}

// Collect opens the home timeline, switches to the Following tab when it
// is present and extracts what a few scrolls reveal
func (t *Timeline) Collect(ctx context.Context) ([]types.CollectedItem, error) {
	if err := t.driver.Navigate(ctx, page.HomeURL, t.timeout); err != nil {
		return nil, err
	}
	if err := t.driver.Click(ctx, page.FollowingTab, 10*time.Second); err != nil {
		t.log.Debug().Err(err).Msg("following tab not found, reading default timeline")
	}
	if err := t.driver.WaitForSelector(ctx, page.TweetArticle, t.timeout); err != nil {
		return nil, err
	}

	items, err := scrollCollect(ctx, t.driver, scrollConfig{
		source:       types.SourceTimeline,
		stablePasses: 2,
		scrollPixels: 800,
		maxPasses:    t.passes,
		pause:        func(ctx context.Context) error { return t.sleeper.Sleep(ctx, t.humanizer.Draw(t.pause)) },
		stats:        t.stats,
		log:          t.log,
	})
	t.log.Debug().Int("items", len(items)).Msg("timeline read")
	return items, err
}
