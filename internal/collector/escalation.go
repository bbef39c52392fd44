package collector

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/xwatch/internal/backoff"
	"github.com/ibeckermayer/xwatch/internal/stats"
	"github.com/ibeckermayer/xwatch/internal/types"
)

// PrimarySource is the structured collection path
type PrimarySource interface {
	Collect(ctx context.Context, q Query, limit int) ([]types.CollectedItem, error)
}

// FallbackSource is the page-automation collection path
type FallbackSource interface {
	Collect(ctx context.Context, q Query, budget time.Duration) ([]types.CollectedItem, error)
}

// EscalationOptions controls when the primary path is abandoned
type EscalationOptions struct {
	// RateLimitThreshold consecutive rate-limited failures trigger the fallback.
	RateLimitThreshold int
	// MaxRetries failures of any kind trigger the fallback.
	MaxRetries     int
	MaxItems       int
	FallbackBudget time.Duration
}

// Escalator runs the primary collector with backoff and switches to the
// fallback on sustained failure
type Escalator struct {
	primary   PrimarySource
	fallback  FallbackSource
	opts      EscalationOptions
	rateLimit backoff.Policy
	transient backoff.Policy
	sleeper   backoff.Sleeper
	stats     *stats.Collection
	log       zerolog.Logger
}

// NewEscalator wires the two collection paths
func NewEscalator(primary PrimarySource, fallback FallbackSource, opts EscalationOptions,
	rateLimit, transient backoff.Policy, sleeper backoff.Sleeper, st *stats.Collection, log zerolog.Logger) *Escalator {
	if opts.RateLimitThreshold < 1 {
		opts.RateLimitThreshold = 3
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 5
	}
	return &Escalator{
		primary:   primary,
		fallback:  fallback,
		opts:      opts,
		rateLimit: rateLimit.WithStats(st),
		transient: transient.WithStats(st),
		sleeper:   sleeper,
		stats:     st,
		log:       log.With().Str("component", "escalator").Logger(),
	}
}

// Collect returns the items for q. Partial results from failed primary
// attempts are merged by id with whatever the successful path returns.
func (e *Escalator) Collect(ctx context.Context, q Query) ([]types.CollectedItem, error) {
	var partial []types.CollectedItem
	rateLimited := 0

	for attempt := 1; ; attempt++ {
		items, err := e.primary.Collect(ctx, q, e.opts.MaxItems)
		partial = mergeByID(partial, items)
		if err == nil {
			return capItems(partial, e.opts.MaxItems), nil
		}
		if ctx.Err() != nil {
			return partial, ctx.Err()
		}
		var ce *types.CollectionError
		if !errors.As(err, &ce) {
			// session loss is not retried here; the caller re-authenticates
			return partial, err
		}

		policy := e.transient
		if ce.RateLimited {
			rateLimited++
			policy = e.rateLimit
			policy.RecordHit()
		} else {
			rateLimited = 0
		}
		e.log.Warn().Err(err).Int("attempt", attempt).Int("rate_limited", rateLimited).Msg("primary collection failed")

		if rateLimited >= e.opts.RateLimitThreshold || attempt >= e.opts.MaxRetries {
			return e.escalate(ctx, q, partial, err)
		}

		delay := policy.NextDelay(curvePosition(ce, rateLimited, attempt))
		if ce.RetryAfter > delay {
			delay = ce.RetryAfter
		}
		e.stats.RecordRetry()
		e.log.Info().Dur("delay", delay).Msg("backing off before retry")
		if err := e.sleeper.Sleep(ctx, delay); err != nil {
			return partial, err
		}
	}
}

// curvePosition picks the position on the curve: rate-limit delays
// grow with consecutive hits, transient ones with the attempt count
func curvePosition(ce *types.CollectionError, rateLimited, attempt int) int {
	if ce.RateLimited {
		return rateLimited
	}
	return attempt
}

func (e *Escalator) escalate(ctx context.Context, q Query, partial []types.CollectedItem, cause error) ([]types.CollectedItem, error) {
	if e.fallback == nil {
		return partial, cause
	}
	e.log.Warn().Err(cause).Msg("switching to fallback collection")
	items, err := e.fallback.Collect(ctx, q, e.opts.FallbackBudget)
	return capItems(mergeByID(partial, items), e.opts.MaxItems), err
}

func mergeByID(dst, src []types.CollectedItem) []types.CollectedItem {
	if len(src) == 0 {
		return dst
	}
	seen := make(map[string]bool, len(dst))
	for _, it := range dst {
		seen[it.ID] = true
	}
	for _, it := range src {
		if !seen[it.ID] {
			seen[it.ID] = true
			dst = append(dst, it)
		}
	}
	return dst
}

func capItems(items []types.CollectedItem, limit int) []types.CollectedItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
