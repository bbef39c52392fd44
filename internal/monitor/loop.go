package monitor

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/xwatch/internal/backoff"
	"github.com/ibeckermayer/xwatch/internal/collector"
	"github.com/ibeckermayer/xwatch/internal/dedup"
	"github.com/ibeckermayer/xwatch/internal/metrics"
	"github.com/ibeckermayer/xwatch/internal/stats"
	"github.com/ibeckermayer/xwatch/internal/store"
	"github.com/ibeckermayer/xwatch/internal/types"
)

// Searcher runs one keyword collection pass, escalating to the fallback
// path internally
type Searcher interface {
	Collect(ctx context.Context, q collector.Query) ([]types.CollectedItem, error)
}

// TimelineReader runs one timeline collection pass
type TimelineReader interface {
	Collect(ctx context.Context) ([]types.CollectedItem, error)
}

// Responder composes and posts a reply
type Responder interface {
	Compose(ctx context.Context, item types.CollectedItem) (string, bool)
	Post(ctx context.Context, item types.CollectedItem, text string) (bool, error)
}

// Recoverer re-establishes a working session after an error
type Recoverer interface {
	Recover(ctx context.Context, cause error) error
}

// Ledger remembers reply decisions across runs
type Ledger interface {
	RecordReply(ctx context.Context, r store.ReplyRecord) error
	RepliedIDs(ctx context.Context) (map[string]bool, error)
}

// ErrorLog persists fatal errors
type ErrorLog interface {
	AppendError(ctx context.Context, e store.ErrorEntry) error
}

// Deps are the collaborators of a Loop
type Deps struct {
	Search    Searcher
	Timeline  TimelineReader
	Responder Responder
	Recoverer Recoverer
	Dedup     *dedup.Deduplicator
	Bridge    *dedup.Bridge
	Ledger    Ledger
	ErrorLog  ErrorLog
	Sleeper   backoff.Sleeper
	Humanizer *backoff.Humanizer
	Stats     *stats.Collection
	Log       zerolog.Logger
}

// Options configures a Loop
type Options struct {
	Query         collector.Query
	Own           string
	RunID         string
	CyclePause    backoff.Range
	RecoveryPause backoff.Range
	// MaxCycles stops the loop after that many completed cycles. Zero runs
	// until the context is cancelled.
	MaxCycles int
	Seed      uint64
}

// Loop is the monitoring state machine. It is not safe for concurrent use.
type Loop struct {
	Deps
	opts Options
	rng  *rand.Rand
	log  zerolog.Logger

	state      State
	published  atomic.Int32 // state, readable from other goroutines
	cause      error
	cycles     int
	replied    map[string]bool
	candidates []types.CollectedItem
	eligible   []types.CollectedItem
	pending    []types.CollectedItem
	capLogged  bool
}

// New creates a Loop in the SEARCHING state
func New(deps Deps, opts Options) *Loop {
	return &Loop{
		Deps:    deps,
		opts:    opts,
		rng:     rand.New(rand.NewPCG(opts.Seed, opts.Seed>>1|1)),
		log:     deps.Log.With().Str("component", "monitor").Str("run_id", opts.RunID).Logger(),
		state:   Searching,
		replied: make(map[string]bool),
	}
}

// State returns the current state. Safe to call while Run is active.
func (l *Loop) State() State { return State(l.published.Load()) }

// Cycles returns the number of completed cycles
func (l *Loop) Cycles() int { return l.cycles }

// Run drives the loop until ctx is cancelled, MaxCycles is reached or a
// fatal error occurs. Cancellation is a normal stop and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if ids, err := l.Ledger.RepliedIDs(ctx); err != nil {
		l.log.Warn().Err(err).Msg("failed to load reply history")
	} else {
		for id := range ids {
			l.replied[id] = true
		}
	}
	l.log.Info().Str("query", l.opts.Query.String()).Int("replied", len(l.replied)).Msg("monitoring started")

	for {
		if ctx.Err() != nil {
			return nil
		}

		var err error
		switch l.state {
		case Searching:
			err = l.search(ctx)
		case ReadingTimeline:
			err = l.readTimeline(ctx)
		case Responding:
			err = l.respond(ctx)
		case Recovering:
			err = l.recover(ctx)
		}

		if ctx.Err() != nil {
			l.log.Info().Int("cycles", l.cycles).Msg("monitoring stopped")
			return nil
		}
		if err != nil {
			if l.state == Recovering || types.IsFatal(err) {
				return l.fatal(err)
			}
			l.log.Warn().Err(err).Stringer("state", l.state).Msg("cycle failed")
			l.cause = err
			l.transition(Recovering)
			continue
		}
		if l.opts.MaxCycles > 0 && l.cycles >= l.opts.MaxCycles && l.state == Searching {
			l.log.Info().Int("cycles", l.cycles).Msg("cycle limit reached")
			return nil
		}
	}
}

func (l *Loop) search(ctx context.Context) error {
	l.candidates = nil
	l.eligible = nil

	if l.Dedup.Full() {
		if !l.capLogged {
			l.log.Warn().Int("items", l.Dedup.Len()).Msg("collection cap reached, skipping keyword search")
			l.capLogged = true
		}
		l.transition(ReadingTimeline)
		return nil
	}

	items, err := l.Search.Collect(ctx, l.opts.Query)
	l.ingest(ctx, items)
	if err != nil {
		var ce *types.CollectionError
		if !errors.As(err, &ce) {
			return err
		}
		l.log.Warn().Err(err).Int("partial", len(items)).Msg("keyword search failed, continuing with timeline")
	}
	l.candidates = merge(l.candidates, items)
	l.transition(ReadingTimeline)
	return nil
}

func (l *Loop) readTimeline(ctx context.Context) error {
	items, err := l.Timeline.Collect(ctx)
	if err != nil {
		return err
	}
	l.ingest(ctx, items)
	l.candidates = merge(l.candidates, items)

	l.eligible = Eligible(l.candidates, l.replied, l.opts.Own)
	l.log.Debug().Int("candidates", len(l.candidates)).Int("eligible", len(l.eligible)).Msg("timeline read")
	if len(l.eligible) == 0 {
		return l.endCycle(ctx)
	}
	l.transition(Responding)
	return nil
}

func (l *Loop) respond(ctx context.Context) error {
	item := l.eligible[l.rng.IntN(len(l.eligible))]
	log := l.log.With().Str("item_id", item.ID).Str("author", item.Author).Logger()

	text, ok := l.Responder.Compose(ctx, item)
	if !ok {
		l.recordReply(ctx, item, "", store.OutcomeSkipped)
		return l.endCycle(ctx)
	}

	posted, err := l.Responder.Post(ctx, item, text)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return err
		}
		l.recordReply(ctx, item, text, store.OutcomeFailed)
		return err
	case posted:
		l.replied[item.ID] = true
		l.recordReply(ctx, item, text, store.OutcomePosted)
	default:
		log.Info().Msg("reply declined")
		l.recordReply(ctx, item, text, store.OutcomeDeclined)
	}
	return l.endCycle(ctx)
}

func (l *Loop) recover(ctx context.Context) error {
	if err := l.Recoverer.Recover(ctx, l.cause); err != nil {
		return errors.Join(l.cause, err)
	}
	l.cause = nil
	l.cycles++
	if err := l.pause(ctx, l.opts.RecoveryPause); err != nil {
		return err
	}
	l.transition(Searching)
	return nil
}

// ingest forwards newly seen items to the archive. Items from a failed
// append are retried with the next batch.
func (l *Loop) ingest(ctx context.Context, items []types.CollectedItem) {
	batch := append(l.pending, l.Dedup.FilterNew(items)...)
	if len(batch) == 0 {
		return
	}
	n, err := l.Bridge.Forward(ctx, batch)
	if err != nil {
		l.log.Warn().Err(err).Int("pending", len(batch)).Msg("archive append failed")
		l.pending = batch
		return
	}
	l.pending = nil
	l.log.Debug().Int("archived", n).Msg("items archived")
}

func (l *Loop) recordReply(ctx context.Context, item types.CollectedItem, text, outcome string) {
	metrics.Replies.WithLabelValues(outcome).Inc()
	err := l.Ledger.RecordReply(ctx, store.ReplyRecord{
		ItemID:  item.ID,
		Text:    text,
		Outcome: outcome,
		RunID:   l.opts.RunID,
	})
	if err != nil {
		l.log.Warn().Err(err).Str("item_id", item.ID).Msg("failed to record reply")
	}
}

func (l *Loop) endCycle(ctx context.Context) error {
	l.cycles++
	l.transition(Searching)
	return l.pause(ctx, l.opts.CyclePause)
}

func (l *Loop) pause(ctx context.Context, r backoff.Range) error {
	return l.Sleeper.Sleep(ctx, l.Humanizer.Draw(r))
}

func (l *Loop) transition(to State) {
	if to == l.state {
		return
	}
	metrics.StateTransitions.WithLabelValues(l.state.String(), to.String()).Inc()
	l.log.Debug().Stringer("from", l.state).Stringer("to", to).Msg("state transition")
	l.state = to
	l.published.Store(int32(to))
}

// fatal persists err with the current stats and returns it
func (l *Loop) fatal(err error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry := store.ErrorEntry{
		RunID:   l.opts.RunID,
		Context: l.state.String(),
		Message: err.Error(),
		Stats:   l.Stats.Snapshot(time.Now()),
	}
	if lerr := l.ErrorLog.AppendError(ctx, entry); lerr != nil {
		l.log.Error().Err(lerr).Msg("failed to persist fatal error")
	}
	l.log.Error().Err(err).Stringer("state", l.state).Msg("fatal error")
	return err
}
