package collector

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/xwatch/internal/stats"
	"github.com/ibeckermayer/xwatch/internal/types"
	"github.com/ibeckermayer/xwatch/internal/xapi"
)

// Searcher is the structured query surface
type Searcher interface {
	Search(query string, limit int, mode xapi.SearchMode) xapi.Cursor
}

// Primary collects through the structured query gateway
type Primary struct {
	search Searcher
	stats  *stats.Collection
	log    zerolog.Logger
}

// NewPrimary creates a primary collector
func NewPrimary(search Searcher, st *stats.Collection, log zerolog.Logger) *Primary {
	return &Primary{search: search, stats: st, log: log.With().Str("component", "primary").Logger()}
}

// Collect returns up to limit matching items, newest first as the gateway
// delivers them. Raw records are filtered on keywords before normalization;
// records that fail normalization are dropped. On a query failure the items
// gathered so far are returned with a *types.CollectionError, or with a
// *types.SessionError when the gateway rejects the session.
func (p *Primary) Collect(ctx context.Context, q Query, limit int) ([]types.CollectedItem, error) {
	cur := p.search.Search(q.String(), 0, xapi.ModeLatest)
	var items []types.CollectedItem
	for (limit <= 0 || len(items) < limit) && cur.Next(ctx) {
		rec := cur.Record()
		if !q.Matches(rec.Text) {
			continue
		}
		item, err := rec.Normalize(types.SourceSearch)
		if err != nil {
			p.stats.RecordDropped()
			p.log.Debug().Err(err).Str("id", rec.ID).Msg("dropping malformed item")
			continue
		}
		items = append(items, item)
	}

	if err := cur.Err(); err != nil {
		if types.IsSessionExpired(err) {
			return items, err
		}
		var ce *types.CollectionError
		if !errors.As(err, &ce) {
			if ctx.Err() != nil {
				return items, ctx.Err()
			}
			err = &types.CollectionError{Op: "search", Err: err}
		}
		return items, err
	}
	p.log.Debug().Int("items", len(items)).Str("query", q.String()).Msg("primary collection finished")
	return items, nil
}
