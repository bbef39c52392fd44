// Package dedup filters items already seen during a run and forwards each
// new item to the archive at most once.
package dedup

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/xwatch/internal/stats"
	"github.com/ibeckermayer/xwatch/internal/types"
)

// Deduplicator remembers every id accepted during the run
type Deduplicator struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	limit int
	stats *stats.Collection
}

// New creates an empty Deduplicator that counts accepted items in st.
// At most limit ids are ever accepted; limit <= 0 means no cap.
func New(st *stats.Collection, limit int) *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{}), limit: limit, stats: st}
}

// FilterNew returns the items whose ids have not been seen, in input
// order, and marks them seen. Duplicates inside items are also removed.
// Once the cap is reached nothing more is accepted.
func (d *Deduplicator) FilterNew(items []types.CollectedItem) []types.CollectedItem {
	d.mu.Lock()
	var fresh []types.CollectedItem
	for _, it := range items {
		if _, ok := d.seen[it.ID]; ok {
			continue
		}
		if d.limit > 0 && len(d.seen) >= d.limit {
			break
		}
		d.seen[it.ID] = struct{}{}
		fresh = append(fresh, it)
	}
	d.mu.Unlock()

	if d.stats != nil {
		d.stats.RecordItems(fresh)
	}
	return fresh
}

// Seen reports whether id was accepted earlier
func (d *Deduplicator) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[id]
	return ok
}

// Full reports whether the cap has been reached
func (d *Deduplicator) Full() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limit > 0 && len(d.seen) >= d.limit
}

// Len returns the number of distinct ids accepted
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Archive is the sink for collected items. Append must ignore ids it
// already holds.
type Archive interface {
	Append(ctx context.Context, items []types.CollectedItem) error
}

// Bridge forwards items to an Archive, skipping ids already forwarded by
// this process so repeated cycles do not resend them
type Bridge struct {
	archive Archive
	log     zerolog.Logger

	mu        sync.Mutex
	forwarded map[string]struct{}
}

// NewBridge creates a Bridge in front of archive
func NewBridge(archive Archive, log zerolog.Logger) *Bridge {
	return &Bridge{
		archive:   archive,
		log:       log.With().Str("component", "archive_bridge").Logger(),
		forwarded: make(map[string]struct{}),
	}
}

// Forward appends the not-yet-forwarded items and returns how many were
// sent. Ids are marked forwarded only after a successful append.
func (b *Bridge) Forward(ctx context.Context, items []types.CollectedItem) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var batch []types.CollectedItem
	inBatch := make(map[string]struct{})
	for _, it := range items {
		if _, ok := b.forwarded[it.ID]; ok {
			continue
		}
		if _, ok := inBatch[it.ID]; ok {
			continue
		}
		inBatch[it.ID] = struct{}{}
		batch = append(batch, it)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if err := b.archive.Append(ctx, batch); err != nil {
		return 0, err
	}
	for id := range inBatch {
		b.forwarded[id] = struct{}{}
	}
	b.log.Debug().Int("items", len(batch)).Msg("forwarded to archive")
	return len(batch), nil
}
