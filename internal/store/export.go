package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ibeckermayer/xwatch/internal/types"
)

// Export is the on-disk JSON shape written by ExportJSON
type Export struct {
	ExportedAt time.Time             `json:"exported_at"`
	Items      []types.CollectedItem `json:"items"`
	Replies    []ReplyRecord         `json:"replies"`
	Errors     []ErrorEntry          `json:"errors"`
}

// ExportJSON writes the archive to a timestamped file in dir and returns
// its path.
func (s *Store) ExportJSON(ctx context.Context, dir string) (string, error) {
	items, err := s.Items(ctx, 0)
	if err != nil {
		return "", err
	}
	replies, err := s.Replies(ctx)
	if err != nil {
		return "", err
	}
	errs, err := s.RecentErrors(ctx, 0)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	now := time.Now()
	exp := Export{
		ExportedAt: now.UTC(),
		Items:      nonNil(items),
		Replies:    nonNil(replies),
		Errors:     nonNil(errs),
	}
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return "", err
	}

	// Dashes instead of colons for filesystem compatibility
	path := filepath.Join(dir, "export-"+now.Format("2006-01-02T15-04-05")+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
