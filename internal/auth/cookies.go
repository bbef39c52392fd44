package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/chromedp/cdproto/network"
)

// Cookies the platform requires for an authenticated session
var requiredCookies = []string{"auth_token", "ct0"}

// Material is the persisted session material for one account
type Material struct {
	Cookies    []*network.Cookie `json:"cookies"`
	CapturedAt time.Time         `json:"captured_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// NewMaterial wraps cookies captured at now, deriving the expiry from the
// earliest-expiring auth cookie
func NewMaterial(cookies []*network.Cookie, now time.Time) *Material {
	var earliest time.Time
	for _, c := range cookies {
		if !isRequired(c.Name) || c.Expires <= 0 {
			continue
		}
		exp := time.Unix(int64(c.Expires), 0)
		if earliest.IsZero() || exp.Before(earliest) {
			earliest = exp
		}
	}
	return &Material{Cookies: cookies, CapturedAt: now, ExpiresAt: earliest}
}

// Usable reports whether the material has the auth cookies and has not
// expired. A zero ExpiresAt means session cookies with no expiry.
func (m *Material) Usable(now time.Time) bool {
	if m == nil {
		return false
	}
	if !m.ExpiresAt.IsZero() && now.After(m.ExpiresAt) {
		return false
	}
	found := 0
	for _, name := range requiredCookies {
		for _, c := range m.Cookies {
			if c.Name == name && c.Value != "" {
				found++
				break
			}
		}
	}
	return found == len(requiredCookies)
}

func isRequired(name string) bool {
	for _, n := range requiredCookies {
		if n == name {
			return true
		}
	}
	return false
}

// FileStore persists Material as one JSON file per account
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

func (s *FileStore) path(account string) string {
	return filepath.Join(s.dir, unsafeChars.ReplaceAllString(account, "_")+".json")
}

// Load returns the stored material for account, or nil when none exists
func (s *FileStore) Load(ctx context.Context, account string) (*Material, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(account))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var m Material
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("corrupt session file for %s: %w", account, err)
	}
	return &m, nil
}

// Save writes material atomically: a crash leaves either the old file or
// the new one, never a partial write.
// TODO: Encrypt cookies at rest
func (s *FileStore) Save(ctx context.Context, account string, m *Material) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(account))
}

// Clear removes stored material for account
func (s *FileStore) Clear(account string) error {
	err := os.Remove(s.path(account))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
