package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Limits.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Limits.RetryDelay.Duration)
	assert.Equal(t, 1*time.Second, cfg.Limits.MinDelay.Duration)
	assert.Equal(t, 3*time.Second, cfg.Limits.MaxDelay.Duration)
	assert.Equal(t, 1000, cfg.Search.MaxItems)
	assert.Equal(t, 3, cfg.Limits.RateLimitThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Limits.FallbackDuration.Duration)
	assert.True(t, cfg.Browser.Headless)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Account.Username = "watcher"
	cfg.Search.Keywords = []string{"golang", "chromedp"}
	cfg.Limits.FallbackDuration = Dur(10 * time.Minute)

	require.NoError(t, cfg.SaveTo(path))
	loaded, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "watcher", loaded.Account.Username)
	assert.Equal(t, []string{"golang", "chromedp"}, loaded.Search.Keywords)
	assert.Equal(t, 10*time.Minute, loaded.Limits.FallbackDuration.Duration)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[account]
username = "from-file"

[limits]
max_retries = 2
min_delay = "2s"
`), 0600))

	t.Setenv("XWATCH_USERNAME", "from-env")
	t.Setenv("XWATCH_PASSWORD", "secret")
	t.Setenv("XWATCH_MAX_RETRIES", "7")
	t.Setenv("XWATCH_FALLBACK_DURATION", "45m")
	t.Setenv("XWATCH_KEYWORDS", "a,b")
	t.Setenv("XWATCH_HEADLESS", "false")
	t.Setenv("XWATCH_RESPONSE_TIMEOUT", "20s")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Account.Username)
	assert.Equal(t, "secret", cfg.Account.Password)
	assert.Equal(t, 7, cfg.Limits.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Limits.MinDelay.Duration)
	assert.Equal(t, 45*time.Minute, cfg.Limits.FallbackDuration.Duration)
	assert.Equal(t, []string{"a", "b"}, cfg.Search.Keywords)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 20*time.Second, cfg.Response.Timeout.Duration)
}

func TestInvalidFileIsReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0600))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account.username")

	cfg.Account.Username = "me"
	cfg.Account.Password = "pw"
	assert.NoError(t, cfg.Validate())

	cfg.Limits.MinDelay = Dur(10 * time.Second)
	assert.ErrorContains(t, cfg.Validate(), "limits.min_delay")
}
