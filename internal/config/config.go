package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const appName = "xwatch"

// Config holds all application configuration
type Config struct {
	Version   int             `toml:"version"`
	Account   AccountConfig   `toml:"account"`
	Search    SearchConfig    `toml:"search"`
	Limits    LimitsConfig    `toml:"limits"`
	Loop      LoopConfig      `toml:"loop"`
	Browser   BrowserConfig   `toml:"browser"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Response  ResponseConfig  `toml:"response"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type AccountConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Email    string `toml:"email"`
}

type SearchConfig struct {
	Keywords        []string `toml:"keywords"`
	ExcludeAccounts []string `toml:"exclude_accounts"`
	MaxItems        int      `toml:"max_items"`
	TimelinePasses  int      `toml:"timeline_passes"`
}

type LimitsConfig struct {
	MaxRetries         int      `toml:"max_retries"`
	RetryDelay         Duration `toml:"retry_delay"`
	MinDelay           Duration `toml:"min_delay"`
	MaxDelay           Duration `toml:"max_delay"`
	RateLimitThreshold int      `toml:"rate_limit_threshold"`
	FallbackDuration   Duration `toml:"fallback_duration"`
	RequestsPerSecond  float64  `toml:"requests_per_second"`
	Burst              int      `toml:"burst"`
}

type LoopConfig struct {
	CycleMinDelay    Duration `toml:"cycle_min_delay"`
	CycleMaxDelay    Duration `toml:"cycle_max_delay"`
	RecoveryMinDelay Duration `toml:"recovery_min_delay"`
	RecoveryMaxDelay Duration `toml:"recovery_max_delay"`
	StatusInterval   Duration `toml:"status_interval"`
	ExportSchedule   string   `toml:"export_schedule"` // cron spec, empty disables
	DryRun           bool     `toml:"dry_run"`
}

type BrowserConfig struct {
	Headless          bool     `toml:"headless"`
	NavigationTimeout Duration `toml:"navigation_timeout"`
	LoginTimeout      Duration `toml:"login_timeout"`
	ScreenshotOnError bool     `toml:"screenshot_on_error"`
}

type GatewayConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout Duration `toml:"timeout"`
}

type ResponseConfig struct {
	APIKey    string   `toml:"api_key"`
	Model     string   `toml:"model"`
	MaxTokens int      `toml:"max_tokens"`
	Persona   string   `toml:"persona"`
	Timeout   Duration `toml:"timeout"` // upper bound on one generation request
}

type TelemetryConfig struct {
	LogLevel    string `toml:"log_level"`
	LogPretty   bool   `toml:"log_pretty"`
	MetricsAddr string `toml:"metrics_addr"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Search: SearchConfig{
			Keywords:        []string{},
			ExcludeAccounts: []string{},
			MaxItems:        1000,
			TimelinePasses:  3,
		},
		Limits: LimitsConfig{
			MaxRetries:         5,
			RetryDelay:         Dur(5 * time.Second),
			MinDelay:           Dur(1 * time.Second),
			MaxDelay:           Dur(3 * time.Second),
			RateLimitThreshold: 3,
			FallbackDuration:   Dur(30 * time.Minute),
			RequestsPerSecond:  0.5,
			Burst:              1,
		},
		Loop: LoopConfig{
			CycleMinDelay:    Dur(5 * time.Second),
			CycleMaxDelay:    Dur(8 * time.Second),
			RecoveryMinDelay: Dur(30 * time.Second),
			RecoveryMaxDelay: Dur(60 * time.Second),
			StatusInterval:   Dur(10 * time.Second),
			ExportSchedule:   "0 3 * * *",
		},
		Browser: BrowserConfig{
			Headless:          true,
			NavigationTimeout: Dur(90 * time.Second),
			LoginTimeout:      Dur(5 * time.Minute),
			ScreenshotOnError: true,
		},
		Gateway: GatewayConfig{
			BaseURL: "http://127.0.0.1:8787",
			Timeout: Dur(15 * time.Second),
		},
		Response: ResponseConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 300,
			Timeout:   Dur(60 * time.Second),
		},
		Telemetry: TelemetryConfig{
			LogLevel: "info",
		},
	}
}

// Validate reports configuration that cannot produce a working run
func (c *Config) Validate() error {
	var errs []error
	if c.Account.Username == "" {
		errs = append(errs, errors.New("account.username is required"))
	}
	if c.Account.Password == "" {
		errs = append(errs, errors.New("account.password is required"))
	}
	if c.Limits.MaxRetries < 1 {
		errs = append(errs, errors.New("limits.max_retries must be at least 1"))
	}
	if c.Limits.MinDelay.Duration > c.Limits.MaxDelay.Duration {
		errs = append(errs, fmt.Errorf("limits.min_delay %s exceeds limits.max_delay %s", c.Limits.MinDelay, c.Limits.MaxDelay))
	}
	if c.Loop.CycleMinDelay.Duration > c.Loop.CycleMaxDelay.Duration {
		errs = append(errs, errors.New("loop.cycle_min_delay exceeds loop.cycle_max_delay"))
	}
	if c.Search.MaxItems < 1 {
		errs = append(errs, errors.New("search.max_items must be positive"))
	}
	if c.Limits.RateLimitThreshold < 1 {
		errs = append(errs, errors.New("limits.rate_limit_threshold must be at least 1"))
	}
	return errors.Join(errs...)
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName), nil
}

// CacheDir returns the platform-appropriate cache directory
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, appName), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file, falling back to defaults when it does not
// exist, then applies environment overrides.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file path
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes config to path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(c)
}
