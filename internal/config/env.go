package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// envOverlay lists the variables that override the file. Zero values
// mean "unset"; the bools are pointers so false can be expressed.
type envOverlay struct {
	Username string `envconfig:"XWATCH_USERNAME"`
	Password string `envconfig:"XWATCH_PASSWORD"`
	Email    string `envconfig:"XWATCH_EMAIL"`

	Keywords        []string `envconfig:"XWATCH_KEYWORDS"`
	ExcludeAccounts []string `envconfig:"XWATCH_EXCLUDE_ACCOUNTS"`
	MaxItems        int      `envconfig:"XWATCH_MAX_ITEMS"`

	MaxRetries         int      `envconfig:"XWATCH_MAX_RETRIES"`
	RetryDelay         Duration `envconfig:"XWATCH_RETRY_DELAY"`
	MinDelay           Duration `envconfig:"XWATCH_MIN_DELAY"`
	MaxDelay           Duration `envconfig:"XWATCH_MAX_DELAY"`
	RateLimitThreshold int      `envconfig:"XWATCH_RATE_LIMIT_THRESHOLD"`
	FallbackDuration   Duration `envconfig:"XWATCH_FALLBACK_DURATION"`

	Headless   *bool  `envconfig:"XWATCH_HEADLESS"`
	DryRun     *bool  `envconfig:"XWATCH_DRY_RUN"`
	Export     string `envconfig:"XWATCH_EXPORT_SCHEDULE"`
	GatewayURL string `envconfig:"XWATCH_GATEWAY_URL"`

	APIKey          string   `envconfig:"ANTHROPIC_API_KEY"`
	Model           string   `envconfig:"XWATCH_MODEL"`
	ResponseTimeout Duration `envconfig:"XWATCH_RESPONSE_TIMEOUT"`

	LogLevel    string `envconfig:"XWATCH_LOG_LEVEL"`
	LogPretty   *bool  `envconfig:"XWATCH_LOG_PRETTY"`
	MetricsAddr string `envconfig:"XWATCH_METRICS_ADDR"`
}

func applyEnv(cfg *Config) error {
	var env envOverlay
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	setString(&cfg.Account.Username, env.Username)
	setString(&cfg.Account.Password, env.Password)
	setString(&cfg.Account.Email, env.Email)
	if len(env.Keywords) > 0 {
		cfg.Search.Keywords = env.Keywords
	}
	if len(env.ExcludeAccounts) > 0 {
		cfg.Search.ExcludeAccounts = env.ExcludeAccounts
	}
	setInt(&cfg.Search.MaxItems, env.MaxItems)
	setInt(&cfg.Limits.MaxRetries, env.MaxRetries)
	setDuration(&cfg.Limits.RetryDelay, env.RetryDelay)
	setDuration(&cfg.Limits.MinDelay, env.MinDelay)
	setDuration(&cfg.Limits.MaxDelay, env.MaxDelay)
	setInt(&cfg.Limits.RateLimitThreshold, env.RateLimitThreshold)
	setDuration(&cfg.Limits.FallbackDuration, env.FallbackDuration)
	if env.Headless != nil {
		cfg.Browser.Headless = *env.Headless
	}
	if env.DryRun != nil {
		cfg.Loop.DryRun = *env.DryRun
	}
	setString(&cfg.Loop.ExportSchedule, env.Export)
	setString(&cfg.Gateway.BaseURL, env.GatewayURL)
	setString(&cfg.Response.APIKey, env.APIKey)
	setString(&cfg.Response.Model, env.Model)
	setDuration(&cfg.Response.Timeout, env.ResponseTimeout)
	setString(&cfg.Telemetry.LogLevel, env.LogLevel)
	if env.LogPretty != nil {
		cfg.Telemetry.LogPretty = *env.LogPretty
	}
	setString(&cfg.Telemetry.MetricsAddr, env.MetricsAddr)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *Duration, v Duration) {
	if v.Duration != 0 {
		*dst = v
	}
}
