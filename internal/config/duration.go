package config

import "time"

// Duration is a time.Duration that reads and writes as "90s", "5m" in
// both TOML and environment variables.
type Duration struct {
	time.Duration
}

// Dur wraps a time.Duration
func Dur(d time.Duration) Duration { return Duration{d} }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}
