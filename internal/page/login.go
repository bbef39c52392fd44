package page

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ibeckermayer/xwatch/internal/backoff"
	"github.com/ibeckermayer/xwatch/internal/types"
)

// Timeouts bounds each wait in the login flow
type Timeouts struct {
	Navigate time.Duration
	Field    time.Duration
	// Challenge is how long to look for the optional identity prompt.
	Challenge time.Duration
	Home      time.Duration
}

// DefaultTimeouts mirrors the platform's typical load times
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Navigate:  90 * time.Second,
		Field:     30 * time.Second,
		Challenge: 5 * time.Second,
		Home:      60 * time.Second,
	}
}

// LoginFlow signs in through the rendered login form
type LoginFlow struct {
	Driver    Driver
	Creds     types.Credentials
	Timeouts  Timeouts
	Sleeper   backoff.Sleeper
	Humanizer *backoff.Humanizer
	Pause     backoff.Range
	Log       zerolog.Logger
}

// LoggedIn reports whether the tab already shows an authenticated home page
func (f *LoginFlow) LoggedIn(ctx context.Context) bool {
	if err := f.Driver.Navigate(ctx, HomeURL, f.Timeouts.Navigate); err != nil {
		return false
	}
	return f.Driver.WaitForSelector(ctx, HomeLink, f.Timeouts.Challenge) == nil
}

// Run signs in unless the tab is already authenticated
func (f *LoginFlow) Run(ctx context.Context) error {
	if f.LoggedIn(ctx) {
		f.Log.Debug().Msg("page already authenticated")
		return nil
	}

	f.Log.Info().Msg("signing in through login page")
	if err := f.Driver.Navigate(ctx, LoginURL, f.Timeouts.Navigate); err != nil {
		return err
	}
	if err := f.fill(ctx, UsernameInput, f.Creds.Username, f.Timeouts.Field); err != nil {
		return err
	}

	// The platform sometimes asks for the recovery contact before the password.
	if err := f.Driver.WaitForSelector(ctx, ChallengeInput, f.Timeouts.Challenge); err == nil {
		if f.Creds.Email == "" {
			return &types.PageError{Action: "login", Selector: ChallengeInput, Err: errors.New("identity challenge but no recovery contact configured")}
		}
		f.Log.Info().Msg("answering identity challenge")
		if err := f.fill(ctx, ChallengeInput, f.Creds.Email, f.Timeouts.Field); err != nil {
			return err
		}
	}

	if err := f.fill(ctx, PasswordInput, f.Creds.Password, f.Timeouts.Field); err != nil {
		return err
	}
	return f.Driver.WaitForSelector(ctx, HomeLink, f.Timeouts.Home)
}

func (f *LoginFlow) fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	if err := f.Driver.Click(ctx, selector, timeout); err != nil {
		return err
	}
	if err := f.Driver.TypeText(ctx, value); err != nil {
		return err
	}
	if err := f.Sleeper.Sleep(ctx, f.Humanizer.Draw(f.Pause)); err != nil {
		return err
	}
	return f.Driver.PressKey(ctx, KeyEnter)
}
