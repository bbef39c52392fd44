package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	xbrowser "github.com/ibeckermayer/xwatch/internal/browser"
	"github.com/ibeckermayer/xwatch/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring loop until interrupted",
	Long: `Search for the configured keywords, read the timeline and offer one
reply per cycle. Every reply is previewed and needs two confirmations:
before the reply box opens and before it is sent.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Run(cmd.Context(), os.Stdin, os.Stdout)
	},
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one keyword collection pass into the archive",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Collect(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("archived %d new items\n", n)
		return a.Status(cmd.Context(), os.Stdout)
	},
}

var interactiveLogin bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Establish and store a session",
	Long: `Verify the stored session or log in with the configured credentials.
With --interactive a visible browser opens on the login page and the
session is captured once you have signed in by hand.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(!interactiveLogin)
		if err != nil {
			return err
		}
		defer a.Close()

		if interactiveLogin {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cookies, err := xbrowser.InteractiveLogin(cmd.Context(), cfg.Browser.LoginTimeout.Duration)
			if err != nil {
				return err
			}
			m, err := a.ImportCookies(cmd.Context(), cookies)
			if err != nil {
				return err
			}
			if m.ExpiresAt.IsZero() {
				fmt.Println("session stored")
			} else {
				fmt.Printf("session stored, expires %s\n", m.ExpiresAt.Format("2006-01-02 15:04"))
			}
			return nil
		}

		s, err := a.Login(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("session for @%s is valid\n", s.Account)
		return nil
	},
}

var exportDir string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the archive, reply log and error log to JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := a.Export(cmd.Context(), exportDir)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent errors from the error log",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Status(cmd.Context(), os.Stdout)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file if none exists",
	RunE: func(_ *cobra.Command, _ []string) error {
		path := configPath
		if path == "" {
			p, err := config.ConfigPath()
			if err != nil {
				return err
			}
			path = p
		}
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("config already exists at %s\n", path)
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := config.Default().SaveTo(path); err != nil {
			return err
		}
		fmt.Printf("created default config at %s\n", path)
		return nil
	},
}

var openCmd = &cobra.Command{
	Use:       "open config|cache",
	Short:     "Open the config file or cache directory",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"config", "cache"},
	RunE: func(_ *cobra.Command, args []string) error {
		var target string
		switch args[0] {
		case "config":
			if configPath != "" {
				target = configPath
			} else {
				p, err := config.ConfigPath()
				if err != nil {
					return err
				}
				target = p
			}
		case "cache":
			p, err := paths()
			if err != nil {
				return err
			}
			target = p.Cache
			if err := os.MkdirAll(target, 0700); err != nil {
				return err
			}
		}
		return browser.OpenFile(target)
	},
}

var botTestCmd = &cobra.Command{
	Use:   "bot-test",
	Short: "Open a fingerprint audit page with the automation browser options",
	RunE: func(cmd *cobra.Command, _ []string) error {
		done := make(chan struct{})
		go func() {
			fmt.Println("Press Enter to close the browser...")
			bufio.NewReader(os.Stdin).ReadString('\n')
			close(done)
		}()
		return xbrowser.OpenAudit(cmd.Context(), xbrowser.FingerprintAuditURL, done)
	},
}

func init() {
	loginCmd.Flags().BoolVar(&interactiveLogin, "interactive", false, "Sign in by hand in a visible browser")
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", "", "Output directory (default: <cache>/exports)")
}
