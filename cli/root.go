// Package cli defines the learnus-bot command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sebastianrcnt/learnus-bot/config"
	"github.com/sebastianrcnt/learnus-bot/scrapers"
)

// ErrInterrupted is returned when a run was stopped by a signal.
var ErrInterrupted = errors.New("interrupted")

// Updater is the release check behind the update command.
type Updater interface {
	CheckForUpdate(ctx context.Context) (*selfupdate.Release, bool, error)
	Update(ctx context.Context, release *selfupdate.Release) error
}

// App holds what the commands need from the outside world.
type App struct {
	Version string
	// IsInteractive reports whether the live progress view can be drawn.
	IsInteractive func() bool
	// Run executes one watch or download run. Nil means the Chrome-backed flow.
	Run func(ctx context.Context, cfg config.Config) error
	// NewUpdater is nil for GitHub releases.
	NewUpdater func() Updater
}

// runFlags mirror the configuration keys that can be overridden per run.
type runFlags struct {
	headless            bool
	maxThreads          int
	download            bool
	downloadDir         string
	downloadConcurrency int
	rateRule            string
	stallTimeout        time.Duration
	stepTimeout         time.Duration
	plain               bool
	noHistory           bool
	killBrowsers        bool
	browserProcess      string
	logFile             string
}

func (f *runFlags) bind(fs *pflag.FlagSet) {
	def := config.Default()
	fs.BoolVar(&f.headless, "headless", false, "Run browsers without a window")
	fs.IntVar(&f.maxThreads, "max-threads", def.MaxThreads, "Maximum concurrent browser sessions")
	fs.BoolVar(&f.download, "download", false, "Download every video before watching the incomplete ones")
	fs.StringVar(&f.downloadDir, "download-dir", def.DownloadDir, "Directory for downloaded videos")
	fs.IntVar(&f.downloadConcurrency, "download-concurrency", def.DownloadConcurrency, "Concurrent segment downloads per video")
	fs.StringVar(&f.rateRule, "rate-rule", string(def.Portal.RateRule), "Playback rate menu entry to pick: first, last or fastest")
	fs.DurationVar(&f.stallTimeout, "stall-timeout", def.Portal.StallTimeout, "Fail a video whose progress does not advance for this long (0 disables)")
	fs.DurationVar(&f.stepTimeout, "step-timeout", def.Portal.StepTimeout, "Maximum wait for a page element")
	fs.BoolVar(&f.plain, "plain", false, "Log progress lines instead of drawing progress bars")
	fs.BoolVar(&f.noHistory, "no-history", false, "Do not record this run in the history database")
	fs.BoolVar(&f.killBrowsers, "kill-browsers", def.KillBrowsers, "Kill leftover browser processes before and after the run")
	fs.StringVar(&f.browserProcess, "browser-process", def.BrowserProcess, "Browser process name to kill")
	fs.StringVar(&f.logFile, "log-file", "", "Also append logs to this file")
}

// apply copies the flags the user set over cfg, so unset flags keep the
// environment's values.
func (f *runFlags) apply(fs *pflag.FlagSet, cfg *config.Config) error {
	set := func(name string) bool { return fs.Changed(name) }

	if set("headless") {
		cfg.Headless = f.headless
	}
	if set("max-threads") {
		cfg.MaxThreads = f.maxThreads
	}
	if set("download") {
		cfg.Download = f.download
	}
	if set("download-dir") {
		cfg.DownloadDir = f.downloadDir
	}
	if set("download-concurrency") {
		cfg.DownloadConcurrency = f.downloadConcurrency
	}
	if set("rate-rule") {
		rule, err := scrapers.ParseRateRule(f.rateRule)
		if err != nil {
			return err
		}
		cfg.Portal.RateRule = rule
	}
	if set("stall-timeout") {
		cfg.Portal.StallTimeout = f.stallTimeout
	}
	if set("step-timeout") {
		cfg.Portal.StepTimeout = f.stepTimeout
	}
	if set("plain") {
		cfg.Plain = f.plain
	}
	if set("no-history") {
		cfg.NoHistory = f.noHistory
	}
	if set("kill-browsers") {
		cfg.KillBrowsers = f.killBrowsers
	}
	if set("browser-process") {
		cfg.BrowserProcess = f.browserProcess
	}
	if set("log-file") {
		cfg.LogFile = f.logFile
	}
	return nil
}

// NewRootCmd creates the top-level "learnus-bot" command. Running it without
// a subcommand watches (or downloads) every incomplete video.
func NewRootCmd(app *App) *cobra.Command {
	var (
		envFile string
		flags   runFlags
	)

	root := &cobra.Command{
		Use:           "learnus-bot",
		Short:         "Plays LearnUs lecture videos to completion",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if err := flags.apply(cmd.Flags(), &cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			run := app.Run
			if run == nil {
				run = func(ctx context.Context, cfg config.Config) error {
					return runBot(ctx, cfg, app.interactive())
				}
			}
			err = run(ctx, cfg)
			if ctx.Err() != nil && cmd.Context().Err() == nil {
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
				}
				return ErrInterrupted
			}
			return err
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file with LEARNUS_* settings")
	flags.bind(root.Flags())

	root.AddCommand(
		newHistoryCmd(app, &envFile),
		newUpdateCmd(app),
		newVersionCmd(app),
	)

	return root
}

func (a *App) interactive() bool {
	return a.IsInteractive != nil && a.IsInteractive()
}
