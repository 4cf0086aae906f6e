package cli

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/sebastianrcnt/learnus-bot/browser"
	"github.com/sebastianrcnt/learnus-bot/config"
	"github.com/sebastianrcnt/learnus-bot/history"
	"github.com/sebastianrcnt/learnus-bot/hls"
	"github.com/sebastianrcnt/learnus-bot/procctl"
	"github.com/sebastianrcnt/learnus-bot/progress"
	"github.com/sebastianrcnt/learnus-bot/service"
)

// runBot wires the Chrome-backed program and runs it once.
func runBot(ctx context.Context, cfg config.Config, interactive bool) error {
	var (
		out      io.Writer = os.Stdout
		reporter progress.Reporter
		tui      *progress.TUI
	)
	if interactive && !cfg.Plain {
		tui = progress.StartTUI(os.Stdout)
		defer tui.Stop()
		out = tui
	}

	logger, closeLog, err := service.NewLogger(out, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	if tui != nil {
		reporter = tui
	} else {
		reporter = progress.NewLogReporter(logger)
	}

	killer := procctl.NewKiller(cfg.BrowserProcess)
	if cfg.KillBrowsers {
		// Runs on interrupt as well; the run context is already cancelled then.
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := killer.Kill(ctx); err != nil {
				logger.Printf("Warning: failed to kill browser processes: %v", err)
			}
		}()
	}

	dl := hls.NewDownloader(log.New(logger.Writer(), "[HLS] ", log.LstdFlags), cfg.DownloadConcurrency)
	if tui != nil {
		dl.Progress = nil
	}

	program := &service.Program{
		Config: cfg,
		Launcher: &browser.ChromeLauncher{
			Logger:      logger,
			StepTimeout: cfg.Portal.StepTimeout,
			ExecPath:    cfg.ChromePath,
		},
		Reporter:   reporter,
		Downloader: dl,
		Killer:     killer,
		Logger:     logger,
	}

	if !cfg.NoHistory {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			logger.Printf("Warning: history disabled: %v", err)
		} else {
			defer store.Close()
			program.History = store
		}
	}

	return program.Run(ctx)
}
