// Package service ties the browser, portal, download and history packages
// into one run of the bot.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sebastianrcnt/learnus-bot/browser"
	"github.com/sebastianrcnt/learnus-bot/config"
	"github.com/sebastianrcnt/learnus-bot/history"
	"github.com/sebastianrcnt/learnus-bot/hls"
	"github.com/sebastianrcnt/learnus-bot/progress"
	"github.com/sebastianrcnt/learnus-bot/scrapers"
	"github.com/sebastianrcnt/learnus-bot/worker"
)

const (
	ModeWatch    = "watch"
	ModeDownload = "download"
)

// ProcessKiller enumerates and force-kills leftover browser processes.
type ProcessKiller interface {
	List(ctx context.Context) ([]string, error)
	Kill(ctx context.Context) error
}

// Downloader assembles the stream behind a manifest URL into dest.
type Downloader interface {
	Download(ctx context.Context, manifestURL, dest string) error
}

// Recorder is the run ledger. *history.Store implements it.
type Recorder interface {
	StartRun(ctx context.Context, mode string) (string, error)
	FinishRun(ctx context.Context, id string, runErr error) error
	Record(ctx context.Context, o history.Outcome) error
}

// Program runs one scan, the optional download loop, then the watch pool.
type Program struct {
	Config     config.Config
	Launcher   browser.Launcher
	Reporter   progress.Reporter
	Downloader Downloader
	// History is optional.
	History Recorder
	// Killer is optional; it is only used when Config.KillBrowsers is set.
	Killer ProcessKiller
	Logger *log.Logger

	runID string
}

func (p *Program) mode() string {
	if p.Config.Download {
		return ModeDownload
	}
	return ModeWatch
}

// Run executes the whole flow. Per-video failures do not stop other videos;
// they are joined into the returned error. Download mode saves every video
// first and then plays the incomplete ones like a watch run.
func (p *Program) Run(ctx context.Context) (err error) {
	if p.Logger == nil {
		p.Logger = log.New(os.Stdout, "[LEARNUS] ", log.LstdFlags)
	}
	if p.Reporter == nil {
		p.Reporter = progress.Nop{}
	}

	if p.Config.KillBrowsers && p.Killer != nil {
		p.killBrowsers(ctx)
	}

	p.startRun(ctx)
	defer func() {
		p.finishRun(ctx, err)
	}()

	p.Logger.Printf("Starting %s run (headless=%v, max threads=%d)", p.mode(), p.Config.Headless, p.Config.MaxThreads)

	// Downloads run in the scanning session; playback always follows.
	var (
		items       []scrapers.WorkItem
		downloadErr error
	)
	err = p.session(ctx, p.Logger, func(portal *scrapers.Portal) error {
		var err error
		items, err = p.scan(ctx, portal)
		if err != nil {
			return err
		}
		if p.Config.Download {
			downloadErr = p.download(ctx, portal, items)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return errors.Join(downloadErr, ctx.Err())
	}
	return errors.Join(downloadErr, p.watch(ctx, items))
}

func (p *Program) session(ctx context.Context, logger *log.Logger, fn func(*scrapers.Portal) error) error {
	opts := browser.Options{Headless: p.Config.Headless}
	return scrapers.WithSession(ctx, p.Launcher, opts, p.Config.Portal, p.Config.Credentials, logger, fn)
}

// killBrowsers clears browsers left over from an earlier run. Failures only warn.
func (p *Program) killBrowsers(ctx context.Context) {
	procs, err := p.Killer.List(ctx)
	if err != nil {
		p.Logger.Printf("Warning: failed to list browser processes: %v", err)
		return
	}
	if len(procs) == 0 {
		return
	}
	p.Logger.Printf("Killing %d leftover browser processes", len(procs))
	if err := p.Killer.Kill(ctx); err != nil {
		p.Logger.Printf("Warning: failed to kill browser processes: %v", err)
	}
}

// scan lists every video of every course. Each item carries its own course.
func (p *Program) scan(ctx context.Context, portal *scrapers.Portal) ([]scrapers.WorkItem, error) {
	courses, err := portal.ListCourses(ctx)
	if err != nil {
		return nil, err
	}

	var items []scrapers.WorkItem
	for _, course := range courses {
		vods, err := portal.ListVods(ctx, course)
		if err != nil {
			return nil, err
		}
		pending := 0
		for _, vod := range vods {
			if !vod.IsComplete {
				pending++
			}
			items = append(items, scrapers.WorkItem{Course: course, Vod: vod})
		}
		p.Logger.Printf("%s: %d videos, %d incomplete", course.Title, len(vods), pending)
	}
	p.Logger.Printf("Scanned %d courses, %d videos", len(courses), len(items))
	return items, nil
}

func (p *Program) watch(ctx context.Context, items []scrapers.WorkItem) error {
	var pending []scrapers.WorkItem
	for _, it := range items {
		if !it.Vod.IsComplete {
			pending = append(pending, it)
		}
	}
	if len(pending) == 0 {
		p.Logger.Println("All videos are already complete")
		return nil
	}
	p.Logger.Printf("Watching %d videos with up to %d workers", len(pending), p.Config.MaxThreads)

	return worker.Run(ctx, pending, p.Config.MaxThreads, func(ctx context.Context, id int, item scrapers.WorkItem) error {
		logger := log.New(p.Logger.Writer(), fmt.Sprintf("[worker-%d] ", id), log.LstdFlags)
		started := time.Now()
		err := p.session(ctx, logger, func(portal *scrapers.Portal) error {
			return portal.PlayVod(ctx, item.Vod, p.Reporter, fmt.Sprintf("worker-%d: %s", id, item))
		})

		status := history.StatusWatched
		switch {
		case errors.Is(err, scrapers.ErrPlaybackStalled):
			status = history.StatusStalled
		case err != nil:
			status = history.StatusFailed
		}
		if err != nil {
			logger.Printf("Failed %s: %v", item, err)
		} else {
			logger.Printf("Finished %s", item)
		}
		p.record(ctx, item, status, err, started)
		return err
	})
}

// download saves every scanned video, complete or not, in the scanning
// session. Videos whose file already exists are skipped before the player
// is even opened.
func (p *Program) download(ctx context.Context, portal *scrapers.Portal, items []scrapers.WorkItem) error {
	if err := os.MkdirAll(p.Config.DownloadDir, 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	var errs []error
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		started := time.Now()
		dest := filepath.Join(p.Config.DownloadDir, hls.DeriveFilename(item.Course.Title, item.Vod.Name))

		exists, err := hls.Exists(dest)
		if err != nil {
			errs = append(errs, &worker.ItemError[scrapers.WorkItem]{Item: item, Err: err})
			p.record(ctx, item, history.StatusFailed, err, started)
			continue
		}
		if exists {
			p.Logger.Printf("Skipping %s: %s exists", item, dest)
			p.record(ctx, item, history.StatusSkipped, nil, started)
			continue
		}

		err = p.downloadOne(ctx, portal, item, dest)
		if err != nil {
			p.Logger.Printf("Failed to download %s: %v", item, err)
			errs = append(errs, &worker.ItemError[scrapers.WorkItem]{Item: item, Err: err})
			p.record(ctx, item, history.StatusFailed, err, started)
			continue
		}
		p.Logger.Printf("Saved %s to %s", item, dest)
		p.record(ctx, item, history.StatusDownloaded, nil, started)
	}
	return errors.Join(errs...)
}

func (p *Program) downloadOne(ctx context.Context, portal *scrapers.Portal, item scrapers.WorkItem, dest string) error {
	manifest, err := portal.ManifestURL(ctx, item.Vod)
	if err != nil {
		return err
	}
	p.Logger.Printf("Manifest for %s: %s", item, manifest)
	return p.Downloader.Download(ctx, manifest, dest)
}

func (p *Program) startRun(ctx context.Context) {
	if p.History == nil {
		return
	}
	id, err := p.History.StartRun(ctx, p.mode())
	if err != nil {
		p.Logger.Printf("Warning: failed to record run: %v", err)
		return
	}
	p.runID = id
}

// finishRun still records when ctx was cancelled by an interrupt.
func (p *Program) finishRun(ctx context.Context, runErr error) {
	if p.runID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.History.FinishRun(ctx, p.runID, runErr); err != nil {
		p.Logger.Printf("Warning: failed to finish run record: %v", err)
	}
}

func (p *Program) record(ctx context.Context, item scrapers.WorkItem, status history.Status, itemErr error, started time.Time) {
	if p.runID == "" {
		return
	}
	o := history.Outcome{
		RunID:     p.runID,
		Course:    item.Course.Title,
		Vod:       item.Vod.Name,
		Link:      item.Vod.Link,
		Status:    status,
		StartedAt: started,
	}
	if itemErr != nil {
		o.Detail = itemErr.Error()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.History.Record(ctx, o); err != nil {
		p.Logger.Printf("Warning: failed to record %s: %v", item, err)
	}
}
