package scrapers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sebastianrcnt/learnus-bot/browser"
	"github.com/sebastianrcnt/learnus-bot/progress"
)

const (
	selPlayButton   = "#my-video > button"
	selRateButton   = "button.vjs-playback-rate"
	selRateItems    = "div.vjs-playback-rate .vjs-menu .vjs-menu-item .vjs-menu-item-text"
	selProgressHold = ".vjs-progress-control div.vjs-progress-holder"
)

// RateRule picks an entry from the player's playback-rate menu.
type RateRule string

const (
	RateFirst   RateRule = "first"
	RateLast    RateRule = "last"
	RateFastest RateRule = "fastest"
)

// ParseRateRule validates a rule name.
func ParseRateRule(s string) (RateRule, error) {
	switch r := RateRule(strings.ToLower(strings.TrimSpace(s))); r {
	case RateFirst, RateLast, RateFastest:
		return r, nil
	default:
		return "", fmt.Errorf("unknown rate rule %q (want first, last or fastest)", s)
	}
}

// Pick returns the index of the menu entry the rule selects, or -1 for an
// empty menu. Fastest parses labels like "2x" and falls back to the first
// entry when none parse.
func (r RateRule) Pick(labels []string) int {
	if len(labels) == 0 {
		return -1
	}
	switch r {
	case RateLast:
		return len(labels) - 1
	case RateFastest:
		best, bestRate := 0, -1.0
		for i, l := range labels {
			rate, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(strings.ToLower(l)), "x"), 64)
			if err != nil {
				continue
			}
			if rate > bestRate {
				best, bestRate = i, rate
			}
		}
		return best
	default:
		return 0
	}
}

// Normalize maps a progress bar reading onto [0,1]. NaN or infinite
// readings and an empty range are invalid.
func Normalize(now, lo, hi float64) (float64, error) {
	if !finite(now) || !finite(lo) || !finite(hi) {
		return 0, fmt.Errorf("reading %g in [%g, %g]: %w", now, lo, hi, ErrInvalidProgressReading)
	}
	if hi == lo {
		return 0, fmt.Errorf("range [%g, %g]: %w", lo, hi, ErrInvalidProgressReading)
	}
	f := (now - lo) / (hi - lo)
	if !finite(f) {
		return 0, fmt.Errorf("reading %g in [%g, %g]: %w", now, lo, hi, ErrInvalidProgressReading)
	}
	return f, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// PlayVod plays vod at the selected rate and returns once progress strictly
// exceeds the threshold. Progress is reported to a task named taskName.
func (p *Portal) PlayVod(ctx context.Context, vod Vod, reporter progress.Reporter, taskName string) error {
	p.logger.Printf("Opening %s", vod.Name)
	if err := p.page.Navigate(ctx, vod.Link); err != nil {
		return fmt.Errorf("failed to open video: %w", err)
	}

	if err := p.acceptDialog(ctx); err != nil {
		return err
	}

	if err := p.page.Click(ctx, selPlayButton); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}

	if err := p.selectRate(ctx); err != nil {
		return err
	}

	if err := p.pollProgress(ctx, reporter, taskName); err != nil {
		return err
	}

	return sleep(ctx, p.cfg.PollInterval)
}

// acceptDialog dismisses a native dialog if one is open.
func (p *Portal) acceptDialog(ctx context.Context) error {
	msg, err := p.page.AcceptDialog(ctx)
	if errors.Is(err, browser.ErrNoDialog) {
		return nil
	}
	if err != nil {
		return err
	}
	p.logger.Printf("Accepted dialog: %s", msg)
	return nil
}

func (p *Portal) selectRate(ctx context.Context) error {
	if err := p.page.Click(ctx, selRateButton); err != nil {
		return fmt.Errorf("failed to open rate menu: %w", err)
	}
	labels, err := p.page.Texts(ctx, selRateItems)
	if err != nil {
		return fmt.Errorf("failed to read rate menu: %w", err)
	}
	idx := p.cfg.RateRule.Pick(labels)
	if idx < 0 {
		return fmt.Errorf("failed to read rate menu: %w", browser.NotFound(selRateItems))
	}
	if err := p.page.ClickNth(ctx, selRateItems, idx); err != nil {
		return fmt.Errorf("failed to select rate: %w", err)
	}
	p.logger.Printf("Playback rate set to %s", labels[idx])
	return nil
}

// ReadProgress returns the player's current normalized position.
func (p *Portal) ReadProgress(ctx context.Context) (float64, error) {
	var vals [3]float64
	for i, name := range []string{"aria-valuenow", "aria-valuemin", "aria-valuemax"} {
		raw, err := p.page.Attribute(ctx, selProgressHold, name)
		if errors.Is(err, browser.ErrAttributeMissing) {
			return 0, fmt.Errorf("%s: %w", name, ErrInvalidProgressReading)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read progress: %w", err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return 0, fmt.Errorf("%s=%q: %w", name, raw, ErrInvalidProgressReading)
		}
		vals[i] = v
	}
	return Normalize(vals[0], vals[1], vals[2])
}

func (p *Portal) pollProgress(ctx context.Context, reporter progress.Reporter, taskName string) error {
	task := reporter.AddTask(taskName, progress.Scale)
	defer task.Finish()

	start := time.Now()
	lastAdvance := start
	last := -1.0
	// The player reports NaN until it knows the duration, so invalid
	// readings are skipped for up to one StepTimeout.
	var invalidSince time.Time

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		cur, err := p.ReadProgress(ctx)
		if errors.Is(err, ErrInvalidProgressReading) {
			if invalidSince.IsZero() {
				invalidSince = time.Now()
			}
			if time.Since(invalidSince) > p.cfg.StepTimeout {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		invalidSince = time.Time{}
		task.Update(int64(cur * progress.Scale))

		if cur > p.cfg.Threshold {
			p.logger.Printf("Reached %.1f%% of the video", p.cfg.Threshold*100)
			return nil
		}

		now := time.Now()
		if cur > last {
			last, lastAdvance = cur, now
		} else if p.cfg.StallTimeout > 0 && now.Sub(lastAdvance) > p.cfg.StallTimeout {
			return fmt.Errorf("stuck at %.2f%% for %s: %w", cur*100, now.Sub(lastAdvance).Round(time.Second), ErrPlaybackStalled)
		}
		if p.cfg.MaxPlayback > 0 && now.Sub(start) > p.cfg.MaxPlayback {
			return fmt.Errorf("after %s: %w", p.cfg.MaxPlayback, ErrPlaybackTimeout)
		}
	}
}
